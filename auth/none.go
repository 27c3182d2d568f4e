/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package auth

// noneCred is the no-op credential: it carries only the user ID and always
// verifies. Used for single-binary deployments and tests (spec.md §4.B
// supplement).
type noneCred struct {
	uid  string
	dead bool
}

func (c *noneCred) UserID() string  { return c.uid }
func (c *noneCred) destroyed() bool { return c.dead }

// NoneProvider always verifies; it mirrors the original's "none" auth
// plugin used in testing.
type NoneProvider struct{}

func (NoneProvider) Create(userID string) (Cred, error) {
	return &noneCred{uid: userID}, nil
}

func (NoneProvider) Pack(c Cred) ([]byte, error) {
	nc, ok := c.(*noneCred)
	if !ok || nc.destroyed() {
		return nil, authInvalid("none: credential already destroyed or foreign")
	}
	return []byte(nc.uid), nil
}

func (NoneProvider) Unpack(buf []byte) (Cred, error) {
	return &noneCred{uid: string(buf)}, nil
}

func (NoneProvider) Verify(c Cred, expectedUID string) error {
	nc, ok := c.(*noneCred)
	if !ok || nc.destroyed() {
		return authInvalid("none: credential already destroyed or foreign")
	}
	if expectedUID != "" && nc.uid != expectedUID {
		return authInvalid("none: uid mismatch: got %q want %q", nc.uid, expectedUID)
	}
	return nil
}

func (NoneProvider) Destroy(c Cred) {
	if nc, ok := c.(*noneCred); ok {
		nc.dead = true
	}
}

func (NoneProvider) Errstr(c Cred) string {
	nc, ok := c.(*noneCred)
	if !ok {
		return "none: foreign credential"
	}
	if nc.destroyed() {
		return "none: credential destroyed"
	}
	return ""
}
