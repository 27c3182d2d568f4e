/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"time"
)

// hmacCred is a signed, timestamped opaque token, packed as
// issuedUnixNano (8 bytes) | hmac-sha256(key, uid || issuedUnixNano) | uid.
type hmacCred struct {
	uid    string
	issued time.Time
	sig    [sha256.Size]byte
	dead   bool
}

func (c *hmacCred) UserID() string  { return c.uid }
func (c *hmacCred) destroyed() bool { return c.dead }

// HMACProvider signs credentials with a shared key and rejects any token
// older than MaxAge (spec.md §4.B supplement: an opaque signed+timestamped
// token in place of the original's munge plugin).
type HMACProvider struct {
	Key    []byte
	MaxAge time.Duration
}

func (p *HMACProvider) sign(uid string, issued time.Time) [sha256.Size]byte {
	mac := hmac.New(sha256.New, p.Key)
	fmt.Fprint(mac, uid)
	var tbuf [8]byte
	binary.BigEndian.PutUint64(tbuf[:], uint64(issued.UnixNano()))
	mac.Write(tbuf[:])
	var out [sha256.Size]byte
	copy(out[:], mac.Sum(nil))
	return out
}

func (p *HMACProvider) Create(userID string) (Cred, error) {
	issued := time.Now()
	return &hmacCred{uid: userID, issued: issued, sig: p.sign(userID, issued)}, nil
}

func (p *HMACProvider) Pack(c Cred) ([]byte, error) {
	hc, ok := c.(*hmacCred)
	if !ok || hc.destroyed() {
		return nil, authInvalid("hmac: credential already destroyed or foreign")
	}
	buf := make([]byte, 0, 8+len(hc.uid)+sha256.Size)
	buf = binary.BigEndian.AppendUint64(buf, uint64(hc.issued.UnixNano()))
	buf = append(buf, hc.sig[:]...)
	buf = append(buf, hc.uid...)
	return buf, nil
}

func (p *HMACProvider) Unpack(buf []byte) (Cred, error) {
	if len(buf) < 8+sha256.Size {
		return nil, authInvalid("hmac: truncated credential")
	}
	issuedNano := binary.BigEndian.Uint64(buf[:8])
	var sig [sha256.Size]byte
	copy(sig[:], buf[8:8+sha256.Size])
	uid := string(buf[8+sha256.Size:])
	return &hmacCred{uid: uid, issued: time.Unix(0, int64(issuedNano)), sig: sig}, nil
}

func (p *HMACProvider) Verify(c Cred, expectedUID string) error {
	hc, ok := c.(*hmacCred)
	if !ok || hc.destroyed() {
		return authInvalid("hmac: credential already destroyed or foreign")
	}
	want := p.sign(hc.uid, hc.issued)
	if subtle.ConstantTimeCompare(want[:], hc.sig[:]) != 1 {
		return authInvalid("hmac: signature mismatch for uid %q", hc.uid)
	}
	if p.MaxAge > 0 && time.Since(hc.issued) > p.MaxAge {
		return authInvalid("hmac: credential for uid %q expired", hc.uid)
	}
	if expectedUID != "" && hc.uid != expectedUID {
		return authInvalid("hmac: uid mismatch: got %q want %q", hc.uid, expectedUID)
	}
	return nil
}

func (p *HMACProvider) Destroy(c Cred) {
	if hc, ok := c.(*hmacCred); ok {
		hc.dead = true
	}
}

func (p *HMACProvider) Errstr(c Cred) string {
	hc, ok := c.(*hmacCred)
	if !ok {
		return "hmac: foreign credential"
	}
	if hc.destroyed() {
		return "hmac: credential destroyed"
	}
	return ""
}
