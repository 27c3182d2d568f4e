// Package auth implements the pluggable credential provider (spec.md
// §4.B): create/pack/unpack/verify/destroy/errstr. Every failure surfaces
// to the codec as AUTH_INVALID. Credentials are single-owner.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package auth

import (
	"github.com/gridforge/wlmcore/cmn"
)

// Cred is an opaque, single-owner credential. The wire codec never
// inspects its packed bytes; it just carries them between Provider.Pack
// and Provider.Unpack.
type Cred interface {
	UserID() string
	destroyed() bool
}

// Provider is implemented by each pluggable credential backend. The
// original ships a "munge"-backed plugin and a no-op "none" plugin used in
// testing (spec.md §4.B supplement); this package ships both.
type Provider interface {
	Create(userID string) (Cred, error)
	Pack(c Cred) ([]byte, error)
	Unpack(buf []byte) (Cred, error)
	Verify(c Cred, expectedUID string) error
	Destroy(c Cred)
	Errstr(c Cred) string
}

// ErrAuthInvalid wraps any provider failure as AUTH_INVALID, per spec.md
// §4.B ("All failures surface as AUTH_INVALID to the codec").
type ErrAuthInvalid struct{ msg string }

func (e *ErrAuthInvalid) Error() string { return e.msg }
func (e *ErrAuthInvalid) RC() cmn.RC    { return cmn.AUTH_INVALID }

func authInvalid(format string, a ...any) *ErrAuthInvalid {
	return &ErrAuthInvalid{msg: (cmn.NewErr(cmn.AUTH_INVALID, format, a...)).Error()}
}
