// Package cos - ID generation for jobs, blocks, and wire messages.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"crypto/rand"
	"fmt"
	ratomic "sync/atomic"

	"github.com/OneOfOne/xxhash"
	"github.com/teris-io/shortid"
)

const (
	// alphabet for generating UUIDs, similar to shortid.DEFAULT_ABC
	// NOTE: len(uuidABC) > 0x3f - see GenTie()
	uuidABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

	LenShortID = 9 // as per https://github.com/teris-io/shortid#id-length
	tooLongID  = 32
)

const (
	mayOnlyContain = "may only contain letters, numbers, dashes (-), underscores (_)"
	OnlyNice       = "must be less than 32 characters and " + mayOnlyContain
)

var (
	sid  *shortid.Shortid
	rtie atomic32
)

type atomic32 struct{ v uint32 }

func (a *atomic32) Add(d uint32) uint32 { return ratomic.AddUint32(&a.v, d) }

// InitShortID seeds the generator; call once at process start with a
// value that differs across controller replicas (e.g. node ID hash) so
// concurrently-running controllers don't mint colliding IDs.
func InitShortID(seed uint64) {
	sid = shortid.MustNew(4 /*worker*/, uuidABC, seed)
}

// GenUUID mints a short, URL-safe, collision-resistant ID for a job,
// block, or wire message. Must not start or end with a character that
// could be confused with alphanumeric padding; a tie-breaker character is
// prepended/appended when the raw generator produces one.
func GenUUID() string {
	if sid == nil {
		InitShortID(uint64(xxhash.Checksum64([]byte(fmt.Sprintf("%p", &sid)))))
	}
	var h, t string
	uuid := sid.MustGenerate()
	if !isAlpha(uuid[0]) {
		tie := int(rtie.Add(1))
		h = string(rune('A' + tie%26))
	}
	c := uuid[len(uuid)-1]
	if c == '-' || c == '_' {
		tie := int(rtie.Add(1))
		t = string(rune('a' + tie%26))
	}
	return h + uuid + t
}

func IsValidUUID(uuid string) bool {
	return len(uuid) >= LenShortID && IsAlphaNice(uuid)
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// IsAlphaNice reports whether s is alphanumeric plus '-'/'_', neither
// leading nor trailing on those, and within the max ID length.
func IsAlphaNice(s string) bool {
	l := len(s)
	if l > tooLongID {
		return false
	}
	for i := 0; i < l; i++ {
		c := s[i]
		if isAlpha(c) || (c >= '0' && c <= '9') {
			continue
		}
		if c != '-' && c != '_' {
			return false
		}
		if i == 0 || i == l-1 {
			return false
		}
	}
	return true
}

// GenTie returns a 3-character tie-breaker drawn from uuidABC, advancing
// the shared tie counter on every call.
func GenTie() string {
	tie := rtie.Add(1)
	b0 := uuidABC[tie&0x3f]
	b1 := uuidABC[-tie&0x3f]
	b2 := uuidABC[(tie>>2)&0x3f]
	return string([]byte{b0, b1, b2})
}

// CryptoRandS returns an n-character cryptographically random alphanumeric
// string. GenUUID does not fall back to it: an uninitialized shortid
// generator is seeded in place instead.
func CryptoRandS(n int) string {
	const abc = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	b := make([]byte, n)
	rand.Read(b)
	for i := range b {
		b[i] = abc[int(b[i])%len(abc)]
	}
	return string(b)
}
