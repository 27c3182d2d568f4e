// Package wire implements the framed message codec (spec.md §4.A, §6): pack
// and unpack headers and bodies, with a stable version tag checked before
// anything else, mirroring original_source's slurm_protocol_api.c ordering.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gridforge/wlmcore/cmn"
)

// ProtocolVersion is the stable version tag packed ahead of every header.
const ProtocolVersion uint16 = 1

// reservedKindBase mirrors the teacher's transport.opcFin / ReservedOpcode
// pattern: the top 17 Kind values (MaxInt32-16 through MaxInt32) are reserved for codec-internal use (e.g.
// a no-op/keepalive probe an accept loop can send without a full body).
const reservedKindBase = math.MaxInt32 - 16

const KindNoOp = reservedKindBase

func ReservedKind(kind int32) bool { return kind >= reservedKindBase }

// Ordinary request kinds exchanged between wlmctl and wlmd, comfortably
// clear of reservedKindBase. Shared here so client and daemon agree on
// the same small integers without either importing the other's package.
const (
	KindPlace int32 = iota + 1
	KindCancel
	KindSignal
	KindRequeue
	KindUpdate
)

// Addr is an (ipv4, port) pair, per spec.md §4.C/§6.
type Addr struct {
	IP   [4]byte
	Port uint16
}

func (a Addr) IsZero() bool { return a.IP == [4]byte{} && a.Port == 0 }

func (a Addr) String() string {
	return fmt.Sprintf("%d.%d.%d.%d:%d", a.IP[0], a.IP[1], a.IP[2], a.IP[3], a.Port)
}

// PerNodeData is one per-node reply fragment (spec.md §3: Return entry).
type PerNodeData struct {
	NodeName string
	NodeID   int32
	Opaque   []byte
}

// RetEntry groups equivalent per-node replies (spec.md §3).
type RetEntry struct {
	Kind       int32
	ReturnCode int32
	Errno      int32
	PerNode    []PerNodeData
}

// ForwardPlan is the tree-shaped multi-hop dispatch descriptor (spec.md §3,
// §9's "recursive value" design note). Count == 0 disables fan-out.
type ForwardPlan struct {
	Count           int32
	Targets         []Addr
	BranchTimeoutMS int32
}

func (p ForwardPlan) Enabled() bool { return p.Count > 0 }

// Header is wire-framed in declared field order; BodyLength sits right
// after the fixed version/flags/kind trio so it can be repatched in place
// without touching the variable-length tail (spec.md §4.A).
type Header struct {
	Version       uint16
	Flags         uint16
	Kind          int32
	BodyLength    uint32
	ForwardPlan   ForwardPlan
	ForwardReturn []RetEntry
	OriginAddr    Addr
	SourceNodeID  int32
}

// bodyLengthOffset is the fixed byte offset of BodyLength within the
// packed header: Version(2) + Flags(2) + Kind(4).
const bodyLengthOffset = 8

func putAddr(buf []byte, a Addr) []byte {
	buf = append(buf, a.IP[:]...)
	return binary.BigEndian.AppendUint16(buf, a.Port)
}

func getAddr(b []byte) (Addr, []byte, error) {
	if len(b) < 6 {
		return Addr{}, nil, errIncomplete
	}
	var a Addr
	copy(a.IP[:], b[:4])
	a.Port = binary.BigEndian.Uint16(b[4:6])
	return a, b[6:], nil
}

func putPerNode(buf []byte, pn PerNodeData) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(pn.NodeName)))
	buf = append(buf, pn.NodeName...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(pn.NodeID))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(pn.Opaque)))
	buf = append(buf, pn.Opaque...)
	return buf
}

func getPerNode(b []byte) (PerNodeData, []byte, error) {
	var pn PerNodeData
	nameLen, b, err := getU32(b)
	if err != nil {
		return pn, nil, err
	}
	if len(b) < int(nameLen) {
		return pn, nil, errIncomplete
	}
	pn.NodeName = string(b[:nameLen])
	b = b[nameLen:]
	nid, b, err := getU32(b)
	if err != nil {
		return pn, nil, err
	}
	pn.NodeID = int32(nid)
	opLen, b, err := getU32(b)
	if err != nil {
		return pn, nil, err
	}
	if len(b) < int(opLen) {
		return pn, nil, errIncomplete
	}
	pn.Opaque = append([]byte(nil), b[:opLen]...)
	return pn, b[opLen:], nil
}

func getU32(b []byte) (uint32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, errIncomplete
	}
	return binary.BigEndian.Uint32(b), b[4:], nil
}

func putRetEntry(buf []byte, e RetEntry) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(e.Kind))
	buf = binary.BigEndian.AppendUint32(buf, uint32(e.ReturnCode))
	buf = binary.BigEndian.AppendUint32(buf, uint32(e.Errno))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(e.PerNode)))
	for _, pn := range e.PerNode {
		buf = putPerNode(buf, pn)
	}
	return buf
}

func getRetEntry(b []byte) (RetEntry, []byte, error) {
	var e RetEntry
	kind, b, err := getU32(b)
	if err != nil {
		return e, nil, err
	}
	e.Kind = int32(kind)
	rc, b, err := getU32(b)
	if err != nil {
		return e, nil, err
	}
	e.ReturnCode = int32(rc)
	errno, b, err := getU32(b)
	if err != nil {
		return e, nil, err
	}
	e.Errno = int32(errno)
	n, b, err := getU32(b)
	if err != nil {
		return e, nil, err
	}
	e.PerNode = make([]PerNodeData, 0, n)
	for i := uint32(0); i < n; i++ {
		var pn PerNodeData
		pn, b, err = getPerNode(b)
		if err != nil {
			return e, nil, err
		}
		e.PerNode = append(e.PerNode, pn)
	}
	return e, b, nil
}

// packHeader serializes h; bodyLength is written with whatever value h
// currently carries — PackFrame repatches it once the real body length is
// known, per spec.md §4.A ("packed twice").
func packHeader(h *Header) []byte {
	buf := make([]byte, 0, 64)
	buf = binary.BigEndian.AppendUint16(buf, h.Version)
	buf = binary.BigEndian.AppendUint16(buf, h.Flags)
	buf = binary.BigEndian.AppendUint32(buf, uint32(h.Kind))
	buf = binary.BigEndian.AppendUint32(buf, h.BodyLength)
	buf = binary.BigEndian.AppendUint32(buf, uint32(h.ForwardPlan.Count))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(h.ForwardPlan.Targets)))
	for _, t := range h.ForwardPlan.Targets {
		buf = putAddr(buf, t)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(h.ForwardPlan.BranchTimeoutMS))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(h.ForwardReturn)))
	for _, e := range h.ForwardReturn {
		buf = putRetEntry(buf, e)
	}
	buf = putAddr(buf, h.OriginAddr)
	buf = binary.BigEndian.AppendUint32(buf, uint32(h.SourceNodeID))
	return buf
}

// unpackHeader parses a packed header. Per spec.md §4.A/original
// slurm_protocol_api.c, the version tag is checked before any other field,
// including before body_length.
func unpackHeader(b []byte) (*Header, []byte, error) {
	if len(b) < bodyLengthOffset+4 {
		return nil, nil, errIncomplete
	}
	h := &Header{}
	h.Version = binary.BigEndian.Uint16(b[0:2])
	if h.Version != ProtocolVersion {
		return nil, nil, cmn.NewErr(cmn.VERSION_MISMATCH, "wire: protocol version mismatch")
	}
	h.Flags = binary.BigEndian.Uint16(b[2:4])
	h.Kind = int32(binary.BigEndian.Uint32(b[4:8]))
	h.BodyLength = binary.BigEndian.Uint32(b[8:12])
	rest := b[12:]

	count, rest, err := getU32(rest)
	if err != nil {
		return nil, nil, err
	}
	h.ForwardPlan.Count = int32(count)
	ntargets, rest, err := getU32(rest)
	if err != nil {
		return nil, nil, err
	}
	h.ForwardPlan.Targets = make([]Addr, 0, ntargets)
	for i := uint32(0); i < ntargets; i++ {
		var a Addr
		a, rest, err = getAddr(rest)
		if err != nil {
			return nil, nil, err
		}
		h.ForwardPlan.Targets = append(h.ForwardPlan.Targets, a)
	}
	bt, rest, err := getU32(rest)
	if err != nil {
		return nil, nil, err
	}
	h.ForwardPlan.BranchTimeoutMS = int32(bt)

	nret, rest, err := getU32(rest)
	if err != nil {
		return nil, nil, err
	}
	h.ForwardReturn = make([]RetEntry, 0, nret)
	for i := uint32(0); i < nret; i++ {
		var e RetEntry
		e, rest, err = getRetEntry(rest)
		if err != nil {
			return nil, nil, err
		}
		h.ForwardReturn = append(h.ForwardReturn, e)
	}

	h.OriginAddr, rest, err = getAddr(rest)
	if err != nil {
		return nil, nil, err
	}
	sid, rest, err := getU32(rest)
	if err != nil {
		return nil, nil, err
	}
	h.SourceNodeID = int32(sid)
	return h, rest, nil
}

var errIncomplete = cmn.NewErr(cmn.INCOMPLETE_PACKET, "wire: incomplete packet")

// PackFrame builds length(u32) + header + authCredLen(u32) + authCred +
// body, per spec.md §6's wire frame. authCred is the provider's already
// -packed opaque bytes (see auth.Provider.Pack); wire never inspects it.
func PackFrame(h *Header, authCred, body []byte) []byte {
	h.BodyLength = uint32(len(body))
	hdr := packHeader(h)
	binary.BigEndian.PutUint32(hdr[bodyLengthOffset:bodyLengthOffset+4], h.BodyLength)

	frame := make([]byte, 0, 4+len(hdr)+4+len(authCred)+len(body))
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(hdr)+4+len(authCred)+len(body)))
	frame = append(frame, hdr...)
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(authCred)))
	frame = append(frame, authCred...)
	frame = append(frame, body...)
	return frame
}

// UnpackFrame is the inverse of PackFrame. frame must include the leading
// u32 length prefix. The version check happens before body_length is
// consulted (unpackHeader), and body_length is validated against the
// remaining buffer only after the header and auth credential are both
// accounted for, per spec.md §6.
func UnpackFrame(frame []byte) (h *Header, authCred, body []byte, err error) {
	total, rest, err := getU32(frame)
	if err != nil {
		return nil, nil, nil, err
	}
	if uint32(len(rest)) < total {
		return nil, nil, nil, errIncomplete
	}
	rest = rest[:total]

	h, rest, err = unpackHeader(rest)
	if err != nil {
		return nil, nil, nil, err
	}
	credLen, rest, err := getU32(rest)
	if err != nil {
		return nil, nil, nil, err
	}
	if uint32(len(rest)) < credLen {
		return nil, nil, nil, errIncomplete
	}
	authCred = rest[:credLen]
	rest = rest[credLen:]

	if uint32(len(rest)) < h.BodyLength {
		return nil, nil, nil, errIncomplete
	}
	body = rest[:h.BodyLength]
	return h, authCred, body, nil
}
