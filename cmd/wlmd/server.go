/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"encoding/binary"
	"strings"
	"time"

	"github.com/gridforge/wlmcore/auth"
	"github.com/gridforge/wlmcore/catalog"
	"github.com/gridforge/wlmcore/cmn"
	"github.com/gridforge/wlmcore/cmn/cos"
	"github.com/gridforge/wlmcore/cmn/nlog"
	"github.com/gridforge/wlmcore/ctrlclient"
	"github.com/gridforge/wlmcore/fanout"
	"github.com/gridforge/wlmcore/jobspec"
	"github.com/gridforge/wlmcore/metrics"
	"github.com/gridforge/wlmcore/placement"
	"github.com/gridforge/wlmcore/store"
	"github.com/gridforge/wlmcore/wire"
	"github.com/gridforge/wlmcore/xport"
)

type server struct {
	cat          *catalog.Catalogue
	engine       *placement.Engine
	store        *store.Store
	auth         auth.Provider
	metrics      *metrics.Placement
	rpc          *ctrlclient.Client // node-directed send/recv and send-only, shared framing/auth with the controller client
	nodeAddrs    []wire.Addr        // indexed by bit position in a block's bitmap
	machineNodes int
}

// Serve accepts connections and handles exactly one framed request per
// connection, mirroring the client side's one-request-per-connection
// convention in ctrlclient.sendRecvOnce.
func (s *server) Serve(ln *xport.Listener) {
	for {
		conn, peer, err := ln.Accept()
		if err != nil {
			nlog.Errorf("wlmd: accept: %v", err)
			return
		}
		go s.handleConn(conn, peer)
	}
}

func (s *server) handleConn(conn *xport.Conn, peer wire.Addr) {
	defer conn.Shutdown()

	lenBuf, err := conn.ReadExact(4, 0)
	if err != nil {
		nlog.Warningf("wlmd: read frame length from %s: %v", peer, err)
		return
	}
	frameLen := binary.BigEndian.Uint32(lenBuf)
	rest, err := conn.ReadExact(int(frameLen), 0)
	if err != nil {
		nlog.Warningf("wlmd: read frame body from %s: %v", peer, err)
		return
	}
	hdr, credBytes, body, err := wire.UnpackFrame(append(lenBuf, rest...))
	if err != nil {
		nlog.Warningf("wlmd: unpack frame from %s: %v", peer, err)
		return
	}
	cred, err := s.auth.Unpack(credBytes)
	if err != nil {
		nlog.Warningf("wlmd: unpack credential from %s: %v", peer, err)
		s.reply(conn, hdr.Kind, cmn.AUTH_INVALID, nil)
		return
	}
	defer s.auth.Destroy(cred)
	if err := s.auth.Verify(cred, ""); err != nil {
		nlog.Warningf("wlmd: auth rejected from %s: %v", peer, err)
		s.reply(conn, hdr.Kind, cmn.AUTH_INVALID, nil)
		return
	}

	rc, respBody := s.dispatch(hdr.Kind, body)
	s.reply(conn, hdr.Kind, rc, respBody)
}

func (s *server) dispatch(kind int32, body []byte) (cmn.RC, []byte) {
	switch kind {
	case wire.KindPlace:
		return s.handlePlace(body)
	case wire.KindCancel, wire.KindSignal, wire.KindRequeue:
		return s.handleNodeOp(kind, body)
	case wire.KindUpdate:
		return s.handleUpdate(body)
	default:
		return cmn.ERROR, nil
	}
}

// handlePlace decodes body into a real placement.JobRequest (spec.md §6
// field grammar, via decodePlaceRequest) and runs it against a full
// availability bitmap sized to the configured machine.
func (s *server) handlePlace(body []byte) (cmn.RC, []byte) {
	req, err := decodePlaceRequest(body, s.machineNodes)
	if err != nil {
		nlog.Warningf("wlmd: decode place request: %v", err)
		return cmn.ToRC(err), nil
	}
	if req.JobID == "" {
		req.JobID = cos.GenUUID()
	}
	if req.ProcsMax == 0 {
		req.ProcsMax = 1 << 30
	}
	if req.NodesMax == 0 {
		req.NodesMax = s.machineNodes
	}

	avail := cos.NewBitSet(s.machineNodes)
	for i := 0; i < s.machineNodes; i++ {
		avail.Set(i)
	}

	start := time.Now()
	res, err := s.engine.Place(req, avail)
	if s.metrics != nil {
		s.metrics.Observe(start, err == nil)
	}
	if err != nil {
		return cmn.ToRC(err), nil
	}
	if err := s.store.SaveBlock(res.Block); err != nil {
		nlog.Warningf("wlmd: persist block %s: %v", res.Block.ID, err)
	}
	return cmn.SUCCESS, []byte(res.Block.ID)
}

// handleNodeOp resolves the job id leading body to its owning block and
// fans the operation out to every compute-node daemon backing it through
// the forwarding tree (spec.md §2, §4.D), folding the aggregated per-node
// return codes into the single code the client sees (spec.md §5/§7/§8
// scenario 5's cancel-retry contract).
func (s *server) handleNodeOp(kind int32, body []byte) (cmn.RC, []byte) {
	fields := strings.SplitN(string(body), "\x00", 2)
	if len(fields) == 0 || fields[0] == "" {
		return cmn.INVALID_JOB_ID, nil
	}
	jobID := fields[0]

	s.cat.Lock()
	block, ok := s.cat.FindByOwner(jobID)
	s.cat.Unlock()
	if !ok {
		if s.jobKnown(jobID) {
			// known but not yet placed: nothing to forward to yet
			return cmn.JOB_PENDING, nil
		}
		return cmn.INVALID_JOB_ID, nil
	}

	targets := s.targetsForBlock(block)
	if len(targets) == 0 {
		return cmn.JOB_PENDING, nil
	}

	planner := &fanout.Planner{Width: cmn.GCO.Get().Transport.ForwardTreeWidth}
	branchTimeoutMS := int32(cmn.GCO.Get().Timeout.CplaneOperation / time.Millisecond)
	result := planner.Dispatch(context.Background(), targets, branchTimeoutMS,
		func(ctx context.Context, branch []wire.Addr, residualMS int32) ([]wire.RetEntry, error) {
			entries := make([]wire.RetEntry, 0, len(branch))
			for _, addr := range branch {
				var rc cmn.RC
				if kind == wire.KindSignal {
					// Signal delivery is fire-and-forget (spec.md §4.E
					// send_only_node): the node acts on the signal locally
					// and its outcome isn't awaited on this connection.
					rc = s.sendSignalOnly(ctx, addr, kind, body)
				} else {
					rc = s.sendNodeOp(ctx, addr, kind, body, int(residualMS))
				}
				entries = append(entries, wire.RetEntry{
					Kind:       kind,
					ReturnCode: int32(rc),
					PerNode:    []wire.PerNodeData{{NodeName: addr.String()}},
				})
			}
			return entries, nil
		})

	rc := aggregateRC(result.Snapshot())
	if rc == cmn.SUCCESS && kind != wire.KindSignal {
		s.cat.Lock()
		s.cat.MarkFree(block)
		s.cat.Unlock()
		if err := s.store.SaveBlock(block); err != nil {
			nlog.Warningf("wlmd: persist freed block %s: %v", block.ID, err)
		}
	}
	return rc, nil
}

// handleUpdate applies one jobspec.EditSession field edit to a job
// previously persisted via store.SaveJob (spec.md §6's edit-session
// semantics: parse, validate, all-or-nothing apply).
func (s *server) handleUpdate(body []byte) (cmn.RC, []byte) {
	fields := strings.SplitN(string(body), "\x00", 3)
	if len(fields) != 3 {
		return cmn.ERROR, nil
	}
	jobID, field, value := fields[0], fields[1], fields[2]

	jobs, err := s.store.LoadJobs()
	if err != nil {
		nlog.Errorf("wlmd: load jobs for update: %v", err)
		return cmn.ERROR, nil
	}
	var desc *jobspec.JobDesc
	for _, d := range jobs {
		if d.JobID == jobID {
			desc = d
			break
		}
	}
	if desc == nil {
		return cmn.INVALID_JOB_ID, nil
	}

	if err := jobspec.NewEditSession(desc, nil).Set(field, value).Apply(); err != nil {
		nlog.Warningf("wlmd: update job %s: %v", jobID, err)
		return cmn.ToRC(err), nil
	}
	if err := s.store.SaveJob(desc); err != nil {
		nlog.Warningf("wlmd: persist updated job %s: %v", jobID, err)
	}
	return cmn.SUCCESS, nil
}

// jobKnown reports whether jobID has a persisted job-description record,
// distinguishing "pending, not yet placed" (JOB_PENDING) from "never
// existed" (INVALID_JOB_ID) for a cancel/signal/requeue against a job that
// owns no block yet.
func (s *server) jobKnown(jobID string) bool {
	jobs, err := s.store.LoadJobs()
	if err != nil {
		nlog.Warningf("wlmd: load jobs: %v", err)
		return false
	}
	for _, d := range jobs {
		if d.JobID == jobID {
			return true
		}
	}
	return false
}

// targetsForBlock maps a block's bitmap to the compute-node addresses it
// occupies, via the daemon's configured node-address table.
func (s *server) targetsForBlock(b *catalog.Block) []wire.Addr {
	var out []wire.Addr
	for i := 0; i < b.Bitmap.Len(); i++ {
		if b.Bitmap.Test(i) && i < len(s.nodeAddrs) {
			out = append(out, s.nodeAddrs[i])
		}
	}
	return out
}

// aggregateRC folds per-node return codes into the single code the client
// sees: any terminal per-node code wins outright, an all-success result is
// SUCCESS, and anything else (a node not yet reachable or not yet acked)
// is the retriable TRANSITION_STATE_NO_UPDATE spec.md §5/§8 scenario 5's
// cancel-retry loop reacts to.
func aggregateRC(entries []wire.RetEntry) cmn.RC {
	sawFailure := false
	for _, e := range entries {
		rc := cmn.RC(e.ReturnCode)
		if rc.Terminal() {
			return rc
		}
		if rc != cmn.SUCCESS {
			sawFailure = true
		}
	}
	if sawFailure {
		return cmn.TRANSITION_STATE_NO_UPDATE
	}
	return cmn.SUCCESS
}

// sendNodeOp performs one framed send/recv round trip against a
// compute-node daemon via the shared ctrlclient, which does the actual
// connect/frame/auth work (no more hand-rolled duplicate of it here). A
// transport failure is mapped to the retriable TRANSITION_STATE_NO_UPDATE
// rather than a connection-error code: from the cancel-retry contract's
// point of view an unreachable node is exactly the "no update yet" case.
func (s *server) sendNodeOp(ctx context.Context, addr wire.Addr, kind int32, body []byte, timeoutMS int) cmn.RC {
	resp, err := s.rpc.SendRecvNode(ctx, addr, kind, body, timeoutMS, decodeRC)
	if err != nil {
		return cmn.TRANSITION_STATE_NO_UPDATE
	}
	return resp.RC
}

// sendSignalOnly delivers a signal as a fire-and-forget notification
// (spec.md §4.E: send_only_node's "send and the bounded shutdown
// retries" without waiting for a reply). The returned RC reflects only
// whether the message reached the transport, not whether the node acted
// on it — the node's own state change, if any, is observed later through
// a separate channel, not this connection.
func (s *server) sendSignalOnly(ctx context.Context, addr wire.Addr, kind int32, body []byte) cmn.RC {
	if err := s.rpc.SendOnlyNode(ctx, addr, kind, body); err != nil {
		return cmn.TRANSITION_STATE_NO_UPDATE
	}
	return cmn.SUCCESS
}

// decodeRC extracts the 4-byte big-endian return code this daemon's own
// reply() encodes at the start of every response body.
func decodeRC(body []byte) cmn.RC {
	if len(body) < 4 {
		return cmn.ERROR
	}
	return cmn.RC(binary.BigEndian.Uint32(body))
}

func (s *server) reply(conn *xport.Conn, kind int32, rc cmn.RC, body []byte) {
	buf := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(buf, uint32(rc))
	copy(buf[4:], body)

	cred, err := s.auth.Create("")
	if err != nil {
		nlog.Errorf("wlmd: create reply credential: %v", err)
		return
	}
	defer s.auth.Destroy(cred)
	packed, err := s.auth.Pack(cred)
	if err != nil {
		nlog.Errorf("wlmd: pack reply credential: %v", err)
		return
	}

	h := &wire.Header{Version: wire.ProtocolVersion, Kind: kind}
	frame := wire.PackFrame(h, packed, buf)
	if err := conn.WriteAll(frame, 0); err != nil {
		nlog.Warningf("wlmd: write reply: %v", err)
	}
}
