package core

import (
	"fmt"

	"github.com/renan-campos/go-dme/pkg/dme/types"
	"github.com/renan-campos/go-dme/pkg/dme/wire"
)

// fuchiHandler implements Fuchi's improved sqrt(N) token-passing
// algorithm with anti-starvation (spec.md §4.5). original_source's
// fuchi.c never got past its data-structure declarations (its
// dme_msg_handler switch is five empty cases with TODO comments), so
// this handler is grounded directly on spec.md's rule-by-rule prose
// instead of a working C reference.
type fuchiHandler struct {
	self        types.NodeID
	votingSet   []types.NodeID
	clusterSize int

	clock types.LamportClock
	r     types.FuchiVector
	f     types.FuchiVector

	waitNode    types.NodeID
	waitTime    int64
	oldestStamp int64
	haveToken   bool

	localPending bool
	localUID     types.RequestUID
}

// NewFuchiHandler builds the handler cfg.Algorithm==Fuchi selects. Node
// 1 starts holding the token and announces it with a FINISH broadcast
// (spec.md §4.5 "Initialisation").
func NewFuchiHandler(cfg *types.Config) (*fuchiHandler, error) {
	votingSet := make([]types.NodeID, len(cfg.VotingSet))
	copy(votingSet, cfg.VotingSet)
	h := &fuchiHandler{
		self:        cfg.NodeID,
		votingSet:   votingSet,
		clusterSize: cfg.ClusterSize,
		r:           types.NewFuchiVector(cfg.ClusterSize),
		f:           types.NewFuchiVector(cfg.ClusterSize),
		waitNode:    types.NullNode,
		waitTime:    types.NullTime,
		oldestStamp: types.NullTime,
	}
	if cfg.NodeID == 1 {
		h.haveToken = true
	}
	return h, nil
}

// Init returns the startup envelopes a freshly constructed handler must
// emit before any local or remote event arrives (spec.md §4.5
// "Initialisation": node 1 broadcasts FINISH). The Engine calls this
// once, immediately after construction.
func (h *fuchiHandler) Init() []types.Envelope {
	if h.self != 1 {
		return nil
	}
	out := make([]types.Envelope, 0, len(h.votingSet))
	for _, member := range h.votingSet {
		out = append(out, h.sendFinish(member, h.clock.Peek()))
	}
	return out
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// merge applies spec.md §4.5's shared preamble: advance the scalar
// clock, fold in the sender's F vector, mask any R entry a fresher F
// has already satisfied, then fold in the sender's R vector. Every
// message type performs this identically before its own handling.
func (h *fuchiHandler) merge(msgTimestamp int64, msgR, msgF types.FuchiVector) {
	h.clock.Leap(uint64(msgTimestamp))
	for i := range h.f {
		if i < len(msgF) {
			h.f[i] = maxInt64(h.f[i], msgF[i])
		}
	}
	for i := range h.r {
		if h.r[i] != types.NullTime && h.r[i] <= h.f[i] {
			h.r[i] = types.NullTime
		}
	}
	for i := range h.r {
		if i < len(msgR) {
			h.r[i] = maxInt64(h.r[i], msgR[i])
		}
	}
}

// searchOldestRequest returns the node with the minimum non-null R
// entry, ties broken by lower node id, or NullNode if none is pending.
func (h *fuchiHandler) searchOldestRequest() types.NodeID {
	best := types.NullNode
	var bestTime int64 = types.NullTime
	for i := 1; i < len(h.r); i++ {
		if h.r[i] == types.NullTime {
			continue
		}
		if best == types.NullNode || h.r[i] < bestTime {
			best = types.NodeID(i)
			bestTime = h.r[i]
		}
	}
	return best
}

func (h *fuchiHandler) sendRequest(to types.NodeID, ts int64, oldestStamp int64) types.Envelope {
	return types.Envelope{
		Class:  types.ToNet,
		Target: to,
		Payload: wire.EncodeFuchi(types.FuchiMessage{
			Tag:         types.FuchiRequest,
			Timestamp:   ts,
			Sender:      h.self,
			R:           h.r.Clone(),
			F:           h.f.Clone(),
			OldestStamp: oldestStamp,
		}),
	}
}

func (h *fuchiHandler) sendToken(to types.NodeID, ts int64) types.Envelope {
	return types.Envelope{
		Class:  types.ToNet,
		Target: to,
		Payload: wire.EncodeFuchi(types.FuchiMessage{
			Tag:         types.FuchiToken,
			Timestamp:   ts,
			Sender:      h.self,
			R:           h.r.Clone(),
			F:           h.f.Clone(),
			OldestStamp: types.NullTime,
		}),
	}
}

func (h *fuchiHandler) sendFinish(to types.NodeID, ts int64) types.Envelope {
	return types.Envelope{
		Class:  types.ToNet,
		Target: to,
		Payload: wire.EncodeFuchi(types.FuchiMessage{
			Tag:         types.FuchiFinish,
			Timestamp:   ts,
			Sender:      h.self,
			R:           types.NewFuchiVector(h.clusterSize),
			F:           h.f.Clone(),
			OldestStamp: types.NullTime,
		}),
	}
}

func (h *fuchiHandler) OnLocalRequest(uid types.RequestUID) ([]types.Envelope, error) {
	if h.localPending {
		return nil, fmt.Errorf("%w: fuchi: node %d already has a pending local request", ErrProtocolInvariant, h.self)
	}
	h.localPending = true
	h.localUID = uid

	if h.haveToken {
		h.haveToken = false
		return []types.Envelope{{Class: types.ToApp, Target: h.self, Payload: []byte(uid)}}, nil
	}

	ts := int64(h.clock.Tick())
	h.r[h.self] = ts
	out := make([]types.Envelope, 0, len(h.votingSet))
	for _, member := range h.votingSet {
		out = append(out, h.sendRequest(member, ts, h.oldestStamp))
	}
	return out, nil
}

func (h *fuchiHandler) OnLocalRelease() ([]types.Envelope, error) {
	if !h.localPending {
		return nil, fmt.Errorf("%w: fuchi: node %d released with no local request pending", ErrProtocolInvariant, h.self)
	}
	h.localPending = false

	h.r[h.self] = types.NullTime
	h.f[h.self] = int64(h.clock.Peek())
	next := h.searchOldestRequest()
	ts := int64(h.clock.Tick())

	if next != types.NullNode {
		h.oldestStamp = h.r[next]
		return []types.Envelope{h.sendToken(next, ts)}, nil
	}

	h.haveToken = true
	h.waitNode = types.NullNode
	h.oldestStamp = types.NullTime

	out := make([]types.Envelope, 0, len(h.votingSet))
	for _, member := range h.votingSet {
		out = append(out, h.sendFinish(member, ts))
	}
	return out, nil
}

func (h *fuchiHandler) OnMessage(from types.NodeID, wireBytes []byte) ([]types.Envelope, error) {
	msg, err := wire.DecodeFuchi(wireBytes)
	if err != nil {
		return nil, err
	}

	switch msg.Tag {
	case types.FuchiRequest:
		return h.onRequest(from, msg)
	case types.FuchiToken:
		return h.onToken(from, msg)
	case types.FuchiFinish:
		return h.onFinish(from, msg)
	default:
		return nil, wire.ErrUnknownTag
	}
}

func (h *fuchiHandler) onRequest(from types.NodeID, msg types.FuchiMessage) ([]types.Envelope, error) {
	h.merge(msg.Timestamp, msg.R, msg.F)

	var out []types.Envelope

	if h.waitNode != types.NullNode && h.searchOldestRequest() != types.NullNode && h.waitTime > h.f[h.waitNode] {
		ts := int64(h.clock.Tick())
		out = append(out, h.sendRequest(h.waitNode, ts, h.oldestStamp))
		h.waitNode = types.NullNode
		h.waitTime = types.NullTime
	}

	if msg.OldestStamp != types.NullTime {
		for i := 1; i < len(h.r); i++ {
			if h.r[i] != types.NullTime && msg.OldestStamp < h.r[i] {
				out = append(out, h.sendRequest(from, int64(h.clock.Peek()), h.oldestStamp))
				break
			}
		}
	}

	if h.haveToken {
		next := h.searchOldestRequest()
		if next != types.NullNode {
			h.oldestStamp = h.r[next]
			h.haveToken = false
			out = append(out, h.sendToken(next, int64(h.clock.Peek())))
		}
	}

	return out, nil
}

func (h *fuchiHandler) onToken(from types.NodeID, msg types.FuchiMessage) ([]types.Envelope, error) {
	h.merge(msg.Timestamp, msg.R, msg.F)

	if !h.localPending {
		return nil, fmt.Errorf("%w: fuchi: node %d received TOKEN with no local request pending", ErrProtocolInvariant, h.self)
	}
	// haveToken stays false for the whole critical section, as in the
	// local-grant path of OnLocalRequest, so onRequest cannot hand the
	// token on; OnLocalRelease decides where it goes next.
	h.localPending = false
	return []types.Envelope{{Class: types.ToApp, Target: h.self, Payload: []byte(h.localUID)}}, nil
}

func (h *fuchiHandler) onFinish(from types.NodeID, msg types.FuchiMessage) ([]types.Envelope, error) {
	prevF := h.f[from]
	h.merge(msg.Timestamp, msg.R, msg.F)

	if msg.Timestamp <= prevF {
		return nil, nil
	}

	next := h.searchOldestRequest()
	if next != types.NullNode {
		ts := int64(h.clock.Tick())
		out := []types.Envelope{h.sendRequest(from, ts, types.NullTime)}
		if h.waitNode == from {
			h.waitNode = types.NullNode
			h.waitTime = types.NullTime
		}
		return out, nil
	}

	h.waitNode = from
	h.waitTime = msg.Timestamp
	return nil, nil
}
