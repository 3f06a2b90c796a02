package core

import (
	"fmt"

	"github.com/renan-campos/go-dme/pkg/dme/types"
	"github.com/renan-campos/go-dme/pkg/dme/wire"
)

// maekawaGrantEntry is one entry in a node's own arbitration queue: the
// requester currently waiting on (or holding) this node's vote.
// original_source/src/maekawa.c's struct qent, entries ordered by
// (clk,nid) precedence with the front entry holding the vote.
type maekawaGrantEntry struct {
	node  types.NodeID
	stamp types.Stamp
}

// maekawaHandler implements Maekawa's sqrt(N) quorum algorithm
// (spec.md §4.4), grounded line-for-line on
// original_source/src/maekawa.c. Every node plays both roles the
// original's single set of globals encodes: requester bookkeeping
// (lockCount/fflag/inqSent/inquirers) for its own pending bid, and
// granter bookkeeping (grantQueue) arbitrating the vote this node casts
// for whichever member of its voting set currently holds it — including
// itself, since a node's own voting set always contains its own id.
type maekawaHandler struct {
	self        types.NodeID
	votingSet   []types.NodeID
	clusterSize int

	clock types.LamportClock

	// Requester-side state for this node's own pending bid.
	lockCount int
	localUID  types.RequestUID
	fflag     bool
	inqSent   bool
	inquirers []types.NodeID

	// Granter-side state: who this node currently votes for.
	grantQueue []maekawaGrantEntry
}

// NewMaekawaHandler builds the handler cfg.Algorithm==Maekawa selects.
// cfg.Validate has already confirmed VotingSet is non-empty and
// contains cfg.NodeID.
func NewMaekawaHandler(cfg *types.Config) (*maekawaHandler, error) {
	votingSet := make([]types.NodeID, len(cfg.VotingSet))
	copy(votingSet, cfg.VotingSet)
	return &maekawaHandler{
		self:        cfg.NodeID,
		votingSet:   votingSet,
		clusterSize: cfg.ClusterSize,
	}, nil
}

func (h *maekawaHandler) send(to types.NodeID, tag types.MaekawaTag, ts uint64) types.Envelope {
	return types.Envelope{
		Class:  types.ToNet,
		Target: to,
		Payload: wire.EncodeMaekawa(types.MaekawaMessage{
			Tag:       tag,
			Timestamp: ts,
			From:      h.self,
		}),
	}
}

func (h *maekawaHandler) OnLocalRequest(uid types.RequestUID) ([]types.Envelope, error) {
	if h.localUID != "" {
		return nil, fmt.Errorf("%w: maekawa: node %d already has a pending local request", ErrProtocolInvariant, h.self)
	}
	h.localUID = uid
	h.lockCount = 0

	ts := h.clock.Tick()
	out := make([]types.Envelope, 0, len(h.votingSet))
	for _, member := range h.votingSet {
		out = append(out, h.send(member, types.MaekawaRequest, ts))
	}
	return out, nil
}

func (h *maekawaHandler) OnLocalRelease() ([]types.Envelope, error) {
	if h.localUID == "" {
		return nil, fmt.Errorf("%w: maekawa: node %d released with no local request pending", ErrProtocolInvariant, h.self)
	}
	h.localUID = ""

	ts := h.clock.Tick()
	out := make([]types.Envelope, 0, len(h.votingSet))
	for _, member := range h.votingSet {
		out = append(out, h.send(member, types.MaekawaRelease, ts))
	}
	return out, nil
}

func (h *maekawaHandler) OnMessage(from types.NodeID, wireBytes []byte) ([]types.Envelope, error) {
	msg, err := wire.DecodeMaekawa(wireBytes)
	if err != nil {
		return nil, err
	}
	h.clock.TickReceive(msg.Timestamp)

	switch msg.Tag {
	case types.MaekawaRequest:
		return h.onRequest(from, msg.Timestamp)
	case types.MaekawaLock:
		return h.onLock()
	case types.MaekawaFail:
		return h.onFail()
	case types.MaekawaInquiry:
		return h.onInquiry(from)
	case types.MaekawaRelinquish:
		return h.onRelinquish(from)
	case types.MaekawaRelease:
		return h.onRelease()
	default:
		return nil, wire.ErrUnknownTag
	}
}

// onRequest arbitrates this node's vote among its own requesters
// (original_source/src/maekawa.c's REQUEST case). The new entry always
// ends up at its precedes-ordered position behind the current vote
// holder; only the branch taken (grant, inquire, or requeue-behind-
// inquiry, or fail) differs.
func (h *maekawaHandler) onRequest(from types.NodeID, ts uint64) ([]types.Envelope, error) {
	entry := maekawaGrantEntry{node: from, stamp: types.Stamp{Timestamp: ts, Node: from}}

	if len(h.grantQueue) == 0 {
		h.grantQueue = []maekawaGrantEntry{entry}
		return []types.Envelope{h.send(from, types.MaekawaLock, h.clock.Peek())}, nil
	}

	idx := 0
	for idx < len(h.grantQueue) && h.grantQueue[idx].stamp.Precedes(entry.stamp) {
		idx++
	}

	if idx == 0 && entry.stamp.Precedes(h.grantQueue[0].stamp) {
		if !h.inqSent {
			out := []types.Envelope{h.send(h.grantQueue[0].node, types.MaekawaInquiry, h.clock.Peek())}
			h.inqSent = true
			h.grantQueue = insertGrantAt(h.grantQueue, 1, entry)
			return out, nil
		}
		j := 1
		for j < len(h.grantQueue) && h.grantQueue[j].stamp.Precedes(entry.stamp) {
			j++
		}
		h.grantQueue = insertGrantAt(h.grantQueue, j, entry)
		return nil, nil
	}

	var out []types.Envelope
	if from != h.self {
		out = append(out, h.send(from, types.MaekawaFail, h.clock.Peek()))
	}
	h.grantQueue = insertGrantAt(h.grantQueue, idx, entry)
	return out, nil
}

// onLock counts a vote towards this node's own pending bid, granting
// the critical section once every voting-set member has replied.
func (h *maekawaHandler) onLock() ([]types.Envelope, error) {
	h.lockCount++
	if h.lockCount != len(h.votingSet) {
		return nil, nil
	}
	h.fflag = false
	h.inquirers = nil
	return []types.Envelope{{
		Class:   types.ToApp,
		Target:  h.self,
		Payload: []byte(h.localUID),
	}}, nil
}

// onFail marks this node's own bid as failed and immediately gives back
// every vote an INQUIRY has already asked for, so those granters can
// move on.
func (h *maekawaHandler) onFail() ([]types.Envelope, error) {
	h.fflag = true
	return h.drainInquirers(), nil
}

// onInquiry records a request (from a node currently voting for this
// node) to give that vote back; if this node's own bid has already
// failed, it relinquishes immediately rather than making the inquirer
// wait.
func (h *maekawaHandler) onInquiry(from types.NodeID) ([]types.Envelope, error) {
	if len(h.grantQueue) == 0 || h.lockCount == len(h.votingSet) {
		return nil, nil
	}
	h.inquirers = append([]types.NodeID{from}, h.inquirers...)
	if h.fflag {
		return h.drainInquirers(), nil
	}
	return nil, nil
}

// drainInquirers sends RELINQUISH to every node waiting on this node to
// give back a vote, decrementing lockCount once per vote surrendered.
func (h *maekawaHandler) drainInquirers() []types.Envelope {
	out := make([]types.Envelope, 0, len(h.inquirers))
	for _, node := range h.inquirers {
		out = append(out, h.send(node, types.MaekawaRelinquish, h.clock.Peek()))
		h.lockCount--
	}
	h.inquirers = nil
	return out
}

// onRelinquish handles a requester giving back the vote this node had
// already cast for it: the old front entry is requeued (not
// dropped — it resumes waiting for its turn rather than re-requesting),
// and the new front is granted the vote.
func (h *maekawaHandler) onRelinquish(from types.NodeID) ([]types.Envelope, error) {
	if len(h.grantQueue) == 0 {
		return nil, fmt.Errorf("%w: maekawa: node %d got RELINQUISH with an empty grant queue", ErrProtocolInvariant, h.self)
	}
	front := h.grantQueue[0]
	if front.node == h.self && from != h.self {
		h.lockCount--
	}

	h.grantQueue = h.grantQueue[1:]
	if len(h.grantQueue) == 0 {
		return nil, fmt.Errorf("%w: maekawa: node %d has no requeue target after RELINQUISH", ErrProtocolInvariant, h.self)
	}
	idx := 0
	for idx < len(h.grantQueue) && h.grantQueue[idx].stamp.Precedes(front.stamp) {
		idx++
	}
	h.grantQueue = insertGrantAt(h.grantQueue, idx, front)

	return []types.Envelope{h.send(h.grantQueue[0].node, types.MaekawaLock, h.clock.Peek())}, nil
}

// onRelease permanently drops the node this node had been voting for
// and grants the vote to whoever is next.
func (h *maekawaHandler) onRelease() ([]types.Envelope, error) {
	h.inqSent = false
	if len(h.grantQueue) == 0 {
		return nil, fmt.Errorf("%w: maekawa: node %d got RELEASE with an empty grant queue", ErrProtocolInvariant, h.self)
	}
	if h.grantQueue[0].node == h.self {
		h.lockCount = 0
	}
	h.grantQueue = h.grantQueue[1:]
	if len(h.grantQueue) == 0 {
		return nil, nil
	}
	return []types.Envelope{h.send(h.grantQueue[0].node, types.MaekawaLock, h.clock.Peek())}, nil
}

func insertGrantAt(q []maekawaGrantEntry, idx int, e maekawaGrantEntry) []maekawaGrantEntry {
	q = append(q, maekawaGrantEntry{})
	copy(q[idx+1:], q[idx:])
	q[idx] = e
	return q
}
