package core

import (
	"fmt"

	"github.com/renan-campos/go-dme/pkg/dme/types"
	"github.com/renan-campos/go-dme/pkg/dme/wire"
)

// ricartEntry is one queued request, local or remote. repliesNeeded
// only means anything for the local entry: it starts at ClusterSize-1
// and is decremented once per REPLY received, matching
// original_source/src/ricart.c's struct qent.reply_count.
type ricartEntry struct {
	node          types.NodeID
	isLocal       bool
	repliesNeeded int
	uid           types.RequestUID
}

// ricartHandler implements Ricart & Agrawala's 1981 optimal mutual
// exclusion algorithm (spec.md §4.3), grounded line-for-line on
// original_source/src/ricart.c: a single ordered queue of (timestamp,
// node) stamped REQUESTs, a broadcast REQUEST on local acquire, and a
// REPLY sent to every queued request that precedes or loses to the
// node's own once that node is done deciding.
type ricartHandler struct {
	self        types.NodeID
	clusterSize int

	clock types.LamportClock
	queue pendingQueue[*ricartEntry]

	localPending bool
}

// NewRicartHandler builds the handler cfg.Algorithm==Ricart selects.
func NewRicartHandler(cfg *types.Config) *ricartHandler {
	return &ricartHandler{
		self:        cfg.NodeID,
		clusterSize: cfg.ClusterSize,
	}
}

// drainReplies sends a REPLY to every queued entry that is not this
// node's own, in queue order, stopping as soon as the local entry (or
// an empty queue) reaches the front — original_source/src/ricart.c's
// "while (ric_front != NULL && ric_front->rmsg.nid != nid)" tail that
// runs after every event.
func (h *ricartHandler) drainReplies() []types.Envelope {
	var out []types.Envelope
	for {
		_, entry, ok := h.queue.Head()
		if !ok || entry.node == h.self {
			break
		}
		h.queue.PopHead()
		ts := h.clock.Tick()
		out = append(out, types.Envelope{
			Class:  types.ToNet,
			Target: entry.node,
			Payload: wire.EncodeRicart(types.RicartMessage{
				Tag:       types.RicartReply,
				Timestamp: ts,
				From:      h.self,
			}),
		})
	}
	return out
}

func (h *ricartHandler) OnLocalRequest(uid types.RequestUID) ([]types.Envelope, error) {
	if h.localPending {
		return nil, fmt.Errorf("%w: ricart: node %d already has a pending local request", ErrProtocolInvariant, h.self)
	}

	ts := h.clock.Tick()
	h.queue.Insert(types.Stamp{Timestamp: ts, Node: h.self}, &ricartEntry{
		node:          h.self,
		isLocal:       true,
		repliesNeeded: h.clusterSize - 1,
		uid:           uid,
	})
	h.localPending = true

	// A single-node cluster needs no replies at all: the grant is
	// immediate, the same boundary case original_source/src/ricart.c's
	// reply_count-starts-at-zero leaves implicit.
	if h.clusterSize == 1 {
		h.queue.UpdateHeadStamp(types.Stamp{Timestamp: 0, Node: h.self})
		return []types.Envelope{{
			Class:   types.ToApp,
			Target:  h.self,
			Payload: []byte(uid),
		}}, nil
	}

	out := []types.Envelope{{
		Class:  types.ToNet,
		Target: types.BroadcastNode,
		Payload: wire.EncodeRicart(types.RicartMessage{
			Tag:       types.RicartRequest,
			Timestamp: ts,
			From:      h.self,
		}),
	}}
	return append(out, h.drainReplies()...), nil
}

func (h *ricartHandler) OnLocalRelease() ([]types.Envelope, error) {
	if !h.localPending {
		return nil, fmt.Errorf("%w: ricart: node %d released with no local request pending", ErrProtocolInvariant, h.self)
	}
	_, entry, ok := h.queue.Head()
	if !ok || entry.node != h.self || entry.repliesNeeded != 0 {
		return nil, fmt.Errorf("%w: ricart: node %d released before being granted the critical section", ErrProtocolInvariant, h.self)
	}

	h.queue.PopHead()
	h.localPending = false
	return h.drainReplies(), nil
}

func (h *ricartHandler) OnMessage(from types.NodeID, wireBytes []byte) ([]types.Envelope, error) {
	msg, err := wire.DecodeRicart(wireBytes)
	if err != nil {
		return nil, err
	}
	h.clock.TickReceive(msg.Timestamp)

	switch msg.Tag {
	case types.RicartRequest:
		h.queue.Insert(types.Stamp{Timestamp: msg.Timestamp, Node: from}, &ricartEntry{node: from})
		return h.drainReplies(), nil

	case types.RicartReply:
		_, entry, ok := h.queue.Head()
		if !ok || entry.node != h.self {
			return nil, fmt.Errorf("%w: ricart: node %d got a REPLY with no local request at the queue head", ErrProtocolInvariant, h.self)
		}
		entry.repliesNeeded--
		if entry.repliesNeeded == 0 {
			h.queue.UpdateHeadStamp(types.Stamp{Timestamp: 0, Node: h.self})
			return []types.Envelope{{
				Class:   types.ToApp,
				Target:  h.self,
				Payload: []byte(entry.uid),
			}}, nil
		}
		return nil, nil

	default:
		return nil, wire.ErrUnknownTag
	}
}
