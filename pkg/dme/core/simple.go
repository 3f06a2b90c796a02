package core

import (
	"encoding/binary"

	"github.com/renan-campos/go-dme/pkg/dme/types"
)

// simpleHandler is the deliberately unsafe "tell everyone, then just go"
// baseline from original_source/src/simple.c: a local acquire announces
// itself to the cluster and is granted the critical section in the same
// step, with no voting and no wait. It exists only as a negative
// control for the mutual-exclusion property tests (SPEC_FULL.md §4) and
// is never offered by the CLI algorithm selector. Its wire payload is a
// four-byte request counter, kept local to this file rather than in
// pkg/dme/wire since it is test-only and never crosses a real bootstrap
// mesh.
type simpleHandler struct {
	self    types.NodeID
	counter uint32
}

func newSimpleHandler(cfg *types.Config) *simpleHandler {
	return &simpleHandler{self: cfg.NodeID}
}

func encodeSimpleCounter(n uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, n)
	return buf
}

func (h *simpleHandler) OnLocalRequest(uid types.RequestUID) ([]types.Envelope, error) {
	h.counter++
	return []types.Envelope{
		{Class: types.ToNet, Target: types.BroadcastNode, Payload: encodeSimpleCounter(h.counter)},
		{Class: types.ToApp, Target: h.self, Payload: []byte(uid)},
	}, nil
}

// OnLocalRelease is a no-op: original_source/src/simple.c's dme_up has
// an empty body, since there was never anything to give back.
func (h *simpleHandler) OnLocalRelease() ([]types.Envelope, error) {
	return nil, nil
}

// OnMessage just observes another node's announcement; simple never
// arbitrates anything, which is exactly the property under test.
func (h *simpleHandler) OnMessage(from types.NodeID, wireBytes []byte) ([]types.Envelope, error) {
	return nil, nil
}
