package core

import (
	"errors"
	"testing"

	"github.com/renan-campos/go-dme/pkg/dme/types"
	"github.com/renan-campos/go-dme/pkg/dme/wire"
)

func ricartCfg(node types.NodeID, clusterSize int) *types.Config {
	return &types.Config{NodeID: node, ClusterSize: clusterSize, Algorithm: types.Ricart}
}

func TestRicartSingleNodeGrantsImmediately(t *testing.T) {
	h := NewRicartHandler(ricartCfg(1, 1))
	uid := types.NewRequestUID()

	out, err := h.OnLocalRequest(uid)
	if err != nil {
		t.Fatalf("OnLocalRequest: %v", err)
	}
	if len(out) != 1 || out[0].Class != types.ToApp || types.RequestUID(out[0].Payload) != uid {
		t.Fatalf("expected a single immediate ToApp grant, got %+v", out)
	}
}

func TestRicartBroadcastsAndWaitsForReplies(t *testing.T) {
	h := NewRicartHandler(ricartCfg(1, 3))
	uid := types.NewRequestUID()

	out, err := h.OnLocalRequest(uid)
	if err != nil {
		t.Fatalf("OnLocalRequest: %v", err)
	}
	if len(out) != 1 || out[0].Target != types.BroadcastNode {
		t.Fatalf("expected a single broadcast REQUEST, got %+v", out)
	}

	// First REPLY: not granted yet.
	reply := wire.EncodeRicart(types.RicartMessage{Tag: types.RicartReply, Timestamp: 10, From: 2})
	out, err = h.OnMessage(2, reply)
	if err != nil {
		t.Fatalf("OnMessage(reply 1): %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no grant after first reply, got %+v", out)
	}

	// Second REPLY: now granted.
	out, err = h.OnMessage(3, wire.EncodeRicart(types.RicartMessage{Tag: types.RicartReply, Timestamp: 11, From: 3}))
	if err != nil {
		t.Fatalf("OnMessage(reply 2): %v", err)
	}
	if len(out) != 1 || out[0].Class != types.ToApp || types.RequestUID(out[0].Payload) != uid {
		t.Fatalf("expected grant after second reply, got %+v", out)
	}
}

func TestRicartRemoteRequestPrecedingLocalGetsImmediateReply(t *testing.T) {
	h := NewRicartHandler(ricartCfg(2, 3))
	if _, err := h.OnLocalRequest(types.NewRequestUID()); err != nil {
		t.Fatalf("OnLocalRequest: %v", err)
	}
	// h.clock is now 1 (from the local Tick). A remote REQUEST stamped
	// lower precedes the local entry and must be replied to immediately.
	out, err := h.OnMessage(1, wire.EncodeRicart(types.RicartMessage{Tag: types.RicartRequest, Timestamp: 0, From: 1}))
	if err != nil {
		t.Fatalf("OnMessage(request): %v", err)
	}
	if len(out) != 1 || out[0].Target != types.NodeID(1) {
		t.Fatalf("expected an immediate REPLY to node 1, got %+v", out)
	}
	msg, err := wire.DecodeRicart(out[0].Payload)
	if err != nil {
		t.Fatalf("DecodeRicart: %v", err)
	}
	if msg.Tag != types.RicartReply {
		t.Fatalf("tag = %v, want RicartReply", msg.Tag)
	}
}

func TestRicartReleaseBeforeGrantIsProtocolInvariantViolation(t *testing.T) {
	h := NewRicartHandler(ricartCfg(1, 3))
	if _, err := h.OnLocalRequest(types.NewRequestUID()); err != nil {
		t.Fatalf("OnLocalRequest: %v", err)
	}
	if _, err := h.OnLocalRelease(); !errors.Is(err, ErrProtocolInvariant) {
		t.Fatalf("OnLocalRelease before grant: err = %v, want ErrProtocolInvariant", err)
	}
}

func TestRicartDoubleLocalRequestIsProtocolInvariantViolation(t *testing.T) {
	h := NewRicartHandler(ricartCfg(1, 3))
	if _, err := h.OnLocalRequest(types.NewRequestUID()); err != nil {
		t.Fatalf("OnLocalRequest: %v", err)
	}
	if _, err := h.OnLocalRequest(types.NewRequestUID()); !errors.Is(err, ErrProtocolInvariant) {
		t.Fatalf("second OnLocalRequest: err = %v, want ErrProtocolInvariant", err)
	}
}
