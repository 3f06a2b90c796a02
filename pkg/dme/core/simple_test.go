package core

import (
	"testing"

	"github.com/renan-campos/go-dme/pkg/dme/types"
)

func TestSimpleGrantsLocallyWithoutVoting(t *testing.T) {
	h := newSimpleHandler(&types.Config{NodeID: 1})
	uid := types.NewRequestUID()

	out, err := h.OnLocalRequest(uid)
	if err != nil {
		t.Fatalf("OnLocalRequest: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected an announcement plus an immediate grant, got %+v", out)
	}

	var sawBroadcast, sawGrant bool
	for _, env := range out {
		switch env.Class {
		case types.ToNet:
			if env.Target == types.BroadcastNode {
				sawBroadcast = true
			}
		case types.ToApp:
			if types.RequestUID(env.Payload) == uid {
				sawGrant = true
			}
		}
	}
	if !sawBroadcast || !sawGrant {
		t.Fatalf("expected both a broadcast and a grant, got %+v", out)
	}
}

func TestSimpleReleaseIsNoOp(t *testing.T) {
	h := newSimpleHandler(&types.Config{NodeID: 1})
	out, err := h.OnLocalRelease()
	if err != nil || out != nil {
		t.Fatalf("OnLocalRelease() = %v, %v, want nil, nil", out, err)
	}
}
