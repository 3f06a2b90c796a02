package core

import (
	"errors"
	"testing"

	"github.com/renan-campos/go-dme/pkg/dme/types"
	"github.com/renan-campos/go-dme/pkg/dme/wire"
)

func fuchiCfg(node types.NodeID, clusterSize int, votingSet []types.NodeID) *types.Config {
	return &types.Config{NodeID: node, ClusterSize: clusterSize, Algorithm: types.Fuchi, VotingSet: votingSet}
}

func TestFuchiNodeOneStartsWithToken(t *testing.T) {
	h, err := NewFuchiHandler(fuchiCfg(1, 3, []types.NodeID{1, 2, 3}))
	if err != nil {
		t.Fatalf("NewFuchiHandler: %v", err)
	}
	if !h.haveToken {
		t.Fatal("node 1 must start holding the token")
	}

	uid := types.NewRequestUID()
	out, err := h.OnLocalRequest(uid)
	if err != nil {
		t.Fatalf("OnLocalRequest: %v", err)
	}
	if len(out) != 1 || out[0].Class != types.ToApp || types.RequestUID(out[0].Payload) != uid {
		t.Fatalf("expected an immediate grant, got %+v", out)
	}
	if h.haveToken {
		t.Fatal("token must be consumed once granted locally")
	}
}

func TestFuchiInitBroadcastsFinishFromNodeOneOnly(t *testing.T) {
	h1, err := NewFuchiHandler(fuchiCfg(1, 3, []types.NodeID{1, 2, 3}))
	if err != nil {
		t.Fatalf("NewFuchiHandler: %v", err)
	}
	out := h1.Init()
	if len(out) != 3 {
		t.Fatalf("expected one FINISH per voting-set member, got %d", len(out))
	}
	for _, env := range out {
		msg, err := wire.DecodeFuchi(env.Payload)
		if err != nil {
			t.Fatalf("DecodeFuchi: %v", err)
		}
		if msg.Tag != types.FuchiFinish {
			t.Fatalf("tag = %v, want FuchiFinish", msg.Tag)
		}
	}

	h2, err := NewFuchiHandler(fuchiCfg(2, 3, []types.NodeID{1, 2, 3}))
	if err != nil {
		t.Fatalf("NewFuchiHandler: %v", err)
	}
	if out := h2.Init(); out != nil {
		t.Fatalf("non-token-holder Init() = %+v, want nil", out)
	}
}

func TestFuchiTokenTransfersToRequesterThenGrants(t *testing.T) {
	h1, err := NewFuchiHandler(fuchiCfg(1, 2, []types.NodeID{1, 2}))
	if err != nil {
		t.Fatalf("NewFuchiHandler(1): %v", err)
	}
	h2, err := NewFuchiHandler(fuchiCfg(2, 2, []types.NodeID{1, 2}))
	if err != nil {
		t.Fatalf("NewFuchiHandler(2): %v", err)
	}

	uid := types.NewRequestUID()
	requestOut, err := h2.OnLocalRequest(uid)
	if err != nil {
		t.Fatalf("h2.OnLocalRequest: %v", err)
	}
	if len(requestOut) != 2 {
		t.Fatalf("expected one REQUEST per voting-set member, got %d", len(requestOut))
	}

	var toNode1 types.Envelope
	found := false
	for _, env := range requestOut {
		if env.Target == types.NodeID(1) {
			toNode1 = env
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a REQUEST targeting node 1, got %+v", requestOut)
	}

	tokenOut, err := h1.OnMessage(2, toNode1.Payload)
	if err != nil {
		t.Fatalf("h1.OnMessage(request): %v", err)
	}
	if len(tokenOut) != 1 {
		t.Fatalf("expected node 1 to transfer the token, got %+v", tokenOut)
	}
	tokenMsg, err := wire.DecodeFuchi(tokenOut[0].Payload)
	if err != nil {
		t.Fatalf("DecodeFuchi: %v", err)
	}
	if tokenMsg.Tag != types.FuchiToken || tokenOut[0].Target != types.NodeID(2) {
		t.Fatalf("expected TOKEN to node 2, got %+v", tokenOut[0])
	}
	if h1.haveToken {
		t.Fatal("node 1 must give up the token once transferred")
	}

	grantOut, err := h2.OnMessage(1, tokenOut[0].Payload)
	if err != nil {
		t.Fatalf("h2.OnMessage(token): %v", err)
	}
	if len(grantOut) != 1 || grantOut[0].Class != types.ToApp || types.RequestUID(grantOut[0].Payload) != uid {
		t.Fatalf("expected node 2 to be granted, got %+v", grantOut)
	}
}

func TestFuchiTokenWithoutPendingRequestIsProtocolInvariantViolation(t *testing.T) {
	h, err := NewFuchiHandler(fuchiCfg(2, 2, []types.NodeID{1, 2}))
	if err != nil {
		t.Fatalf("NewFuchiHandler: %v", err)
	}
	payload := wire.EncodeFuchi(types.FuchiMessage{Tag: types.FuchiToken, R: types.NewFuchiVector(2), F: types.NewFuchiVector(2)})
	if _, err := h.OnMessage(1, payload); !errors.Is(err, ErrProtocolInvariant) {
		t.Fatalf("err = %v, want ErrProtocolInvariant", err)
	}
}

func TestFuchiFinishSetsWaitNodeWhenNothingPending(t *testing.T) {
	h, err := NewFuchiHandler(fuchiCfg(2, 4, []types.NodeID{2, 3, 4}))
	if err != nil {
		t.Fatalf("NewFuchiHandler: %v", err)
	}
	payload := wire.EncodeFuchi(types.FuchiMessage{
		Tag:       types.FuchiFinish,
		Timestamp: 5,
		Sender:    3,
		R:         types.NewFuchiVector(4),
		F:         types.NewFuchiVector(4),
	})
	out, err := h.OnMessage(3, payload)
	if err != nil {
		t.Fatalf("OnMessage(finish): %v", err)
	}
	if out != nil {
		t.Fatalf("expected no envelopes, got %+v", out)
	}
	if h.waitNode != 3 || h.waitTime != 5 {
		t.Fatalf("waitNode=%d waitTime=%d, want 3,5", h.waitNode, h.waitTime)
	}
}

func TestFuchiFinishForwardsRequestWhenOneIsPending(t *testing.T) {
	h, err := NewFuchiHandler(fuchiCfg(2, 4, []types.NodeID{2, 3, 4}))
	if err != nil {
		t.Fatalf("NewFuchiHandler: %v", err)
	}
	// Simulate having already learned of node 4's outstanding request.
	h.r[4] = 2

	payload := wire.EncodeFuchi(types.FuchiMessage{
		Tag:       types.FuchiFinish,
		Timestamp: 5,
		Sender:    3,
		R:         types.NewFuchiVector(4),
		F:         types.NewFuchiVector(4),
	})
	out, err := h.OnMessage(3, payload)
	if err != nil {
		t.Fatalf("OnMessage(finish): %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected a single forwarded REQUEST, got %+v", out)
	}
	msg, err := wire.DecodeFuchi(out[0].Payload)
	if err != nil {
		t.Fatalf("DecodeFuchi: %v", err)
	}
	if msg.Tag != types.FuchiRequest || out[0].Target != types.NodeID(3) {
		t.Fatalf("expected forwarded REQUEST to node 3 (the finisher), got %+v", out[0])
	}
}

func TestFuchiOnRequestBouncesAtMostOnceWhenOldestStampDominates(t *testing.T) {
	h, err := NewFuchiHandler(fuchiCfg(2, 6, []types.NodeID{2, 4, 6}))
	if err != nil {
		t.Fatalf("NewFuchiHandler: %v", err)
	}
	h.haveToken = false
	// Two outstanding requests this node already knows about, both newer
	// than the incoming OldestStamp.
	h.r[4] = 10
	h.r[5] = 12

	payload := wire.EncodeFuchi(types.FuchiMessage{
		Tag:         types.FuchiRequest,
		Timestamp:   1,
		Sender:      6,
		R:           types.NewFuchiVector(6),
		F:           types.NewFuchiVector(6),
		OldestStamp: 3,
	})
	out, err := h.OnMessage(6, payload)
	if err != nil {
		t.Fatalf("OnMessage(request): %v", err)
	}

	bounces := 0
	for _, env := range out {
		msg, err := wire.DecodeFuchi(env.Payload)
		if err != nil {
			t.Fatalf("DecodeFuchi: %v", err)
		}
		if msg.Tag == types.FuchiRequest && env.Target == types.NodeID(6) {
			bounces++
		}
	}
	if bounces != 1 {
		t.Fatalf("expected exactly one bounced REQUEST back to node 6, got %d (out=%+v)", bounces, out)
	}
}
