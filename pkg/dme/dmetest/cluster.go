// Package dmetest builds in-memory node clusters for exercising
// pkg/dme/core without a real TCP mesh, grounded on the teacher's
// test/testing.go UnityCluster helper (CreateCluster/Next/PoweroffUnity)
// adapted from a replicated-storage unity to a DME node.
package dmetest

import (
	"fmt"
	"sync"

	"github.com/renan-campos/go-dme/pkg/dme/core"
	"github.com/renan-campos/go-dme/pkg/dme/types"
)

// memTransport wires one node's core.Transport directly to its peers'
// inbound channels; Broadcast/Unicast never leave process memory, so
// the cluster runs deterministically fast under `go test`.
type memTransport struct {
	self  types.NodeID
	peers map[types.NodeID]chan core.InboundMessage
	inbox chan core.InboundMessage

	closeOnce sync.Once
}

func (m *memTransport) Unicast(to types.NodeID, payload []byte) error {
	ch, ok := m.peers[to]
	if !ok {
		return fmt.Errorf("dmetest: no peer %d", to)
	}
	ch <- core.InboundMessage{From: m.self, Payload: payload}
	return nil
}

func (m *memTransport) Broadcast(payload []byte) error {
	for id, ch := range m.peers {
		if id == m.self {
			continue
		}
		ch <- core.InboundMessage{From: m.self, Payload: payload}
	}
	return nil
}

func (m *memTransport) Inbound() <-chan core.InboundMessage {
	return m.inbox
}

func (m *memTransport) Close() error {
	m.closeOnce.Do(func() { close(m.inbox) })
	return nil
}

// Cluster is a set of Engines wired together over memTransport, one per
// node id 1..N, all sharing the given algorithm and, where required, the
// builtin voting-set family for N.
type Cluster struct {
	Nodes []*core.Engine
}

// NewCluster builds an N-node in-memory cluster running algorithm.
func NewCluster(n int, algorithm types.Algorithm, logger types.Logger) (*Cluster, error) {
	inboxes := make(map[types.NodeID]chan core.InboundMessage, n)
	for id := 1; id <= n; id++ {
		inboxes[types.NodeID(id)] = make(chan core.InboundMessage, 4096)
	}

	var family *types.VotingSetFamily
	if algorithm == types.Maekawa || algorithm == types.Fuchi {
		f, err := types.BuiltinVotingSetFamily(n)
		if err != nil {
			return nil, err
		}
		family = &f
	}

	c := &Cluster{}
	for id := 1; id <= n; id++ {
		node := types.NodeID(id)
		peers := make(map[types.NodeID]chan core.InboundMessage, n-1)
		for pid, ch := range inboxes {
			if pid != node {
				peers[pid] = ch
			}
		}
		transport := &memTransport{self: node, peers: peers, inbox: inboxes[node]}

		cfg := &types.Config{
			NodeID:      node,
			ClusterSize: n,
			Algorithm:   algorithm,
			Logger:      logger,
		}
		if family != nil {
			cfg.VotingSet = family.For(node)
		}

		eng, err := core.NewEngine(cfg, transport, core.InvokerInstance())
		if err != nil {
			return nil, fmt.Errorf("dmetest: node %d: %w", id, err)
		}
		c.Nodes = append(c.Nodes, eng)
	}
	return c, nil
}

// Close shuts every node down.
func (c *Cluster) Close() {
	var wg sync.WaitGroup
	for _, n := range c.Nodes {
		wg.Add(1)
		go func(n *core.Engine) {
			defer wg.Done()
			n.Close()
		}(n)
	}
	wg.Wait()
}
