package core

import (
	"errors"
	"fmt"
	"sync"

	"github.com/renan-campos/go-dme/pkg/dme/definition"
	"github.com/renan-campos/go-dme/pkg/dme/types"
)

// Engine is the single-threaded per-node runtime spec.md §3/§5
// describes: one Mailbox, one active AlgorithmHandler, and two poll
// goroutines (algorithm dispatch, network intake); only the dispatch
// goroutine calls into the handler. Acquire/Release are the sole entry points a caller's
// own goroutines use; everything past that boundary runs on the
// engine's own goroutines, so the handler never needs a lock.
type Engine struct {
	cfg       *types.Config
	mailbox   *Mailbox
	handler   AlgorithmHandler
	transport Transport
	invoker   Invoker

	// acquireMu serializes Acquire calls: spec.md §4.2 models one
	// locally pending request per node at a time, matching every
	// algorithm's single reply_count/mae_state/fuchi_state field.
	acquireMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

// NewEngine validates cfg, builds the algorithm handler it selects, and
// starts the two poll goroutines through invoker. transport may be nil
// only for single-node testing of the local Acquire/Release path; any
// envelope it would need to send is then logged as an error and dropped.
func NewEngine(cfg *types.Config, transport Transport, invoker Invoker) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = definition.NewDefaultLogger()
	}
	if invoker == nil {
		invoker = InvokerInstance()
	}
	handler, err := newHandler(cfg)
	if err != nil {
		return nil, err
	}

	eng := &Engine{
		cfg:       cfg,
		mailbox:   NewMailbox(),
		handler:   handler,
		transport: transport,
		invoker:   invoker,
		done:      make(chan struct{}),
	}

	invoker.Spawn(eng.pollAlgo)
	if transport != nil {
		invoker.Spawn(eng.pollNet)
	}

	// Fuchi's node 1 must announce the token it starts with; any handler
	// needing start-up traffic implements this optional capability.
	if initializer, ok := handler.(interface{ Init() []types.Envelope }); ok {
		for _, env := range initializer.Init() {
			eng.route(env)
		}
	}
	return eng, nil
}

// newHandler dispatches on cfg.Algorithm to the constructor each
// algorithm file provides (spec.md DESIGN NOTES' capability-interface
// strategy: one switch here stands in for the original's link-time
// file selection).
func newHandler(cfg *types.Config) (AlgorithmHandler, error) {
	switch cfg.Algorithm {
	case types.Ricart:
		return NewRicartHandler(cfg), nil
	case types.Maekawa:
		return NewMaekawaHandler(cfg)
	case types.Fuchi:
		return NewFuchiHandler(cfg)
	case types.Simple:
		return newSimpleHandler(cfg), nil
	default:
		return nil, fmt.Errorf("dme: unknown algorithm %v", cfg.Algorithm)
	}
}

// Acquire blocks the calling goroutine until this node has been granted
// the critical section, returning the correlation id logged alongside
// every protocol message this request produced.
func (eng *Engine) Acquire() (types.RequestUID, error) {
	eng.acquireMu.Lock()
	defer eng.acquireMu.Unlock()

	uid := types.NewRequestUID()
	eng.mailbox.Send(types.Envelope{
		Class:   types.ToAlgo,
		Target:  eng.cfg.NodeID,
		Payload: encodeLocal(kindLocalRequest, uid),
	})

	for {
		select {
		case env, ok := <-eng.mailbox.RecvApp():
			if !ok {
				return "", errors.New("dme: engine closed while waiting for grant")
			}
			if types.RequestUID(env.Payload) == uid {
				return uid, nil
			}
			// A TO_APP envelope for a stale uid should be impossible
			// under the one-pending-request-per-node rule; drop it
			// rather than block forever.
			eng.cfg.Logger.Warnf("dme: discarding TO_APP envelope for unexpected uid %q", env.Payload)
		case <-eng.done:
			return "", errors.New("dme: engine closed")
		}
	}
}

// Release hands the critical section back to the algorithm. It does not
// wait for the resulting protocol traffic to finish; spec.md §4.2 treats
// release as always succeeding immediately from the caller's point of
// view.
func (eng *Engine) Release() {
	eng.mailbox.Send(types.Envelope{
		Class:   types.ToAlgo,
		Target:  eng.cfg.NodeID,
		Payload: encodeLocal(kindLocalRelease, ""),
	})
}

// QueueDepths exposes the engine's Mailbox queue lengths so a caller
// can sample them into a metric (cmd/dmenode's dme_queue_depth gauge).
func (eng *Engine) QueueDepths() map[types.DestClass]int {
	return eng.mailbox.QueueDepths()
}

// Close stops both poll goroutines and releases the transport. Safe to
// call more than once.
func (eng *Engine) Close() error {
	var err error
	eng.closeOnce.Do(func() {
		close(eng.done)
		if eng.transport != nil {
			err = eng.transport.Close()
		}
	})
	return err
}

// pollAlgo is the algorithm dispatch loop: the only goroutine that ever
// calls into eng.handler, per spec.md §5's single-threaded handler rule.
func (eng *Engine) pollAlgo() {
	for {
		select {
		case env, ok := <-eng.mailbox.RecvAlgo():
			if !ok {
				return
			}
			eng.dispatch(env)
		case <-eng.done:
			return
		}
	}
}

func (eng *Engine) dispatch(env types.Envelope) {
	kind, rest := splitKind(env.Payload)

	var out []types.Envelope
	var err error
	switch kind {
	case kindLocalRequest:
		out, err = eng.handler.OnLocalRequest(types.RequestUID(rest))
	case kindLocalRelease:
		out, err = eng.handler.OnLocalRelease()
	case kindProtocol:
		from, wireBytes := splitProtocol(rest)
		out, err = eng.handler.OnMessage(from, wireBytes)
	}

	if err != nil {
		if errors.Is(err, ErrProtocolInvariant) {
			eng.cfg.Logger.Fatalf("dme: node %d: %v", eng.cfg.NodeID, err)
			return
		}
		eng.cfg.Logger.Errorf("dme: node %d: handler error: %v", eng.cfg.NodeID, err)
		return
	}

	for _, o := range out {
		eng.route(o)
	}
}

// route implements spec.md §4.1's destination rule: a TO_NET envelope
// whose target is this node is rewritten to TO_ALGO rather than handed
// to the transport — "this is how e.g. a Maekawa node grants itself a
// LOCK". Broadcast fan-out (Ricart's REQUEST) always leaves the node, so
// it is never subject to the self-check.
func (eng *Engine) route(env types.Envelope) {
	switch env.Class {
	case types.ToApp, types.ToAlgo:
		eng.mailbox.Send(env)

	case types.ToNet:
		if env.Target == types.BroadcastNode {
			if eng.transport == nil {
				eng.cfg.Logger.Errorf("dme: node %d: no transport configured for broadcast", eng.cfg.NodeID)
				return
			}
			if err := eng.transport.Broadcast(env.Payload); err != nil {
				eng.cfg.Logger.Errorf("dme: node %d: broadcast failed: %v", eng.cfg.NodeID, err)
			}
			return
		}
		if env.Target == eng.cfg.NodeID {
			eng.mailbox.Send(types.Envelope{
				Class:   types.ToAlgo,
				Target:  env.Target,
				Payload: encodeProtocol(eng.cfg.NodeID, env.Payload),
			})
			return
		}
		if eng.transport == nil {
			eng.cfg.Logger.Errorf("dme: node %d: no transport configured for unicast to %d", eng.cfg.NodeID, env.Target)
			return
		}
		if err := eng.transport.Unicast(env.Target, env.Payload); err != nil {
			eng.cfg.Logger.Errorf("dme: node %d: unicast to %d failed: %v", eng.cfg.NodeID, env.Target, err)
		}
	}
}

// pollNet forwards every message the transport receives into TO_ALGO,
// wrapping it with the sender id the handler's OnMessage needs.
func (eng *Engine) pollNet() {
	for {
		select {
		case msg, ok := <-eng.transport.Inbound():
			if !ok {
				return
			}
			eng.mailbox.Send(types.Envelope{
				Class:   types.ToAlgo,
				Target:  eng.cfg.NodeID,
				Payload: encodeProtocol(msg.From, msg.Payload),
			})
		case <-eng.done:
			return
		}
	}
}
