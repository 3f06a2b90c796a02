package core

import "github.com/renan-campos/go-dme/pkg/dme/types"

// mailboxCapacity bounds each per-class queue. spec.md §4.1 asks for a
// non-blocking send that must not drop; a generously sized buffered
// channel is the same pragmatic compromise the teacher repo makes for
// its own transport producer channel (core/transport.go's
// `producer chan types.Message, 100`) rather than a hand-rolled
// unbounded queue — traffic on a single node's mailbox is bounded by
// the cluster size and the number of concurrently pending local
// requests, both small in practice.
const mailboxCapacity = 4096

// Mailbox is the single multi-producer, single-consumer queue of typed
// envelopes described in spec.md §4.1. It is the only synchronization
// primitive the core uses: three independent channels give FIFO-per-
// class delivery without imposing any ordering across classes.
type Mailbox struct {
	toAlgo chan types.Envelope
	toApp  chan types.Envelope
	toNet  chan types.Envelope
}

// NewMailbox allocates a Mailbox with the default capacity.
func NewMailbox() *Mailbox {
	return &Mailbox{
		toAlgo: make(chan types.Envelope, mailboxCapacity),
		toApp:  make(chan types.Envelope, mailboxCapacity),
		toNet:  make(chan types.Envelope, mailboxCapacity),
	}
}

// Send enqueues an envelope onto the queue named by its Class.
func (m *Mailbox) Send(e types.Envelope) {
	switch e.Class {
	case types.ToAlgo:
		m.toAlgo <- e
	case types.ToApp:
		m.toApp <- e
	case types.ToNet:
		m.toNet <- e
	}
}

// RecvAlgo exposes the TO_ALGO queue for the algorithm handler's poll
// loop to range/select over.
func (m *Mailbox) RecvAlgo() <-chan types.Envelope {
	return m.toAlgo
}

// RecvApp exposes the TO_APP queue; Engine.Acquire blocks on this.
func (m *Mailbox) RecvApp() <-chan types.Envelope {
	return m.toApp
}

// RecvNet exposes the TO_NET queue. Engine.route hands TO_NET envelopes
// straight to its Transport, so the Engine never fills or drains it.
func (m *Mailbox) RecvNet() <-chan types.Envelope {
	return m.toNet
}

// QueueDepths reports the current buffered length of each per-class
// queue, keyed by destination class (types.ToAlgo, types.ToApp,
// types.ToNet). Callers sample this periodically to feed
// the dme_queue_depth gauge; it is a point-in-time read with no
// synchronization beyond len()'s own, acceptable for a metrics sample.
func (m *Mailbox) QueueDepths() map[types.DestClass]int {
	return map[types.DestClass]int{
		types.ToAlgo: len(m.toAlgo),
		types.ToApp:  len(m.toApp),
		types.ToNet:  len(m.toNet),
	}
}
