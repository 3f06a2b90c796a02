package core

import (
	"errors"

	"github.com/renan-campos/go-dme/pkg/dme/types"
)

// ErrProtocolInvariant is returned by a handler when it observes state
// that should be impossible under FIFO, single-algorithm delivery —
// e.g. Ricart's queue head not being the local entry when a REPLY count
// reaches zero (spec.md §7, "Protocol invariant violations"). The
// Engine treats it as fatal.
var ErrProtocolInvariant = errors.New("dme: protocol invariant violation")

// envelopeKind discriminates what a TO_ALGO envelope's payload holds.
// It is an internal mailbox convention, not part of the external wire
// format (pkg/dme/wire only ever sees the protocol-message bytes that
// follow it).
type envelopeKind uint8

const (
	kindLocalRequest envelopeKind = iota
	kindLocalRelease
	kindProtocol
)

// encodeLocal builds a TO_ALGO payload for a local Acquire/Release
// event, carrying the correlation uid for logging.
func encodeLocal(kind envelopeKind, uid types.RequestUID) []byte {
	id := []byte(uid)
	buf := make([]byte, 1+len(id))
	buf[0] = byte(kind)
	copy(buf[1:], id)
	return buf
}

// encodeProtocol wraps already wire-encoded message bytes, plus the
// sender's node id, for the TO_ALGO queue. The sender is only needed
// once an envelope reaches TO_ALGO (for self-sends it is the local node
// id; for network arrivals it is the peer the transport received from)
// so it travels alongside the wire bytes rather than inside them.
func encodeProtocol(from types.NodeID, wireBytes []byte) []byte {
	buf := make([]byte, 1+4+len(wireBytes))
	buf[0] = byte(kindProtocol)
	buf[1] = byte(from >> 24)
	buf[2] = byte(from >> 16)
	buf[3] = byte(from >> 8)
	buf[4] = byte(from)
	copy(buf[5:], wireBytes)
	return buf
}

// splitKind separates the discriminator byte from the rest of an
// envelope payload.
func splitKind(payload []byte) (envelopeKind, []byte) {
	if len(payload) == 0 {
		return kindProtocol, nil
	}
	return envelopeKind(payload[0]), payload[1:]
}

// splitProtocol separates the sender node id from the wire bytes inside
// a kindProtocol TO_ALGO payload (the part splitKind returned as rest).
func splitProtocol(rest []byte) (types.NodeID, []byte) {
	if len(rest) < 4 {
		return 0, nil
	}
	from := types.NodeID(rest[0])<<24 | types.NodeID(rest[1])<<16 | types.NodeID(rest[2])<<8 | types.NodeID(rest[3])
	return from, rest[4:]
}

// AlgorithmHandler is the capability every pluggable DME protocol
// implements (spec.md DESIGN NOTES, "Polymorphism by link-time
// substitution" strategy: a capability interface with three
// implementers instead of the original's link-time file selection).
// Each method runs to completion before the next is invoked — the
// Engine's poll loop is the only caller, so handler state never needs
// its own locking (spec.md §5).
type AlgorithmHandler interface {
	// OnLocalRequest handles a local Acquire() call.
	OnLocalRequest(uid types.RequestUID) ([]types.Envelope, error)

	// OnLocalRelease handles a local Release() call.
	OnLocalRelease() ([]types.Envelope, error)

	// OnMessage handles a protocol message received from a peer (or
	// self-routed). wireBytes is the algorithm-specific encoding
	// produced by pkg/dme/wire for this handler's algorithm.
	OnMessage(from types.NodeID, wireBytes []byte) ([]types.Envelope, error)
}

// pendingQueue is the ordered sequence of (timestamp, node-id) stamped
// entries Ricart keeps (Maekawa orders its own grant queue in
// maekawa.go): spec.md DESIGN NOTES calls for
// "an ordered sequence supporting insert-at-precedes-position, pop-head,
// and traversal" backed by value records, not a linked list of pointers.
type pendingQueue[T any] struct {
	entries []queueEntry[T]
}

type queueEntry[T any] struct {
	stamp types.Stamp
	value T
}

// Insert places value at its precedes-ordered position.
func (q *pendingQueue[T]) Insert(stamp types.Stamp, value T) {
	idx := len(q.entries)
	for i, e := range q.entries {
		if stamp.Precedes(e.stamp) {
			idx = i
			break
		}
	}
	q.entries = append(q.entries, queueEntry[T]{})
	copy(q.entries[idx+1:], q.entries[idx:])
	q.entries[idx] = queueEntry[T]{stamp: stamp, value: value}
}

// Len returns the number of entries currently queued.
func (q *pendingQueue[T]) Len() int {
	return len(q.entries)
}

// Head returns the first entry without removing it.
func (q *pendingQueue[T]) Head() (types.Stamp, T, bool) {
	var zero T
	if len(q.entries) == 0 {
		return types.Stamp{}, zero, false
	}
	return q.entries[0].stamp, q.entries[0].value, true
}

// PopHead removes and returns the first entry.
func (q *pendingQueue[T]) PopHead() (types.Stamp, T, bool) {
	stamp, value, ok := q.Head()
	if ok {
		q.entries = q.entries[1:]
	}
	return stamp, value, ok
}

// Remove deletes the first entry matching predicate and returns it.
func (q *pendingQueue[T]) Remove(predicate func(T) bool) (types.Stamp, T, bool) {
	var zero T
	for i, e := range q.entries {
		if predicate(e.value) {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return e.stamp, e.value, true
		}
	}
	return types.Stamp{}, zero, false
}

// UpdateHeadStamp rewrites the head entry's stamp in place, used by
// Ricart to install the ts=0 sentinel once a local request is granted
// (original_source/src/ricart.c's "Now no requests will supercede
// this"), so a later-arriving REQUEST can never be inserted ahead of a
// request that has already been granted.
func (q *pendingQueue[T]) UpdateHeadStamp(stamp types.Stamp) {
	if len(q.entries) > 0 {
		q.entries[0].stamp = stamp
	}
}
