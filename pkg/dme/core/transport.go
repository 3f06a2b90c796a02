package core

import "github.com/renan-campos/go-dme/pkg/dme/types"

// InboundMessage is what a Transport hands back on its Inbound channel:
// the peer a message arrived from, plus the algorithm-specific wire
// bytes pkg/dme/wire will decode.
type InboundMessage struct {
	From    types.NodeID
	Payload []byte
}

// Transport is the "external collaborator" spec.md §1/§6 describes as
// out of scope for the algorithm itself and replaceable by any reliable
// ordered point-to-point channel. pkg/dme/transport implements it over
// TCP; tests substitute an in-memory fake (dmetest) wired directly to
// peer Engines, the same role the teacher repo's core.Transport
// interface plays against its real and test peer implementations.
type Transport interface {
	// Unicast sends payload to exactly one peer.
	Unicast(to types.NodeID, payload []byte) error

	// Broadcast sends payload to every other node in the cluster. The
	// original C implementation gives network=0 this same meaning,
	// leaving the fan-out to the node controller rather than the DME
	// algorithm (original_source/src/ricart.c, node_controller.c).
	Broadcast(payload []byte) error

	// Inbound delivers every message this transport receives, in the
	// order received; a single goroutine ranges over it for the engine's
	// lifetime.
	Inbound() <-chan InboundMessage

	// Close releases the transport's connections. Inbound must then be
	// closed as well so the engine's forwarding goroutine exits.
	Close() error
}
