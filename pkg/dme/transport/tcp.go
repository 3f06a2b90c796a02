// Package transport implements the bootstrap mesh and wire framing
// spec.md §6 describes as the "external collaborator": a fully
// connected mesh of reliable ordered TCP streams, one per ordered pair
// of nodes, grounded on original_source/src/node_controller.c's connect-
// down/accept-up handshake and on the teacher repo's
// pkg/mcast/core/transport.go shape (a producer channel fed by a poll
// goroutine per connection, a context-driven Close).
package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/common/log"
	"github.com/sirupsen/logrus"

	"github.com/renan-campos/go-dme/pkg/dme/core"
	"github.com/renan-campos/go-dme/pkg/dme/types"
	"github.com/renan-campos/go-dme/pkg/dme/wire"
)

// TCPTransport implements core.Transport over a pre-established mesh of
// TCP connections, one per peer.
type TCPTransport struct {
	self types.NodeID
	log  *logrus.Entry

	listener net.Listener

	mu    sync.Mutex
	peers map[types.NodeID]*peerConn

	producer chan core.InboundMessage

	metrics *Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// WithMetrics attaches m to t; every Unicast/Broadcast/inbound frame
// after this call increments its counters. Optional — a nil t.metrics
// (the zero value) simply skips instrumentation.
func (t *TCPTransport) WithMetrics(m *Metrics) *TCPTransport {
	t.metrics = m
	return t
}

type peerConn struct {
	id       types.NodeID
	conn     net.Conn
	reader   *bufio.Reader
	writeMu  sync.Mutex
}

// Dial builds the mesh for cfg: it binds cfg.Peers[cfg.NodeID-1] as its
// own listening address, connects outward to every node with a smaller
// id, and accepts inbound connections from every node with a larger id
// — spec.md §6's bootstrap handshake, performed here synchronously so
// that Dial only returns once the mesh is fully connected.
func Dial(cfg *types.Config, log *logrus.Logger) (*TCPTransport, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if len(cfg.Peers) != cfg.ClusterSize {
		return nil, fmt.Errorf("dme/transport: need one peer address per node, got %d for cluster size %d", len(cfg.Peers), cfg.ClusterSize)
	}

	ln, err := net.Listen("tcp", cfg.Peers[cfg.NodeID-1])
	if err != nil {
		return nil, fmt.Errorf("dme/transport: listen on %s: %w", cfg.Peers[cfg.NodeID-1], err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &TCPTransport{
		self:     cfg.NodeID,
		log:      log.WithField("node", cfg.NodeID),
		listener: ln,
		peers:    make(map[types.NodeID]*peerConn),
		producer: make(chan core.InboundMessage, 4096),
		ctx:      ctx,
		cancel:   cancel,
	}

	higherPeers := cfg.ClusterSize - int(cfg.NodeID)
	accepted := make(chan error, 1)
	t.wg.Add(1)
	go t.acceptPeers(higherPeers, accepted)

	for id := types.NodeID(1); id < cfg.NodeID; id++ {
		pc, err := dialPeer(cfg.Peers[id-1], cfg.NodeID, id)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("dme/transport: connecting to node %d: %w", id, err)
		}
		t.register(pc)
	}

	if err := <-accepted; err != nil {
		cancel()
		return nil, err
	}

	t.log.Infof("mesh established with %d peers", cfg.ClusterSize-1)
	return t, nil
}

func dialPeer(addr string, self, want types.NodeID) (*peerConn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	got, err := handshake(conn, self)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if got != want {
		conn.Close()
		return nil, fmt.Errorf("dme/transport: dialed %s expecting node %d, got %d", addr, want, got)
	}
	return &peerConn{id: got, conn: conn, reader: bufio.NewReader(conn)}, nil
}

func (t *TCPTransport) acceptPeers(count int, done chan<- error) {
	defer t.wg.Done()
	for i := 0; i < count; i++ {
		conn, err := t.listener.Accept()
		if err != nil {
			done <- err
			return
		}
		id, err := handshake(conn, t.self)
		if err != nil {
			t.log.Errorf("handshake with inbound connection failed: %v", err)
			conn.Close()
			done <- err
			return
		}
		t.register(&peerConn{id: id, conn: conn, reader: bufio.NewReader(conn)})
	}
	done <- nil
}

// handshake exchanges node ids as decimal strings, per spec.md §6.
func handshake(conn net.Conn, self types.NodeID) (types.NodeID, error) {
	if _, err := fmt.Fprintf(conn, "%d\n", self); err != nil {
		return 0, err
	}
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		log.Errorf("failed parsing handshake line %q: %v", line, err)
		return 0, fmt.Errorf("malformed handshake line %q: %w", line, err)
	}
	return types.NodeID(n), nil
}

func (t *TCPTransport) register(pc *peerConn) {
	t.mu.Lock()
	t.peers[pc.id] = pc
	t.mu.Unlock()

	t.wg.Add(1)
	go t.readLoop(pc)
}

func (t *TCPTransport) readLoop(pc *peerConn) {
	defer t.wg.Done()
	for {
		payload, err := wire.ReadFrame(pc.reader)
		if err != nil {
			select {
			case <-t.ctx.Done():
				return
			default:
				t.log.Fatalf("reading from node %d: %v", pc.id, err)
			}
			return
		}
		if t.metrics != nil {
			t.metrics.FramesReceived.WithLabelValues(strconv.Itoa(int(pc.id))).Inc()
			t.metrics.BytesReceived.Add(float64(len(payload)))
		}
		select {
		case t.producer <- core.InboundMessage{From: pc.id, Payload: payload}:
		case <-t.ctx.Done():
			return
		}
	}
}

func (t *TCPTransport) send(pc *peerConn, payload []byte) error {
	pc.writeMu.Lock()
	defer pc.writeMu.Unlock()
	if err := wire.WriteFrame(pc.conn, payload); err != nil {
		t.log.Fatalf("writing to node %d: %v", pc.id, err)
		return err
	}
	if t.metrics != nil {
		t.metrics.FramesSent.WithLabelValues(strconv.Itoa(int(pc.id))).Inc()
		t.metrics.BytesSent.Add(float64(len(payload)))
	}
	return nil
}

// Unicast implements core.Transport.
func (t *TCPTransport) Unicast(to types.NodeID, payload []byte) error {
	t.mu.Lock()
	pc, ok := t.peers[to]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("dme/transport: no connection to node %d", to)
	}
	return t.send(pc, payload)
}

// Broadcast implements core.Transport.
func (t *TCPTransport) Broadcast(payload []byte) error {
	t.mu.Lock()
	targets := make([]*peerConn, 0, len(t.peers))
	for _, pc := range t.peers {
		targets = append(targets, pc)
	}
	t.mu.Unlock()

	for _, pc := range targets {
		if err := t.send(pc, payload); err != nil {
			return err
		}
	}
	return nil
}

// Inbound implements core.Transport.
func (t *TCPTransport) Inbound() <-chan core.InboundMessage {
	return t.producer
}

// Close implements core.Transport.
func (t *TCPTransport) Close() error {
	t.cancel()
	err := t.listener.Close()
	t.mu.Lock()
	for _, pc := range t.peers {
		pc.conn.Close()
	}
	t.mu.Unlock()
	t.wg.Wait()
	close(t.producer)
	return err
}
