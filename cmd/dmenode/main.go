// Command dmenode runs a single node of a distributed mutual exclusion
// cluster: it builds the Engine for the selected algorithm, dials the
// bootstrap mesh described in spec.md §6, exposes Prometheus metrics,
// and runs a demo loop that acquires and releases the lock forever;
// cmd/producer is the separate workload that joins a cluster as a
// node of its own. Positional
// arguments mirror original_source/src/node_controller.c's
// `node_id number_of_nodes`; kingpin adds the named flags the C version
// hard-coded (peer hostnames, algorithm selector).
package main

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	kingpin "gopkg.in/alecthomas/kingpin.v2"

	"github.com/renan-campos/go-dme/pkg/dme/core"
	"github.com/renan-campos/go-dme/pkg/dme/definition"
	"github.com/renan-campos/go-dme/pkg/dme/transport"
	"github.com/renan-campos/go-dme/pkg/dme/types"
)

// queueDepthPollInterval is how often the dme_queue_depth gauge re-reads
// the engine's Mailbox lengths. Cheap enough to run alongside the demo
// loop without perturbing it.
const queueDepthPollInterval = 500 * time.Millisecond

var (
	app = kingpin.New("dmenode", "Runs one node of a distributed mutual exclusion cluster.")

	nodeID      = app.Arg("node-id", "This node's id, in 1..cluster-size.").Required().Int()
	clusterSize = app.Arg("cluster-size", "Total number of nodes in the cluster.").Required().Int()

	algorithmName = app.Flag("algorithm", "ricart, maekawa or fuchi.").Default("ricart").Enum("ricart", "maekawa", "fuchi")
	peers         = app.Flag("peer", "host:port of a node, repeated once per node in id order 1..cluster-size.").Strings()
	metricsAddr   = app.Flag("metrics-addr", "Address to serve /metrics on.").Default(":9200").String()
	debug         = app.Flag("debug", "Enable debug-level logging.").Bool()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	logger := definition.NewDefaultLogger()
	logger.ToggleDebug(*debug)

	algorithm, err := types.ParseAlgorithm(*algorithmName)
	if err != nil {
		logger.Fatalf("dmenode: %v", err)
	}

	cfg := types.DefaultConfig(types.NodeID(*nodeID), *clusterSize, algorithm, logger)
	if len(*peers) > 0 {
		cfg.Peers = *peers
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("dmenode: invalid configuration: %v", err)
	}

	metrics := newNodeMetrics(strings.TrimSpace(*algorithmName), *nodeID)
	go serveMetrics(*metricsAddr, logger)

	mesh, err := transport.Dial(cfg, logrus.StandardLogger())
	if err != nil {
		logger.Fatalf("dmenode: %v", err)
	}
	mesh.WithMetrics(transport.NewMetrics(prometheus.DefaultRegisterer, strconv.Itoa(*nodeID)))

	eng, err := core.NewEngine(cfg, mesh, core.InvokerInstance())
	if err != nil {
		logger.Fatalf("dmenode: %v", err)
	}
	defer eng.Close()

	logger.Infof("dmenode: node %d online, algorithm=%s, cluster size=%d", *nodeID, algorithm, *clusterSize)

	go pollQueueDepth(eng, metrics)

	runDemoLoop(eng, metrics, logger)
}

// pollQueueDepth samples eng's three Mailbox queues on a fixed interval
// and republishes them as a gauge per destination class — the one
// metric among the four nodeMetrics reports that reflects a live sample
// rather than a running total, since mailbox depth only means anything
// at the instant it's read.
func pollQueueDepth(eng *core.Engine, metrics *nodeMetrics) {
	ticker := time.NewTicker(queueDepthPollInterval)
	defer ticker.Stop()
	for range ticker.C {
		for class, depth := range eng.QueueDepths() {
			metrics.queueDepth.WithLabelValues(class.String()).Set(float64(depth))
		}
	}
}

// runDemoLoop exercises the lock forever so a freshly started node is
// observable on /metrics without a separate driver process; cmd/producer
// is the real workload generator and talks to the same Engine type over
// its own entrypoint.
func runDemoLoop(eng *core.Engine, metrics *nodeMetrics, logger types.Logger) {
	for {
		timer := prometheus.NewTimer(metrics.acquireWait)
		uid, err := eng.Acquire()
		timer.ObserveDuration()
		if err != nil {
			logger.Errorf("dmenode: acquire failed: %v", err)
			return
		}
		metrics.acquireTotal.Inc()
		logger.Debugf("dmenode: granted critical section for request %s", uid)

		eng.Release()
		metrics.releaseTotal.Inc()
	}
}

type nodeMetrics struct {
	acquireTotal prometheus.Counter
	releaseTotal prometheus.Counter
	acquireWait  prometheus.Histogram
	queueDepth   *prometheus.GaugeVec
}

func newNodeMetrics(algorithm string, nodeID int) *nodeMetrics {
	labels := prometheus.Labels{"algorithm": algorithm}
	m := &nodeMetrics{
		acquireTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dme", Name: "acquire_total", Help: "Acquire() calls granted.", ConstLabels: labels,
		}),
		releaseTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dme", Name: "release_total", Help: "Release() calls made.", ConstLabels: labels,
		}),
		acquireWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dme", Name: "acquire_wait_seconds", Help: "Time blocked inside Acquire().", ConstLabels: labels,
		}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dme", Name: "queue_depth", Help: "Current length of a Mailbox queue, by destination class.", ConstLabels: labels,
		}, []string{"class"}),
	}
	prometheus.MustRegister(m.acquireTotal, m.releaseTotal, m.acquireWait, m.queueDepth)
	return m
}

func serveMetrics(addr string, logger types.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Errorf("dmenode: metrics server stopped: %v", err)
	}
}
