// Command producer is the demo workload from original_source/src/producer.c:
// it repeatedly connects to cmd/bufferserver, appends one donut entry,
// and prints back the slot it landed on. Pass --locked to wrap every
// append in Acquire()/Release() against a running dmenode cluster — the
// only variable that determines whether the buffer ends up corrupted.
package main

import (
	"encoding/binary"
	"net"
	"os"
	"time"

	"github.com/fatih/color"
	kingpin "gopkg.in/alecthomas/kingpin.v2"

	"github.com/renan-campos/go-dme/pkg/dme/core"
	"github.com/renan-campos/go-dme/pkg/dme/definition"
	"github.com/renan-campos/go-dme/pkg/dme/transport"
	"github.com/renan-campos/go-dme/pkg/dme/types"
)

type donut struct {
	NodeID int32
	Number int32
}

var (
	app             = kingpin.New("producer", "Demo producer appending donuts to cmd/bufferserver.")
	nodeID          = app.Arg("node-id", "This node's id, used both as the donut owner and (with --locked) the DME node id.").Required().Int()
	count           = app.Arg("count", "Number of donuts to append.").Required().Int()
	bufferServer    = app.Flag("bufferserver", "Address of the running bufferserver.").Default("localhost:1992").String()
	locked          = app.Flag("locked", "Acquire/Release the cluster lock around each append.").Bool()
	clusterSize     = app.Flag("cluster-size", "Cluster size, required with --locked.").Int()
	algorithmName   = app.Flag("algorithm", "ricart, maekawa or fuchi; required with --locked.").Default("ricart").Enum("ricart", "maekawa", "fuchi")
	peers           = app.Flag("peer", "host:port of a node, repeated once per node in id order; required with --locked.").Strings()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	logger := definition.NewDefaultLogger()

	var eng *core.Engine
	if *locked {
		algorithm, err := types.ParseAlgorithm(*algorithmName)
		if err != nil {
			logger.Fatalf("producer: %v", err)
		}
		cfg := types.DefaultConfig(types.NodeID(*nodeID), *clusterSize, algorithm, logger)
		cfg.Peers = *peers
		if err := cfg.Validate(); err != nil {
			logger.Fatalf("producer: invalid configuration: %v", err)
		}
		mesh, err := transport.Dial(cfg, nil)
		if err != nil {
			logger.Fatalf("producer: %v", err)
		}
		eng, err = core.NewEngine(cfg, mesh, core.InvokerInstance())
		if err != nil {
			logger.Fatalf("producer: %v", err)
		}
		defer eng.Close()
	}

	for i := 0; i < *count; i++ {
		if eng != nil {
			if _, err := eng.Acquire(); err != nil {
				logger.Fatalf("producer: acquire: %v", err)
			}
		}

		slot, err := appendDonut(*bufferServer, *nodeID, i)
		if err != nil {
			color.Red("producer: append failed: %v", err)
		} else {
			color.Green("PROD: provided buffer manager with donut #%d (slot %d)", i, slot)
		}

		if eng != nil {
			eng.Release()
		}

		time.Sleep(5 * time.Microsecond)
	}
}

func appendDonut(addr string, nodeID, number int) (int32, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	d := donut{NodeID: int32(nodeID), Number: int32(number)}
	if err := binary.Write(conn, binary.BigEndian, d); err != nil {
		return 0, err
	}

	var slot int32
	if err := binary.Read(conn, binary.BigEndian, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}
