// Command bufferserver is the demo shared resource from
// original_source/src/buffer_manager.c: producers connect, append one
// donut entry to a fixed-size in-memory buffer, and read back the
// index they landed on. Deliberately unsynchronized, exactly like the
// original's bare `buf_indx` global: the handler reads the index,
// sleeps (original_source's literal comment is "Sleeping to ensure
// corruption happens if no mutual exclusion"), writes its entry, then
// increments the index. Whether two concurrent producers corrupt the
// buffer is entirely up to whether they held the cluster-wide lock
// around their request — cmd/producer's --locked flag is what's under
// test, not anything in this server.
package main

import (
	"encoding/binary"
	"io"
	"net"
	"os"
	"time"

	"github.com/fatih/color"
	kingpin "gopkg.in/alecthomas/kingpin.v2"

	"github.com/renan-campos/go-dme/pkg/dme/definition"
	"github.com/renan-campos/go-dme/pkg/dme/types"
)

const bufferSize = 100

type donut struct {
	NodeID int32
	Number int32
}

var (
	app        = kingpin.New("bufferserver", "Demo shared buffer the producer command appends donuts to.")
	listenAddr = app.Flag("listen", "Address to accept producer connections on.").Default(":1992").String()
	raceWindow = app.Flag("race-window", "Sleep between reading and incrementing the index, original_source's corruption window.").Default("5ms").Duration()
)

// server holds the buffer and its index exactly as unguarded as
// original_source's file-scope globals: no mutex, no channel handoff.
// That is the point of this command.
type server struct {
	buffer [bufferSize]donut
	index  int
}

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	logger := definition.NewDefaultLogger()

	ln, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		logger.Fatalf("bufferserver: listen: %v", err)
	}
	defer ln.Close()

	color.Green("bufferserver: listening on %s, buffer size %d", *listenAddr, bufferSize)

	srv := &server{}
	batch := 0
	for {
		srv.index = 0
		for srv.index < bufferSize-1 {
			conn, err := ln.Accept()
			if err != nil {
				logger.Errorf("bufferserver: accept: %v", err)
				continue
			}
			go srv.handle(conn, *raceWindow, logger)
		}

		time.Sleep(*raceWindow + 50*time.Millisecond)
		printBatch(srv, batch)
		batch++
	}
}

func (s *server) handle(conn net.Conn, sleep time.Duration, logger types.Logger) {
	defer conn.Close()

	var d donut
	if err := binary.Read(conn, binary.BigEndian, &d); err != nil && err != io.EOF {
		logger.Errorf("bufferserver: read: %v", err)
		return
	}

	idx := s.index
	// The window original_source/src/buffer_manager.c leaves open: a
	// donut is placed in the buffer, but before the index is
	// incremented another handler can read the same idx.
	time.Sleep(sleep)
	if idx >= 0 && idx < bufferSize {
		s.buffer[idx] = d
	}
	s.index++

	if err := binary.Write(conn, binary.BigEndian, int32(idx)); err != nil {
		logger.Errorf("bufferserver: write: %v", err)
	}
}

func printBatch(s *server, batch int) {
	color.Yellow("------ Start Batch %d ------", batch)
	for i, d := range s.buffer {
		if d.NodeID == 0 && d.Number == 0 {
			continue
		}
		color.Cyan("NODE: %4d DONUT: %4d (slot %d)", d.NodeID, d.Number, i)
	}
	color.Yellow("------ End Batch %d ------", batch)
}
