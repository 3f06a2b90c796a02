package core

import (
	"testing"
	"time"

	"github.com/renan-campos/go-dme/pkg/dme/definition"
	"github.com/renan-campos/go-dme/pkg/dme/types"
)

func TestEngineSingleNodeAcquireReleaseRoundTrip(t *testing.T) {
	logger := definition.NewDefaultLogger()
	logger.ToggleDebug(false)

	cfg := &types.Config{NodeID: 1, ClusterSize: 1, Algorithm: types.Ricart, Logger: logger}
	eng, err := NewEngine(cfg, nil, NewWaitGroupInvoker())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer eng.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := eng.Acquire(); err != nil {
			t.Errorf("Acquire: %v", err)
			return
		}
		eng.Release()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Acquire/Release did not complete in time")
	}
}

func TestEngineRejectsInvalidConfig(t *testing.T) {
	cfg := &types.Config{NodeID: 0, ClusterSize: 1, Algorithm: types.Ricart}
	if _, err := NewEngine(cfg, nil, nil); err == nil {
		t.Fatal("expected an error for node id 0")
	}
}

func TestEngineSequentialAcquiresDoNotDeadlock(t *testing.T) {
	logger := definition.NewDefaultLogger()
	logger.ToggleDebug(false)

	cfg := &types.Config{NodeID: 1, ClusterSize: 1, Algorithm: types.Ricart, Logger: logger}
	eng, err := NewEngine(cfg, nil, NewWaitGroupInvoker())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer eng.Close()

	for i := 0; i < 5; i++ {
		if _, err := eng.Acquire(); err != nil {
			t.Fatalf("Acquire #%d: %v", i, err)
		}
		eng.Release()
	}
}
