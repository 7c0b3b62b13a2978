package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/wippyai/handle-gc/arena"
	"github.com/wippyai/handle-gc/heap"
	"github.com/wippyai/handle-gc/inspect"
)

func main() {
	var (
		capacity    = flag.Int("capacity", arena.MinCapacity, "Arena capacity in bytes")
		objects     = flag.Int("objects", 512, "Target live object count for the churn workload")
		churn       = flag.Int("churn", 10000, "Churn workload iterations")
		seed        = flag.Int64("seed", 1, "Workload random seed")
		jsonOut     = flag.Bool("json", false, "Dump a JSON heap snapshot instead of a summary")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *interactive {
		if err := runInteractive(*capacity, *objects, *seed); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*capacity, *objects, *churn, *seed, *jsonOut); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(capacity, objects, churn int, seed int64, jsonOut bool) error {
	h := heap.New(heap.Options{Capacity: capacity})
	defer h.Close()

	w := newWorkload(h, seed, objects)
	for i := 0; i < churn; i++ {
		if err := w.step(); err != nil {
			return fmt.Errorf("workload step %d: %w", i, err)
		}
	}

	if err := h.Validate(); err != nil {
		return fmt.Errorf("heap validation failed: %w", err)
	}

	if jsonOut {
		return inspect.Capture(h).WriteJSON(os.Stdout)
	}

	s := h.Stats()
	snap := inspect.Capture(h)
	fmt.Printf("Arena: %d/%d bytes used\n", s.UsedBytes, s.Capacity)
	fmt.Printf("Objects: %d total, %d floating (%d bytes reclaimable)\n",
		s.TotalObjects, len(snap.Floating()), snap.FloatingBytes())
	fmt.Printf("Handles: %d issued, %d free\n", s.HandleCount, s.FreeHandles)
	fmt.Printf("Collections: %d (%d bytes reclaimed)\n", s.Collections, s.ReclaimedBytes)
	return nil
}
