// Command waypointd wires the hybrid memory allocator, the dataflow
// dispatcher, and the congestion controller together into one process and
// runs a small demonstration workload, replacing the original repo's
// hsAllocator stress-test harness with a driver over this repo's own
// domain packages.
package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/waypointdb/waypoint/congestion"
	"github.com/waypointdb/waypoint/engine"
	"github.com/waypointdb/waypoint/hybrid"
	"github.com/waypointdb/waypoint/sysmap"
)

var log = logrus.WithField("component", "waypointd")

func main() {
	var (
		configPath     = pflag.String("config", "", "path to a waypointd YAML config file (overrides the flags below)")
		pageBytesExp   = pflag.Int("page-bytes-exp", 12, "log2 of the page size")
		maxOrder       = pflag.Int("max-order", 10, "buddy arena order (largest block is 1<<order pages)")
		initHeapPages  = pflag.Int("init-heap-pages", 1024, "initial free-tree region size per NUMA node")
		heapGrowPages  = pflag.Int("heap-grow-pages", 4096, "free-tree growth increment")
		hashSegBytes   = pflag.Int("hash-seg-bytes", 16<<12, "fixed hash segment size in bytes")
		numNodes       = pflag.Int("num-nodes", 1, "number of NUMA-node arenas")
		cpuTokens      = pflag.Int("cpu-tokens", 4, "CPU token pool size")
		diskTokens     = pflag.Int("disk-tokens", 2, "disk token pool size")
		congestionSize = pflag.Int("congestion-window", 64, "congestion controller sliding-window size")
		verbose        = pflag.BoolP("verbose", "v", false, "enable debug logging")
	)
	pflag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg := DefaultWaypointdConfig()
	if *configPath != "" {
		loaded, err := LoadWaypointdConfig(*configPath)
		if err != nil {
			log.WithError(err).Fatalf("failed to load config from %s", *configPath)
		}
		cfg = loaded
	} else {
		cfg.Memory = hybrid.Config{
			PageBytesExp:  *pageBytesExp,
			MaxOrder:      *maxOrder,
			InitHeapPages: *initHeapPages,
			HeapGrowPages: *heapGrowPages,
			HashSegBytes:  *hashSegBytes,
			NumNodes:      *numNodes,
		}
		cfg.Engine = engine.Config{CPUTokens: *cpuTokens, DiskTokens: *diskTokens}
		cfg.CongestionWindow = *congestionSize
	}

	sm := sysmap.New(cfg.Memory.PageBytes(), logrus.WithField("component", "sysmap"))
	alloc, err := hybrid.NewAllocator(cfg.Memory, sm)
	if err != nil {
		log.WithError(err).Fatal("failed to start hybrid allocator")
	}
	defer func() {
		if err := alloc.Close(); err != nil {
			log.WithError(err).Error("allocator teardown reported errors")
		}
	}()

	cc := congestion.NewController(cfg.CongestionWindow)
	dispatcher := engine.NewDispatcher(cfg.Engine)

	if err := runDemo(alloc, dispatcher, cc); err != nil {
		log.WithError(err).Fatal("demo workload failed")
	}
}

// runDemo exercises all three subsystems together: it allocates a handful
// of chunks (some small enough for the buddy arena, some routed to the free
// tree), pushes one chunk through a producer/consumer waypoint pair under
// a real token grant, and records its round trip in the congestion
// controller.
func runDemo(alloc *hybrid.Allocator, d *engine.Dispatcher, cc *congestion.Controller) error {
	small, err := alloc.Alloc(4, 0)
	if err != nil {
		return fmt.Errorf("allocating small chunk: %w", err)
	}
	large, err := alloc.Alloc(4096, 0)
	if err != nil {
		return fmt.Errorf("allocating large chunk: %w", err)
	}
	log.Infof("allocated small chunk at %v, large chunk at %v", small, large)
	log.Infof("allocator pages: allocated=%d free=%d", alloc.AllocatedPages(), alloc.FreePages())

	producer := &demoWaypoint{id: "producer", d: d}
	consumer := &demoWaypoint{id: "consumer", d: d}
	d.RegisterWaypoint(producer.id, producer)
	d.RegisterWaypoint(consumer.id, consumer)
	d.AddEdge(producer.id, "rows", consumer.id)

	if !d.RequestTokenImmediate(engine.CPUToken, producer.id, 0) {
		return fmt.Errorf("no CPU token available for demo producer")
	}

	const chunkID = congestion.ChunkID(1)
	cc.RecordChunkStart(chunkID)
	d.Enqueue(engine.Message{
		Kind:       engine.HoppingData,
		Origin:     producer.id,
		QueryExits: engine.NewQueryExitSet("rows"),
		Payload:    []byte("demo payload"),
		TokenKind:  engine.CPUToken,
	})
	if err := d.Run(); err != nil {
		return fmt.Errorf("running dispatcher: %w", err)
	}
	cc.ProcessAckMsg(chunkID)

	log.Infof("consumer received %d rows message(s)", consumer.dataCount)
	log.Infof("congestion controller ideal delay: %dms", cc.IdealDelayMillis())

	alloc.Free(small)
	alloc.Free(large)
	return nil
}

// demoWaypoint is a minimal engine.Waypoint that just counts the callbacks
// it receives, standing in for a real dataflow operator.
type demoWaypoint struct {
	id        engine.WaypointID
	d         *engine.Dispatcher
	dataCount int
}

func (w *demoWaypoint) Configure(cfg interface{}) error { return nil }

func (w *demoWaypoint) ProcessDownstream(msg engine.Message) error { return nil }
func (w *demoWaypoint) ProcessUpstream(msg engine.Message) error   { return nil }

func (w *demoWaypoint) ProcessData(msg engine.Message) error {
	w.dataCount++
	return nil
}

func (w *demoWaypoint) ProcessDirect(msg engine.Message) error { return nil }

func (w *demoWaypoint) ProcessAck(qes engine.QueryExitSet, history []engine.HistoryFrame) error {
	return nil
}
func (w *demoWaypoint) ProcessDrop(qes engine.QueryExitSet, history []engine.HistoryFrame) error {
	return nil
}

func (w *demoWaypoint) RequestGranted(kind engine.TokenKind) {}

// DoneProducing reclaims the CPU token it was granted, since the demo
// producer issues exactly one HoppingData message per token request.
func (w *demoWaypoint) DoneProducing() {
	if w.id == "producer" {
		w.d.ReclaimToken()
	}
}
