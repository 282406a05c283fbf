package congestion

import "sync"

// ChunkID identifies one in-flight chunk of work.
type ChunkID uint64

// record is one sliding-window entry: how long a chunk took to process (or
// was outstanding, for a dropped chunk), grounded on CongestionController's
// ChunkProcessStats.
type record struct {
	processingMillis int64
	dropped          bool
}

// Controller tracks a fixed-size sliding window of recent chunk outcomes
// and derives an ideal producer delay once the drop ratio crosses a fixed
// threshold, grounded on CongestionController.h/.cc.
type Controller struct {
	mu sync.Mutex

	windowSize int
	window     []record
	runningSum int64
	numDrops   int

	idToStart map[ChunkID]int64

	// dropRatioThreshold is the fraction of dropped chunks in the window
	// at or above which IdealDelayMillis starts reporting a nonzero delay.
	dropRatioThreshold float64

	// clock returns the current time in milliseconds; overridable in tests.
	clock func() int64
}

// NewController returns a controller with the given sliding-window size.
// windowSize must be positive.
func NewController(windowSize int) *Controller {
	if windowSize <= 0 {
		panic("congestion: NewController called with non-positive windowSize")
	}
	return &Controller{
		windowSize:         windowSize,
		idToStart:          make(map[ChunkID]int64),
		dropRatioThreshold: 0.05,
		clock:              defaultClockMillis,
	}
}

// RecordChunkStart marks id as having begun processing at the current
// time, grounded on CongestionController::RecordChunkStart.
func (c *Controller) RecordChunkStart(id ChunkID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idToStart[id] = c.clock()
}

// ProcessAckMsg records that id finished successfully, grounded on
// CongestionController::ProcessAckMsg.
func (c *Controller) ProcessAckMsg(id ChunkID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.push(id, false)
}

// ProcessDropMsg records that id was dropped, grounded on
// CongestionController::ProcessDropMsg.
func (c *Controller) ProcessDropMsg(id ChunkID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.push(id, true)
}

func (c *Controller) push(id ChunkID, dropped bool) {
	start, ok := c.idToStart[id]
	if !ok {
		log.WithField("chunk_id", id).Warn("processed message for unknown chunk id")
		return
	}
	delete(c.idToStart, id)

	if len(c.window) >= c.windowSize {
		c.removeFirst()
	}

	rec := record{processingMillis: c.clock() - start, dropped: dropped}
	c.window = append(c.window, rec)
	if dropped {
		c.numDrops++
	} else {
		c.runningSum += rec.processingMillis
	}
}

// removeFirst evicts the oldest window entry, grounded on
// CongestionController::RemoveFirst.
func (c *Controller) removeFirst() {
	if len(c.window) == 0 {
		return
	}
	oldest := c.window[0]
	c.window = c.window[1:]
	if oldest.dropped {
		c.numDrops--
	} else {
		c.runningSum -= oldest.processingMillis
	}
}

// IdealDelayMillis returns 0 while the window is empty or the drop ratio
// is below threshold, and otherwise the summed processing time of the
// window's non-dropped records divided by the window length (dropped
// records included), grounded on CongestionController::GetIdealDelayMillis.
func (c *Controller) IdealDelayMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.window) == 0 {
		return 0
	}
	if float64(c.numDrops)/float64(len(c.window)) < c.dropRatioThreshold {
		return 0
	}
	return c.runningSum / int64(len(c.window))
}

// Reset clears all window state and outstanding start times, grounded on
// CongestionController::Reset.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window = nil
	c.runningSum = 0
	c.numDrops = 0
	c.idToStart = make(map[ChunkID]int64)
}
