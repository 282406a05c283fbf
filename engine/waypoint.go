package engine

// WaypointID names one node in the routing graph.
type WaypointID string

// Waypoint is the opaque capability every routing destination implements,
// grounded on ExecEngineImp's WayPoint interface. A waypoint never talks to
// the dispatcher's internals directly; every callback it receives is one
// step of DeliverSomeMessage's dispatch.
type Waypoint interface {
	// Configure applies a waypoint-specific configuration blob, called
	// whenever ConfigureExecEngine updates this waypoint's entry.
	Configure(cfg interface{}) error

	// ProcessDownstream handles a message hopped forward through the
	// graph from an upstream producer.
	ProcessDownstream(msg Message) error
	// ProcessUpstream handles a message hopped backward through the
	// graph from a downstream consumer.
	ProcessUpstream(msg Message) error
	// ProcessData handles a dataflow message, the payload class that
	// arms the token reclaim window for the producing waypoint.
	ProcessData(msg Message) error
	// ProcessDirect handles a message addressed straight to this
	// waypoint, outside of any routing lookup.
	ProcessDirect(msg Message) error

	// ProcessAck and ProcessDrop close out the innermost pending history
	// frame, which names this waypoint: qes is the query-exit set the
	// ack/drop covers, and history is the lineage remaining after this
	// frame was popped, grounded on WayPoint::ProcessAckMsg/
	// ProcessDropMsg's (QueryExitContainer&, HistoryList&) signature.
	ProcessAck(qes QueryExitSet, history []HistoryFrame) error
	ProcessDrop(qes QueryExitSet, history []HistoryFrame) error

	// RequestGranted is called back once a previously requested token
	// becomes available.
	RequestGranted(kind TokenKind)

	// DoneProducing is called once this waypoint has finished handling
	// the delivery that triggered a HoppingData message, and is the sole
	// legal caller of the dispatcher's reclaim window
	// (Dispatcher.ReclaimToken panics outside of it).
	DoneProducing()
}

// WaypointMap is a plain registry of waypoints by ID, grounded on
// ExecEngineImp's myWayPoints member.
type WaypointMap struct {
	byID map[WaypointID]Waypoint
}

// NewWaypointMap returns an empty waypoint registry.
func NewWaypointMap() *WaypointMap {
	return &WaypointMap{byID: make(map[WaypointID]Waypoint)}
}

// Put installs or replaces the waypoint at id.
func (m *WaypointMap) Put(id WaypointID, wp Waypoint) {
	m.byID[id] = wp
}

// Get returns the waypoint at id, or nil if none is registered.
func (m *WaypointMap) Get(id WaypointID) Waypoint {
	return m.byID[id]
}

// Delete removes the waypoint at id, if any.
func (m *WaypointMap) Delete(id WaypointID) {
	delete(m.byID, id)
}

// Len reports how many waypoints are registered.
func (m *WaypointMap) Len() int {
	return len(m.byID)
}
