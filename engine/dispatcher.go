package engine

import "github.com/pkg/errors"

// Task is one configuration-time action applied before a graph/waypoint
// update takes effect, generalizing ExecEngineImp::ConfigureExecEngine's
// switch over task types (e.g. DeleteRelationTask) into an open interface.
type Task interface {
	Apply(d *Dispatcher) error
}

// DeleteRelationTask removes a waypoint from the graph and the waypoint
// registry, grounded on ConfigureExecEngine's DeleteRelationTask handling.
type DeleteRelationTask struct {
	ID WaypointID
}

func (t DeleteRelationTask) Apply(d *Dispatcher) error {
	d.graph.RemoveWaypoint(t.ID)
	d.waypoints.Delete(t.ID)
	return nil
}

// ConfigUpdate bundles one configuration turn: a batch of tasks to run
// first, per-waypoint configuration blobs to apply in place, and an
// optional wholesale graph replacement, grounded on
// ExecEngineImp::ConfigureExecEngine.
type ConfigUpdate struct {
	Tasks           []Task
	WaypointConfigs map[WaypointID]interface{}
	Graph           *DataPathGraph
}

// Dispatcher is the single central FIFO scheduler. It is
// deliberately not internally synchronized: the whole engine is a
// synchronous, single-threaded cooperative scheduler with no suspension
// points, so every call — including calls a waypoint makes back into the
// dispatcher from inside its own callback — runs on the same call stack.
// A mutex here would only create false contention or, worse, deadlock a
// waypoint that reenters the dispatcher from DoneProducing or
// RequestGranted. Callers that do drive a Dispatcher from multiple
// goroutines must serialize their own access.
type Dispatcher struct {
	queue     []Message
	graph     *DataPathGraph
	waypoints *WaypointMap
	economy   *Economy

	services map[string]ServiceHandler

	clock func() int64
}

// NewDispatcher wires a fresh routing graph, waypoint registry, and token
// economy together, grounded on ExecEngineImp's constructor.
func NewDispatcher(cfg Config) *Dispatcher {
	d := &Dispatcher{
		graph:     NewDataPathGraph(),
		waypoints: NewWaypointMap(),
		economy:   NewEconomy(cfg.CPUTokens, cfg.DiskTokens),
		services:  make(map[string]ServiceHandler),
		clock:     defaultClockMillis,
	}
	d.economy.onGrantable = func(kind TokenKind) {
		d.Enqueue(Message{Kind: tokenRequestKindOf(kind)})
	}
	infof("dispatcher ready: %d cpu token(s), %d disk token(s)", cfg.CPUTokens, cfg.DiskTokens)
	return d
}

func tokenRequestKindOf(kind TokenKind) MessageKind {
	if kind == DiskToken {
		return DiskTokenRequest
	}
	return CPUTokenRequest
}

// RegisterWaypoint installs wp under id.
func (d *Dispatcher) RegisterWaypoint(id WaypointID, wp Waypoint) {
	d.waypoints.Put(id, wp)
}

// AddEdge records a routing-graph edge.
func (d *Dispatcher) AddEdge(from WaypointID, tag string, to WaypointID) {
	d.graph.AddEdge(from, tag, to)
}

// Enqueue appends a message to the central FIFO without draining it; call
// Run to process the queue.
func (d *Dispatcher) Enqueue(msg Message) {
	d.queue = append(d.queue, msg)
}

// Run drains the central FIFO, delivering one message at a time until it
// is empty. Delivering a message may itself enqueue more (routing fan-out,
// grant-check messages, ack/drop chains); Run keeps going until the queue
// is genuinely empty, grounded on the drain loop ConfigureExecEngine and
// SetPriorityCutoff both run after mutating shared state.
func (d *Dispatcher) Run() error {
	for len(d.queue) > 0 {
		msg := d.queue[0]
		d.queue = d.queue[1:]
		if err := d.deliverOne(msg); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) deliverOne(msg Message) error {
	switch msg.Kind {
	case HoppingDownstream:
		return d.deliverHopping(msg, Waypoint.ProcessDownstream)
	case HoppingUpstream:
		for _, src := range d.graph.FindUpstreamWaypoints(msg.Origin, msg.Destination) {
			wp := d.waypoints.Get(src)
			if wp == nil {
				continue
			}
			clone := msg
			clone.Target = src
			if err := wp.ProcessUpstream(clone); err != nil {
				errorf("upstream delivery to %s failed: %v", src, err)
			}
		}
		return nil
	case Direct:
		wp := d.waypoints.Get(msg.Target)
		if wp == nil {
			return errors.Errorf("engine: direct message to unknown waypoint %s", msg.Target)
		}
		return wp.ProcessDirect(msg)
	case HoppingData:
		return d.deliverHoppingData(msg)
	case CPUTokenRequest:
		return d.resolveTokenRequest(CPUToken)
	case DiskTokenRequest:
		return d.resolveTokenRequest(DiskToken)
	case Ack:
		return d.deliverAckOrDrop(msg, true)
	case Drop:
		return d.deliverAckOrDrop(msg, false)
	default:
		return errors.Errorf("engine: unknown message kind %v", msg.Kind)
	}
}

// deliverHopping partitions msg's destination query-exit set across
// Origin's outbound edges via FindAllRoutings and delivers one clone per
// next hop carrying only that hop's subset, pushing a lineage frame onto
// each clone's history as it goes so a later Ack/Drop can unwind back to
// it, grounded on ExecEngineImp::DeliverSomeMessage's HOPPING_DOWNSTREAM_MESSAGE
// case.
func (d *Dispatcher) deliverHopping(msg Message, deliver func(Waypoint, Message) error) error {
	for dst, subset := range d.graph.FindAllRoutings(msg.Origin, msg.QueryExits) {
		wp := d.waypoints.Get(dst)
		if wp == nil {
			continue
		}
		clone := msg
		clone.Target = dst
		clone.QueryExits = subset
		clone.History = pushHistory(msg.History, dst, subset)
		if err := deliver(wp, clone); err != nil {
			errorf("downstream delivery to %s failed: %v", dst, err)
		}
	}
	return nil
}

func pushHistory(history []HistoryFrame, wp WaypointID, qes QueryExitSet) []HistoryFrame {
	next := make([]HistoryFrame, len(history)+1)
	copy(next, history)
	next[len(history)] = HistoryFrame{Waypoint: wp, QueryExits: qes}
	return next
}

// deliverHoppingData fans a dataflow message out exactly like
// HoppingDownstream, then arms the reclaim window and calls the origin
// waypoint's DoneProducing, grounded on
// ExecEngineImp::HoppingDataMsgReady.
func (d *Dispatcher) deliverHoppingData(msg Message) error {
	if err := d.deliverHopping(msg, Waypoint.ProcessData); err != nil {
		return err
	}
	origin := d.waypoints.Get(msg.Origin)
	if origin == nil {
		return errors.Errorf("engine: hopping-data message from unknown waypoint %s", msg.Origin)
	}
	d.economy.ArmReclaim(msg.TokenKind)
	origin.DoneProducing()
	d.economy.SettleReclaim()
	return nil
}

func (d *Dispatcher) resolveTokenRequest(kind TokenKind) error {
	req, popped, granted := d.economy.ResolveHeadOfRequestList(kind)
	if !popped {
		return nil
	}
	if !granted {
		debugf("token request from %s frozen at priority %d", req.Requester, req.Priority)
		return nil
	}
	wp := d.waypoints.Get(req.Requester)
	if wp == nil {
		warnf("token granted to unregistered waypoint %s, returning it", req.Requester)
		d.economy.GiveBackToken(kind)
		return nil
	}
	wp.RequestGranted(kind)
	return nil
}

// deliverAckOrDrop pops the innermost history frame off msg's lineage and
// delivers to the waypoint it names, passing on the query-exit set being
// closed out and whatever lineage remains. An empty history stack is a
// programmer error and panics, grounded on
// ExecEngineImp::DeliverSomeMessage's FATALIF on an empty history list.
func (d *Dispatcher) deliverAckOrDrop(msg Message, ack bool) error {
	n := len(msg.History)
	if n == 0 {
		panic("engine: ack/drop delivered with an empty history stack")
	}
	frame := msg.History[n-1]
	remaining := msg.History[:n-1]

	wp := d.waypoints.Get(frame.Waypoint)
	if wp == nil {
		return errors.Errorf("engine: ack/drop for unknown waypoint %s", frame.Waypoint)
	}
	if ack {
		return wp.ProcessAck(msg.QueryExits, remaining)
	}
	return wp.ProcessDrop(msg.QueryExits, remaining)
}

// RequestTokenImmediate is the synchronous, non-queueing token request
// path exposed to waypoints, grounded on
// ExecEngineImp::RequestTokenImmediate.
func (d *Dispatcher) RequestTokenImmediate(kind TokenKind, requester WaypointID, priority int) bool {
	return d.economy.RequestTokenImmediate(kind, requester, priority)
}

// RequestTokenDelayOK is the FIFO-queueing token request path, grounded on
// ExecEngineImp::RequestTokenDelayOK.
func (d *Dispatcher) RequestTokenDelayOK(kind TokenKind, requester WaypointID, priority int) {
	d.economy.RequestTokenDelayOK(kind, requester, priority)
}

// RequestTokenDelayMillis schedules a delayed token request, grounded on
// ExecEngineImp::RequestTokenDelayMillis.
func (d *Dispatcher) RequestTokenDelayMillis(kind TokenKind, requester WaypointID, priority int, delayMillis int64) {
	d.economy.RequestTokenDelayMillis(kind, requester, priority, d.clock(), delayMillis)
}

// GrantDelayTokens converts every elapsed delayed request into a
// delay-OK request, grounded on ExecEngineImp::GrantDelayTokens. Callers
// typically invoke this on a ticker and then Run() to actually resolve
// the requests it thaws.
func (d *Dispatcher) GrantDelayTokens(kind TokenKind) {
	d.economy.GrantDelayTokens(kind, d.clock())
}

// GiveBackToken returns a token outside of a reclaim window, grounded on
// ExecEngineImp::GiveBackToken.
func (d *Dispatcher) GiveBackToken(kind TokenKind) {
	d.economy.GiveBackToken(kind)
}

// ReclaimToken claims the token armed for the caller's in-progress
// DoneProducing call, grounded on ExecEngineImp::ReclaimToken. It panics
// if called outside that window.
func (d *Dispatcher) ReclaimToken() {
	d.economy.ReclaimToken()
}

// SetPriorityCutoff updates a pool's cutoff, thaws any now-eligible frozen
// requests, and drains the queue those thaws produced, grounded on
// ExecEngineImp::SetPriorityCutoff.
func (d *Dispatcher) SetPriorityCutoff(kind TokenKind, cutoff int) error {
	d.economy.SetPriorityCutoff(kind, cutoff)
	return d.Run()
}

// GetPriorityCutoff returns a pool's current cutoff.
func (d *Dispatcher) GetPriorityCutoff(kind TokenKind) int {
	return d.economy.GetPriorityCutoff(kind)
}

// ConfigureExecEngine applies a configuration update: tasks first, then
// per-waypoint reconfiguration in place, then a wholesale graph swap, and
// finally drains anything the update enqueued, grounded on
// ExecEngineImp::ConfigureExecEngine.
func (d *Dispatcher) ConfigureExecEngine(update ConfigUpdate) error {
	for _, task := range update.Tasks {
		if err := task.Apply(d); err != nil {
			return errors.Wrap(err, "engine: configuration task failed")
		}
	}
	for id, cfg := range update.WaypointConfigs {
		wp := d.waypoints.Get(id)
		if wp == nil {
			warnf("configuration supplied for unregistered waypoint %s", id)
			continue
		}
		if err := wp.Configure(cfg); err != nil {
			errorf("configuring waypoint %s failed: %v", id, err)
		}
	}
	if update.Graph != nil {
		d.graph = update.Graph
	}
	return d.Run()
}
