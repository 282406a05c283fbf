package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type ackRecord struct {
	QueryExits QueryExitSet
	History    []HistoryFrame
}

type recordingWaypoint struct {
	id WaypointID
	d  *Dispatcher

	downstream []Message
	upstream   []Message
	data       []Message
	direct     []Message
	acked      []ackRecord
	dropped    []ackRecord
	granted    []TokenKind
	configured interface{}

	reclaimOnDone bool
}

func (w *recordingWaypoint) Configure(cfg interface{}) error {
	w.configured = cfg
	return nil
}
func (w *recordingWaypoint) ProcessDownstream(msg Message) error { w.downstream = append(w.downstream, msg); return nil }
func (w *recordingWaypoint) ProcessUpstream(msg Message) error   { w.upstream = append(w.upstream, msg); return nil }
func (w *recordingWaypoint) ProcessData(msg Message) error       { w.data = append(w.data, msg); return nil }
func (w *recordingWaypoint) ProcessDirect(msg Message) error     { w.direct = append(w.direct, msg); return nil }
func (w *recordingWaypoint) ProcessAck(qes QueryExitSet, history []HistoryFrame) error {
	w.acked = append(w.acked, ackRecord{QueryExits: qes, History: history})
	return nil
}
func (w *recordingWaypoint) ProcessDrop(qes QueryExitSet, history []HistoryFrame) error {
	w.dropped = append(w.dropped, ackRecord{QueryExits: qes, History: history})
	return nil
}
func (w *recordingWaypoint) RequestGranted(kind TokenKind) { w.granted = append(w.granted, kind) }
func (w *recordingWaypoint) DoneProducing() {
	if w.reclaimOnDone {
		w.d.ReclaimToken()
	}
}

func TestDispatcherHoppingDownstreamFanOut(t *testing.T) {
	d := NewDispatcher(DefaultConfig())
	a := &recordingWaypoint{id: "a", d: d}
	b := &recordingWaypoint{id: "b", d: d}
	c := &recordingWaypoint{id: "c", d: d}
	d.RegisterWaypoint("a", a)
	d.RegisterWaypoint("b", b)
	d.RegisterWaypoint("c", c)
	d.AddEdge("a", "out", "b")
	d.AddEdge("a", "out", "c")

	d.Enqueue(Message{Kind: HoppingDownstream, Origin: "a", QueryExits: NewQueryExitSet("out"), Payload: 7})
	require.NoError(t, d.Run())

	require.Len(t, b.downstream, 1)
	require.Len(t, c.downstream, 1)
	require.Equal(t, 7, b.downstream[0].Payload)
	require.Equal(t, NewQueryExitSet("out"), b.downstream[0].QueryExits)
	require.Equal(t, []HistoryFrame{{Waypoint: "b", QueryExits: NewQueryExitSet("out")}}, b.downstream[0].History)
}

func TestDispatcherDirectDelivery(t *testing.T) {
	d := NewDispatcher(DefaultConfig())
	a := &recordingWaypoint{id: "a", d: d}
	d.RegisterWaypoint("a", a)

	d.Enqueue(Message{Kind: Direct, Target: "a", Payload: "hi"})
	require.NoError(t, d.Run())
	require.Len(t, a.direct, 1)
}

func TestDispatcherAckWithoutHistoryPanics(t *testing.T) {
	d := NewDispatcher(DefaultConfig())

	d.Enqueue(Message{Kind: Ack})
	require.Panics(t, func() { _ = d.Run() })
}

func TestDispatcherAckClosesHistoryFrame(t *testing.T) {
	d := NewDispatcher(DefaultConfig())
	a := &recordingWaypoint{id: "a", d: d}
	b := &recordingWaypoint{id: "b", d: d}
	c := &recordingWaypoint{id: "c", d: d}
	d.RegisterWaypoint("a", a)
	d.RegisterWaypoint("b", b)
	d.RegisterWaypoint("c", c)
	d.AddEdge("a", "out", "b")
	d.AddEdge("b", "out", "c")

	d.Enqueue(Message{Kind: HoppingDownstream, Origin: "a", QueryExits: NewQueryExitSet("out")})
	require.NoError(t, d.Run())
	require.Len(t, b.downstream, 1)

	// b forwards on to c, extending the lineage it received.
	fwd := b.downstream[0]
	d.Enqueue(Message{Kind: HoppingDownstream, Origin: "b", QueryExits: fwd.QueryExits, History: fwd.History})
	require.NoError(t, d.Run())
	require.Len(t, c.downstream, 1)

	// Acking c's delivery pops c's frame and delivers to c, the waypoint
	// that frame names, along with the lineage left beneath it.
	cDelivery := c.downstream[0]
	d.Enqueue(Message{Kind: Ack, QueryExits: cDelivery.QueryExits, History: cDelivery.History})
	require.NoError(t, d.Run())
	require.Len(t, c.acked, 1)
	require.Equal(t, []HistoryFrame{{Waypoint: "b", QueryExits: NewQueryExitSet("out")}}, c.acked[0].History)

	// Acking again with the one-frame history left over from b's own
	// delivery pops the last frame and reaches b.
	d.Enqueue(Message{Kind: Ack, QueryExits: NewQueryExitSet("out"), History: c.acked[0].History})
	require.NoError(t, d.Run())
	require.Len(t, b.acked, 1)
	require.Empty(t, b.acked[0].History)

	// An ack with an empty history stack is a programmer error.
	d.Enqueue(Message{Kind: Ack, QueryExits: NewQueryExitSet("out")})
	require.Panics(t, func() { _ = d.Run() })
}

func TestDispatcherHoppingDataReclaimWindow(t *testing.T) {
	d := NewDispatcher(Config{CPUTokens: 1, DiskTokens: 0})
	producer := &recordingWaypoint{id: "p", d: d, reclaimOnDone: true}
	d.RegisterWaypoint("p", producer)

	require.True(t, d.RequestTokenImmediate(CPUToken, "p", 1))

	d.Enqueue(Message{Kind: HoppingData, Origin: "p", TokenKind: CPUToken})
	require.NoError(t, d.Run())

	require.Equal(t, 0, d.economy.pool(CPUToken).unused, "reclaimed token must not return to the pool")
}

func TestDispatcherHoppingDataGivesBackUnreclaimedToken(t *testing.T) {
	d := NewDispatcher(Config{CPUTokens: 1, DiskTokens: 0})
	producer := &recordingWaypoint{id: "p", d: d, reclaimOnDone: false}
	d.RegisterWaypoint("p", producer)

	require.True(t, d.RequestTokenImmediate(CPUToken, "p", 1))

	d.Enqueue(Message{Kind: HoppingData, Origin: "p", TokenKind: CPUToken})
	require.NoError(t, d.Run())

	require.Equal(t, 1, d.economy.pool(CPUToken).unused, "unreclaimed token should be returned to the pool")
}

func TestDispatcherTokenRequestGrantsAsynchronously(t *testing.T) {
	d := NewDispatcher(Config{CPUTokens: 1, DiskTokens: 0})
	consumer := &recordingWaypoint{id: "c", d: d}
	d.RegisterWaypoint("c", consumer)

	d.RequestTokenDelayOK(CPUToken, "c", 1)
	require.NoError(t, d.Run())

	require.Equal(t, []TokenKind{CPUToken}, consumer.granted)
}

func TestDispatcherConfigureExecEngineDeletesRelation(t *testing.T) {
	d := NewDispatcher(DefaultConfig())
	a := &recordingWaypoint{id: "a", d: d}
	b := &recordingWaypoint{id: "b", d: d}
	d.RegisterWaypoint("a", a)
	d.RegisterWaypoint("b", b)
	d.AddEdge("a", "out", "b")

	err := d.ConfigureExecEngine(ConfigUpdate{
		Tasks:           []Task{DeleteRelationTask{ID: "b"}},
		WaypointConfigs: map[WaypointID]interface{}{"a": "new-config"},
	})
	require.NoError(t, err)
	require.Empty(t, d.graph.FindAllRoutings("a", NewQueryExitSet("out")))
	require.Equal(t, "new-config", a.configured)
}

type echoService struct{}

func (echoService) HandleRequest(payload interface{}) (interface{}, error) { return payload, nil }
func (echoService) HandleControl(payload interface{}) error                { return nil }

func TestDispatcherServiceRegistry(t *testing.T) {
	d := NewDispatcher(DefaultConfig())
	d.RegisterService("echo", echoService{})

	reply, err := d.SendServiceRequest("echo", 42)
	require.NoError(t, err)
	require.Equal(t, 42, reply)

	d.RemoveService("echo")
	_, err = d.SendServiceRequest("echo", 42)
	require.Error(t, err)
}
