package engine

// MessageKind tags the eight message variants the dispatcher's central FIFO
// carries, grounded on ExecEngineImp's MessageType enum. Go has no tagged
// union, so Message carries every variant's payload behind Kind, matching
// the pattern the original Design Notes recommend for a Go port.
type MessageKind int

const (
	// HoppingDownstream routes a message forward through the graph from
	// its origin waypoint, fanning out to every downstream match.
	HoppingDownstream MessageKind = iota
	// HoppingUpstream routes a message backward to every upstream
	// waypoint of the origin whose edge carries the message's Destination
	// query-exit.
	HoppingUpstream
	// Direct delivers a message straight to one named waypoint, bypassing
	// routing entirely.
	Direct
	// HoppingData is like HoppingDownstream but additionally arms the
	// token reclaim window for the delivering waypoint, since dataflow
	// messages are what actually consume producer tokens.
	HoppingData
	// CPUTokenRequest resolves the head of the CPU pool's request list:
	// the request is frozen if its priority is above the cutoff and
	// granted otherwise.
	CPUTokenRequest
	// DiskTokenRequest is CPUTokenRequest's disk-token counterpart.
	DiskTokenRequest
	// Ack closes out the innermost pending delivery frame for a waypoint
	// successfully.
	Ack
	// Drop closes out the innermost pending delivery frame for a
	// waypoint, marking it as failed rather than delivered.
	Drop
)

func (k MessageKind) String() string {
	switch k {
	case HoppingDownstream:
		return "hopping_downstream"
	case HoppingUpstream:
		return "hopping_upstream"
	case Direct:
		return "direct"
	case HoppingData:
		return "hopping_data"
	case CPUTokenRequest:
		return "cpu_token_request"
	case DiskTokenRequest:
		return "disk_token_request"
	case Ack:
		return "ack"
	case Drop:
		return "drop"
	default:
		return "unknown"
	}
}

// QueryExitSet is a set of query-exit labels annotating a routing-graph
// edge or naming the destinations a hopping envelope still needs to reach,
// grounded on the original's QueryExitContainer.
type QueryExitSet map[string]struct{}

// NewQueryExitSet builds a set from the given tags.
func NewQueryExitSet(tags ...string) QueryExitSet {
	s := make(QueryExitSet, len(tags))
	for _, tag := range tags {
		s[tag] = struct{}{}
	}
	return s
}

// Add inserts tag into the set.
func (s QueryExitSet) Add(tag string) { s[tag] = struct{}{} }

// Contains reports whether tag is in the set. A nil set contains nothing.
func (s QueryExitSet) Contains(tag string) bool {
	_, ok := s[tag]
	return ok
}

// Intersect returns the tags present in both s and other. The result is
// always non-nil, even when empty.
func (s QueryExitSet) Intersect(other QueryExitSet) QueryExitSet {
	out := make(QueryExitSet)
	for tag := range s {
		if other.Contains(tag) {
			out.Add(tag)
		}
	}
	return out
}

// HistoryFrame records one hop of a hopping envelope's lineage: the
// waypoint it was delivered to and the query-exit subset it carried there.
// Ack/Drop messages pop frames off the back of this stack to walk the
// delivery path in reverse, grounded on LineageData's HistoryList and its
// per-frame WayPointID.
type HistoryFrame struct {
	Waypoint   WaypointID
	QueryExits QueryExitSet
}

// Message is one pending delivery on the dispatcher's central FIFO.
// Fields not relevant to Kind are left zero.
type Message struct {
	Kind MessageKind

	// Origin is the waypoint that produced this message; used for
	// HoppingDownstream/HoppingUpstream/HoppingData routing lookups.
	Origin WaypointID
	// Target is the destination waypoint for Direct deliveries, and the
	// current position for a hopping delivery in flight.
	Target WaypointID
	// QueryExits is the destination query-exit set for
	// HoppingDownstream/HoppingData deliveries (find_all_routings
	// partitions it across next hops), and the query-exit set an Ack/Drop
	// message is closing out.
	QueryExits QueryExitSet
	// Destination is the single destination query-exit a HoppingUpstream
	// delivery is walking backward toward.
	Destination string
	// History is the lineage stack a hopping envelope accumulates as it
	// fans out through the graph. Ack/Drop messages carry the lineage to
	// unwind: the dispatcher pops the innermost frame to find the
	// waypoint to deliver to.
	History []HistoryFrame

	Payload interface{}

	// Requester and Priority are not read by the dispatcher: a
	// CPUTokenRequest/DiskTokenRequest message carries only its Kind, and
	// the request it resolves is taken from the head of the pool's list.
	Requester WaypointID
	Priority  int

	// TokenKind names which pool's reclaim window a HoppingData delivery
	// should arm around the origin waypoint's DoneProducing call.
	TokenKind TokenKind
}
