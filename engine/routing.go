package engine

// DataPathGraph is the directed routing graph HoppingDownstream/HoppingData
// consult to fan a message out to every downstream match, and
// HoppingUpstream consults to walk backward, grounded on ExecEngineImp's
// myGraph member and its FindAllRoutings/FindUpstreamWaypoints queries.
//
// Edges are annotated by a set of query-exit tags: a waypoint may route to
// the same downstream neighbour under several tags, all folded into that
// one edge's annotation, matching the original's per-exit routing
// annotations.
type DataPathGraph struct {
	downstream map[WaypointID]map[WaypointID]QueryExitSet // from -> to -> annotation
	upstream   map[WaypointID]map[WaypointID]QueryExitSet // to -> from -> annotation (mirror)
}

// NewDataPathGraph returns an empty routing graph.
func NewDataPathGraph() *DataPathGraph {
	return &DataPathGraph{
		downstream: make(map[WaypointID]map[WaypointID]QueryExitSet),
		upstream:   make(map[WaypointID]map[WaypointID]QueryExitSet),
	}
}

// AddEdge records that from routes to to under the given query-exit tag,
// folding it into that edge's annotation if the edge already exists.
func (g *DataPathGraph) AddEdge(from WaypointID, tag string, to WaypointID) {
	annotate(g.downstream, from, to, tag)
	annotate(g.upstream, to, from, tag)
}

func annotate(m map[WaypointID]map[WaypointID]QueryExitSet, key, other WaypointID, tag string) {
	byOther, ok := m[key]
	if !ok {
		byOther = make(map[WaypointID]QueryExitSet)
		m[key] = byOther
	}
	set, ok := byOther[other]
	if !ok {
		set = make(QueryExitSet)
		byOther[other] = set
	}
	set.Add(tag)
}

// RemoveWaypoint drops every edge that mentions id, in either direction,
// grounded on ConfigureExecEngine's DeleteRelationTask handling.
func (g *DataPathGraph) RemoveWaypoint(id WaypointID) {
	delete(g.downstream, id)
	for _, byTo := range g.downstream {
		delete(byTo, id)
	}
	delete(g.upstream, id)
	for _, byFrom := range g.upstream {
		delete(byFrom, id)
	}
}

// FindAllRoutings partitions dest across from's outbound edges: for each
// edge, it intersects the edge's annotation with dest and keeps the
// non-empty subsets, grounded on ExecEngineImp::FindAllRoutings. An unknown
// origin, or one none of whose edges match, yields a nil map rather than an
// error, since "nobody is listening" is a normal outcome for a routing
// lookup. The subsets are disjoint by construction, so no tie-breaking is
// needed.
func (g *DataPathGraph) FindAllRoutings(from WaypointID, dest QueryExitSet) map[WaypointID]QueryExitSet {
	byTo, ok := g.downstream[from]
	if !ok {
		return nil
	}
	var out map[WaypointID]QueryExitSet
	for to, annotation := range byTo {
		subset := annotation.Intersect(dest)
		if len(subset) == 0 {
			continue
		}
		if out == nil {
			out = make(map[WaypointID]QueryExitSet)
		}
		out[to] = subset
	}
	return out
}

// FindUpstreamWaypoints returns every predecessor of to whose edge
// annotation includes dest, grounded on
// ExecEngineImp::FindUpstreamWaypoints.
func (g *DataPathGraph) FindUpstreamWaypoints(to WaypointID, dest string) []WaypointID {
	byFrom, ok := g.upstream[to]
	if !ok {
		return nil
	}
	var out []WaypointID
	for from, annotation := range byFrom {
		if annotation.Contains(dest) {
			out = append(out, from)
		}
	}
	return out
}
