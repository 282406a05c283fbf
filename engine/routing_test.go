package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDataPathGraphFindAllRoutings(t *testing.T) {
	g := NewDataPathGraph()
	g.AddEdge("a", "out", "b")
	g.AddEdge("a", "out", "c")
	g.AddEdge("a", "err", "d")

	subsets := g.FindAllRoutings("a", NewQueryExitSet("out"))
	require.Len(t, subsets, 2)
	require.Contains(t, subsets, WaypointID("b"))
	require.Contains(t, subsets, WaypointID("c"))
	require.Equal(t, NewQueryExitSet("out"), subsets["b"])
	require.Equal(t, NewQueryExitSet("out"), subsets["c"])

	require.Equal(t, map[WaypointID]QueryExitSet{"d": NewQueryExitSet("err")}, g.FindAllRoutings("a", NewQueryExitSet("err")))
	require.Nil(t, g.FindAllRoutings("a", NewQueryExitSet("missing")))
	require.Nil(t, g.FindAllRoutings("missing", NewQueryExitSet("out")))
}

func TestDataPathGraphFindAllRoutingsPartitionsMixedSet(t *testing.T) {
	g := NewDataPathGraph()
	g.AddEdge("a", "out", "b")
	g.AddEdge("a", "err", "d")

	subsets := g.FindAllRoutings("a", NewQueryExitSet("out", "err", "unrelated"))
	require.Equal(t, NewQueryExitSet("out"), subsets["b"])
	require.Equal(t, NewQueryExitSet("err"), subsets["d"])
}

func TestDataPathGraphFindAllRoutingsFoldsRepeatedEdge(t *testing.T) {
	g := NewDataPathGraph()
	g.AddEdge("a", "out", "b")
	g.AddEdge("a", "err", "b")

	subsets := g.FindAllRoutings("a", NewQueryExitSet("out", "err"))
	require.Len(t, subsets, 1)
	require.Equal(t, NewQueryExitSet("out", "err"), subsets["b"])
}

func TestDataPathGraphFindUpstreamWaypoints(t *testing.T) {
	g := NewDataPathGraph()
	g.AddEdge("a", "out", "c")
	g.AddEdge("b", "out", "c")
	g.AddEdge("z", "other", "c")

	require.ElementsMatch(t, []WaypointID{"a", "b"}, g.FindUpstreamWaypoints("c", "out"))
	require.Equal(t, []WaypointID{"z"}, g.FindUpstreamWaypoints("c", "other"))
	require.Nil(t, g.FindUpstreamWaypoints("c", "missing"))
	require.Nil(t, g.FindUpstreamWaypoints("a", "out"))
}

func TestDataPathGraphRemoveWaypoint(t *testing.T) {
	g := NewDataPathGraph()
	g.AddEdge("a", "out", "b")
	g.AddEdge("b", "out", "c")

	g.RemoveWaypoint("b")

	require.Empty(t, g.FindAllRoutings("a", NewQueryExitSet("out")))
	require.Empty(t, g.FindUpstreamWaypoints("c", "out"))
}
