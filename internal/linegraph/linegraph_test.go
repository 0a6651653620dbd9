package linegraph

import (
	"testing"

	"dexarb/internal/core"

	"github.com/stretchr/testify/require"
)

func edge(pool, in, out string, rate float64) core.TradeEdge {
	return core.TradeEdge{Pool: pool, TokenIn: in, TokenOut: out, Rate: rate}
}

// TestBuildOneVertexPerEdge verifies each distinct edge lifts to its own
// vertex, identified by "pool:token_in:token_out".
func TestBuildOneVertexPerEdge(t *testing.T) {
	edges := []core.TradeEdge{
		edge("0xpool1", "a", "b", 1.0),
		edge("0xpool2", "b", "c", 1.0),
	}
	g := Build(edges, "a")
	require.Len(t, g.Vertices, 2)
	require.Equal(t, "0xpool1:a:b", g.Vertices[0].ID)
	require.Equal(t, "0xpool2:b:c", g.Vertices[1].ID)
}

// TestBuildDuplicateIDOverwrites verifies a later edge sharing the same
// (pool, in, out) triple overwrites the earlier vertex rather than adding a
// second one.
func TestBuildDuplicateIDOverwrites(t *testing.T) {
	edges := []core.TradeEdge{
		edge("0xpool1", "a", "b", 1.0),
		edge("0xpool1", "a", "b", 2.0), // same id, later observation
	}
	g := Build(edges, "a")
	require.Len(t, g.Vertices, 1)
	require.Equal(t, 2.0, g.Vertices[0].Edge.Rate)
}

// TestBuildLineEdgesExcludeSamePool verifies a line edge only connects two
// vertices whose underlying pools differ, even if the token chain matches.
func TestBuildLineEdgesExcludeSamePool(t *testing.T) {
	edges := []core.TradeEdge{
		edge("0xpool1", "a", "b", 1.0),
		edge("0xpool1", "b", "a", 1.0), // same pool as above, would chain a->b->a
		edge("0xpool2", "b", "c", 1.0), // different pool, should chain
	}
	g := Build(edges, "a")

	var sawSamePool, sawCrossPool bool
	for _, le := range g.Edges {
		from := g.Vertices[le.From].Edge
		to := g.Vertices[le.To].Edge
		if from.Pool == "0xpool1" && to.Pool == "0xpool1" {
			sawSamePool = true
		}
		if from.Pool == "0xpool1" && to.Pool == "0xpool2" {
			sawCrossPool = true
		}
	}
	require.False(t, sawSamePool, "line edge must not connect two vertices on the same pool")
	require.True(t, sawCrossPool, "line edge must connect vertices across distinct pools")
}

// TestBuildSourceEdgesOnlyFromStartToken verifies SOURCE edges are emitted
// only for vertices whose underlying edge begins at startToken.
func TestBuildSourceEdgesOnlyFromStartToken(t *testing.T) {
	edges := []core.TradeEdge{
		edge("0xpool1", "a", "b", 1.0),
		edge("0xpool2", "b", "c", 1.0),
	}
	g := Build(edges, "a")

	require.Len(t, g.SourceEdges, 1)
	require.Equal(t, sourceID, g.SourceEdges[0].From)
	require.Equal(t, 0, g.SourceEdges[0].To)
}

// TestBuildNoSourceEdgesForUnseenStartToken verifies an unmatched start
// token yields no SOURCE edges at all, rather than panicking.
func TestBuildNoSourceEdgesForUnseenStartToken(t *testing.T) {
	edges := []core.TradeEdge{edge("0xpool1", "a", "b", 1.0)}
	g := Build(edges, "z")
	require.Empty(t, g.SourceEdges)
}
