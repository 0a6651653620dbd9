// Package linegraph implements C5: the transformation that lifts trade-graph
// edges to line-graph vertices so a Bellman-Ford-style relaxation (C6, the
// MMBF detector) can track which original edges a path used and recognize
// when it closes back on the start token. Freshly authored, since the
// closest prior-art reference is a docstring-only stub with no
// implementation body. The arena-of-vertices / integer-index layout
// follows the vector-of-edges-with-index convention used elsewhere in
// this codebase.
package linegraph

import (
	"dexarb/internal/core"
)

const sourceID = -1

// Vertex is a line-graph vertex: a lifted TradeEdge, identified externally
// by "pool:token_in:token_out".
type Vertex struct {
	ID   string
	Edge core.TradeEdge
}

// Edge is a directed line-graph edge with weight = -ln(rate) of the edge it
// points to.
type Edge struct {
	From   int // index into Vertices, or sourceID for the synthetic SOURCE
	To     int
	Weight float64
}

// Graph is the line-graph: an arena of vertices plus the edges between them
// (including synthetic SOURCE edges), all keyed by integer index for cache
// and allocation locality; string ids remain available via Vertices[i].ID.
type Graph struct {
	Vertices    []Vertex
	Edges       []Edge // edges between real vertices, in construction order
	SourceEdges []Edge // SOURCE -> v edges, in construction order
}

func vertexID(e core.TradeEdge) string {
	return e.Pool + ":" + e.TokenIn + ":" + e.TokenOut
}

// Build constructs a line graph from edges for the given startToken:
//  1. one vertex per edge, later duplicates of the same id overwrite earlier ones;
//  2. a line edge v1->v2 whenever v1's out-token matches v2's in-token and
//     they are not the same pool;
//  3. a SOURCE edge to every vertex whose underlying edge starts at startToken.
func Build(edges []core.TradeEdge, startToken string) *Graph {
	byID := make(map[string]int)
	var vertices []Vertex

	for _, e := range edges {
		id := vertexID(e)
		if idx, ok := byID[id]; ok {
			vertices[idx] = Vertex{ID: id, Edge: e} // later overwrites
			continue
		}
		byID[id] = len(vertices)
		vertices = append(vertices, Vertex{ID: id, Edge: e})
	}

	byIn := make(map[string][]int)
	for i, v := range vertices {
		byIn[v.Edge.TokenIn] = append(byIn[v.Edge.TokenIn], i)
	}

	var lineEdges []Edge
	for i, v1 := range vertices {
		for _, j := range byIn[v1.Edge.TokenOut] {
			v2 := vertices[j]
			if v1.Edge.Pool == v2.Edge.Pool {
				continue
			}
			lineEdges = append(lineEdges, Edge{From: i, To: j, Weight: v2.Edge.LogRate()})
		}
	}

	var sourceEdges []Edge
	for _, j := range byIn[startToken] {
		v := vertices[j]
		sourceEdges = append(sourceEdges, Edge{From: sourceID, To: j, Weight: v.Edge.LogRate()})
	}

	return &Graph{Vertices: vertices, Edges: lineEdges, SourceEdges: sourceEdges}
}
