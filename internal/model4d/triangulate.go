package model4d

import (
	"sort"

	"github.com/smegmarip/4d-photo-intel/internal/pipestate"
)

// triangulate builds a 2D Delaunay triangulation over the (x,y) projection
// of points via a naive incremental Bowyer-Watson construction. No
// Delaunay library exists anywhere in the dependency set this module draws
// from, so this is hand-rolled directly from spec.md §4.8's rule. Falls
// back to fanTriangulate for clouds with fewer than four points.
func triangulate(points []pipestate.Point3) []pipestate.Triangle {
	n := len(points)
	if n < 4 {
		return fanTriangulate(n)
	}

	minX, minY, maxX, maxY := points[0].X, points[0].Y, points[0].X, points[0].Y
	for _, p := range points {
		minX = minF(minX, p.X)
		minY = minF(minY, p.Y)
		maxX = maxF(maxX, p.X)
		maxY = maxF(maxY, p.Y)
	}
	dx, dy := maxX-minX, maxY-minY
	if dx == 0 {
		dx = 1
	}
	if dy == 0 {
		dy = 1
	}
	midX, midY := (minX+maxX)/2, (minY+maxY)/2
	deltaMax := maxF(dx, dy) * 20

	super := []point2{
		{midX - deltaMax, midY - deltaMax},
		{midX, midY + deltaMax},
		{midX + deltaMax, midY - deltaMax},
	}
	verts := make([]point2, 0, n+3)
	for _, p := range points {
		verts = append(verts, point2{p.X, p.Y})
	}
	superStart := len(verts)
	verts = append(verts, super...)

	tris := []triIdx{{superStart, superStart + 1, superStart + 2}}

	for i := 0; i < n; i++ {
		tris = insertPoint(tris, verts, i)
	}

	var result []pipestate.Triangle
	for _, t := range tris {
		if t.a >= superStart || t.b >= superStart || t.c >= superStart {
			continue
		}
		result = append(result, pipestate.Triangle{t.a, t.b, t.c})
	}
	if len(result) == 0 {
		return fanTriangulate(n)
	}
	return result
}

type point2 struct{ x, y float64 }

type triIdx struct{ a, b, c int }

func insertPoint(tris []triIdx, verts []point2, pIdx int) []triIdx {
	p := verts[pIdx]
	var bad []triIdx
	var kept []triIdx
	for _, t := range tris {
		if inCircumcircle(verts[t.a], verts[t.b], verts[t.c], p) {
			bad = append(bad, t)
		} else {
			kept = append(kept, t)
		}
	}

	type edge struct{ u, v int }
	edgeCount := map[edge]int{}
	addEdge := func(u, v int) {
		if u > v {
			u, v = v, u
		}
		edgeCount[edge{u, v}]++
	}
	for _, t := range bad {
		addEdge(t.a, t.b)
		addEdge(t.b, t.c)
		addEdge(t.c, t.a)
	}

	var boundary []edge
	for e, count := range edgeCount {
		if count == 1 {
			boundary = append(boundary, e)
		}
	}
	sort.Slice(boundary, func(i, j int) bool {
		if boundary[i].u != boundary[j].u {
			return boundary[i].u < boundary[j].u
		}
		return boundary[i].v < boundary[j].v
	})

	for _, e := range boundary {
		kept = append(kept, triIdx{e.u, e.v, pIdx})
	}
	return kept
}

func inCircumcircle(a, b, c, p point2) bool {
	ax, ay := a.x-p.x, a.y-p.y
	bx, by := b.x-p.x, b.y-p.y
	cx, cy := c.x-p.x, c.y-p.y

	det := (ax*ax+ay*ay)*(bx*cy-cx*by) -
		(bx*bx+by*by)*(ax*cy-cx*ay) +
		(cx*cx+cy*cy)*(ax*by-bx*ay)

	orientation := (b.x-a.x)*(c.y-a.y) - (c.x-a.x)*(b.y-a.y)
	if orientation < 0 {
		det = -det
	}
	return det > 0
}

// fanTriangulate is the canonical fallback named in spec.md §4.8: a
// sliding fan anchored at point 0, connecting each consecutive pair of the
// remaining points. Chosen over alternative fan orderings because it
// needs no ordering assumption beyond the cloud's existing sequence,
// matching spec.md §9's call for a single canonical fallback.
func fanTriangulate(n int) []pipestate.Triangle {
	if n < 3 {
		return nil
	}
	tris := make([]pipestate.Triangle, 0, n-2)
	for i := 1; i < n-1; i++ {
		tris = append(tris, pipestate.Triangle{0, i, i + 1})
	}
	return tris
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
