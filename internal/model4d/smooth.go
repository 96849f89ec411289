package model4d

import "github.com/smegmarip/4d-photo-intel/internal/pipestate"

// laplacianSmooth blends each vertex toward its face-adjacency neighbor
// mean, holding half the original position to avoid shrinkage. Ported
// directly from original_source's _laplacian_smooth (same 0.5/0.5 blend,
// same per-iteration full-mesh pass); only run when the caller's
// smoothing flag is enabled.
func laplacianSmooth(vertices []pipestate.Point3, faces []pipestate.Triangle, iterations int) []pipestate.Point3 {
	n := len(vertices)
	if iterations <= 0 || n == 0 {
		return vertices
	}

	neighbors := make([]map[int]bool, n)
	for i := range neighbors {
		neighbors[i] = map[int]bool{}
	}
	addEdge := func(a, b int) {
		if a < 0 || a >= n || b < 0 || b >= n {
			return
		}
		neighbors[a][b] = true
		neighbors[b][a] = true
	}
	for _, t := range faces {
		addEdge(t[0], t[1])
		addEdge(t[1], t[2])
		addEdge(t[2], t[0])
	}

	original := make([]pipestate.Point3, n)
	copy(original, vertices)
	v := make([]pipestate.Point3, n)
	copy(v, vertices)

	for iter := 0; iter < iterations; iter++ {
		next := make([]pipestate.Point3, n)
		copy(next, v)
		for idx := 0; idx < n; idx++ {
			nbrs := neighbors[idx]
			if len(nbrs) == 0 {
				continue
			}
			var sx, sy, sz float64
			for nb := range nbrs {
				sx += v[nb].X
				sy += v[nb].Y
				sz += v[nb].Z
			}
			count := float64(len(nbrs))
			avgX, avgY, avgZ := sx/count, sy/count, sz/count
			next[idx] = pipestate.Point3{
				X: 0.5*avgX + 0.5*original[idx].X,
				Y: 0.5*avgY + 0.5*original[idx].Y,
				Z: 0.5*avgZ + 0.5*original[idx].Z,
			}
		}
		v = next
	}
	return v
}
