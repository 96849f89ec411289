// Package landmark implements C7: merging per-frame dense landmark
// clouds into a single compressed point cloud via single-pass spatial
// agglomeration.
//
// No clustering library in the dependency set operates on raw (x,y,z)
// point clouds (similarity.DBSCAN solves a different, density-based
// problem over embeddings); this single-pass, fixed-radius agglomeration
// is hand-rolled directly from spec.md §4.7's algorithm description.
package landmark

import (
	"image"
	"math"

	"github.com/smegmarip/4d-photo-intel/internal/pipestate"
)

const clusterRadiusPixels = 10.0

// SourcePoint is one dense-landmark sample drawn from an isolated frame.
type SourcePoint struct {
	X, Y, Z float64
	Frame   image.Image // optional: sampled for color when present
}

// Merge implements C7's contract exactly.
func Merge(points []SourcePoint) pipestate.MergedLandmarkCloud {
	n := len(points)
	processed := make([]bool, n)

	var clusters [][]int
	for i := 0; i < n; i++ {
		if processed[i] {
			continue
		}
		members := []int{i}
		processed[i] = true
		for j := i + 1; j < n; j++ {
			if processed[j] {
				continue
			}
			if euclidean2D(points[i], points[j]) <= clusterRadiusPixels {
				members = append(members, j)
				processed[j] = true
			}
		}
		clusters = append(clusters, members)
	}

	cloud := pipestate.MergedLandmarkCloud{
		SourceFrameCount:   countFrames(points),
		OriginalPointCount: n,
	}

	for _, members := range clusters {
		var cx, cy, cz float64
		for _, idx := range members {
			cx += points[idx].X
			cy += points[idx].Y
			cz += points[idx].Z
		}
		count := float64(len(members))
		cx /= count
		cy /= count
		cz /= count

		confidence := 0.5
		if len(members) > 1 {
			confidence = math.Min(1.0, float64(len(members))/5.0)
		}

		cloud.Points = append(cloud.Points, pipestate.Point3{X: cx, Y: cy, Z: cz})
		cloud.PerPointConfidence = append(cloud.PerPointConfidence, confidence)
		cloud.PerPointDepth = append(cloud.PerPointDepth, cz)
		cloud.PerPointColor = append(cloud.PerPointColor, sampleColor(points, members, cx, cy))
	}

	if n > 0 {
		cloud.CompressionRatio = float64(len(cloud.Points)) / float64(n)
	}

	return cloud
}

func euclidean2D(a, b SourcePoint) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

func countFrames(points []SourcePoint) int {
	seen := map[image.Image]bool{}
	count := 0
	for _, p := range points {
		if p.Frame == nil {
			continue
		}
		if !seen[p.Frame] {
			seen[p.Frame] = true
			count++
		}
	}
	return count
}

// sampleColor reads the frame texture at (cx, cy) for the cluster's first
// member with an attached frame; defaults to neutral gray otherwise.
func sampleColor(points []SourcePoint, members []int, cx, cy float64) [3]uint8 {
	for _, idx := range members {
		frame := points[idx].Frame
		if frame == nil {
			continue
		}
		bounds := frame.Bounds()
		x, y := int(cx), int(cy)
		if x < bounds.Min.X || x >= bounds.Max.X || y < bounds.Min.Y || y >= bounds.Max.Y {
			continue
		}
		r, g, b, _ := frame.At(x, y).RGBA()
		return [3]uint8{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)}
	}
	return [3]uint8{128, 128, 128}
}
