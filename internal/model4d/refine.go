// Package model4d implements C8: turning a MergedLandmarkCloud into the
// terminal Final4DModel — triangulated surface mesh, detection pointers,
// geometry/biometric hashes, and a provenance-registry submission of the
// model fingerprint.
package model4d

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"

	"github.com/smegmarip/4d-photo-intel/internal/pipestate"
	"github.com/smegmarip/4d-photo-intel/internal/provenance"
)

// ModelRegistry is the subset of provenance.Registry the refiner needs.
type ModelRegistry interface {
	CheckModel(modelHash string) provenance.CheckResult
	RegisterModel(modelHash string, metadata map[string]any) error
}

// Options controls the optional mesh-smoothing pass (spec.md §4.12's
// smoothing toggle, surfaced via config.Flags).
type Options struct {
	SmoothingEnabled    bool
	SmoothingIterations int
}

// Refine implements C8's contract.
func Refine(cloud pipestate.MergedLandmarkCloud, opts Options, registry ModelRegistry) pipestate.Final4DModel {
	model := pipestate.Final4DModel{FacialPoints: cloud.Points}

	faces := triangulate(cloud.Points)
	vertices := cloud.Points
	if opts.SmoothingEnabled && opts.SmoothingIterations > 0 {
		vertices = laplacianSmooth(vertices, faces, opts.SmoothingIterations)
		model.FacialPoints = vertices
	}
	model.SurfaceMesh = pipestate.SurfaceMesh{Vertices: vertices, Faces: faces}

	center := centroid(cloud.Points)
	model.DetectionPointers = make([]pipestate.DetectionPointer, len(cloud.Points))
	for i, p := range cloud.Points {
		confidence := 0.5
		if i < len(cloud.PerPointConfidence) {
			confidence = cloud.PerPointConfidence[i]
		}
		model.DetectionPointers[i] = pipestate.DetectionPointer{
			Center:     center,
			Landmark:   p,
			Confidence: confidence,
		}
	}

	model.ConfidenceScore = meanConfidence(cloud.PerPointConfidence)
	model.ConfidenceDistribution = bucketConfidence(cloud.PerPointConfidence)
	model.FacialGeometryHash = geometryHash(cloud.Points)
	model.BiometricTemplate = biometricTemplate(cloud.Points, center)

	canonical := canonicalModelJSON(model)
	modelHash := sha256Hex(canonical)
	model.ModelHash = modelHash

	if registry == nil {
		model.ComplianceStatus = pipestate.ComplianceAccepted
		return model
	}
	result := registry.CheckModel(modelHash)
	if result.Verdict != provenance.VerdictAllowed {
		model.ComplianceStatus = pipestate.ComplianceDropped
		model.DropReason = string(result.Verdict) + ":" + result.Reason
		return model
	}
	if err := registry.RegisterModel(modelHash, map[string]any{"point_count": len(cloud.Points)}); err != nil {
		model.ComplianceStatus = pipestate.ComplianceError
		model.DropReason = err.Error()
		return model
	}
	model.ComplianceStatus = pipestate.ComplianceAccepted
	return model
}

func centroid(points []pipestate.Point3) pipestate.Point3 {
	if len(points) == 0 {
		return pipestate.Point3{}
	}
	var sx, sy, sz float64
	for _, p := range points {
		sx += p.X
		sy += p.Y
		sz += p.Z
	}
	n := float64(len(points))
	return pipestate.Point3{X: sx / n, Y: sy / n, Z: sz / n}
}

func meanConfidence(confidences []float64) float64 {
	if len(confidences) == 0 {
		return 0
	}
	var sum float64
	for _, c := range confidences {
		sum += c
	}
	return sum / float64(len(confidences))
}

func bucketConfidence(confidences []float64) pipestate.ConfidenceDistribution {
	var dist pipestate.ConfidenceDistribution
	for _, c := range confidences {
		switch {
		case c > 0.8:
			dist.High++
		case c >= 0.5:
			dist.Medium++
		default:
			dist.Low++
		}
	}
	return dist
}

// geometryHash is the MD5 of the JSON-encoded landmark list in the cloud's
// existing (stable) ordering.
func geometryHash(points []pipestate.Point3) string {
	data, _ := json.Marshal(points)
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// biometricTemplate mean-centers the landmark list, rounds to 2 decimals,
// and SHA-256 hashes the JSON encoding, serving as a coarse matching key
// robust to rigid translation.
func biometricTemplate(points []pipestate.Point3, center pipestate.Point3) string {
	centered := make([]pipestate.Point3, len(points))
	for i, p := range points {
		centered[i] = pipestate.Point3{
			X: roundTo2(p.X - center.X),
			Y: roundTo2(p.Y - center.Y),
			Z: roundTo2(p.Z - center.Z),
		}
	}
	data, _ := json.Marshal(centered)
	return sha256Hex(data)
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// canonicalModelJSON marshals the model fields the hash must cover,
// excluding the hash fields themselves (they don't exist yet) and the
// compliance outcome the registry submission determines afterward.
func canonicalModelJSON(model pipestate.Final4DModel) []byte {
	type canonical struct {
		FacialPoints      []pipestate.Point3           `json:"facial_points"`
		SurfaceMesh       pipestate.SurfaceMesh        `json:"surface_mesh"`
		DetectionPointers []pipestate.DetectionPointer `json:"detection_pointers"`
		ConfidenceScore   float64                      `json:"confidence_score"`
	}
	data, _ := json.Marshal(canonical{
		FacialPoints:      model.FacialPoints,
		SurfaceMesh:       model.SurfaceMesh,
		DetectionPointers: model.DetectionPointers,
		ConfidenceScore:   model.ConfidenceScore,
	})
	return data
}
