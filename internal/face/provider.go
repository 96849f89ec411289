// Package face implements C3: face detection and landmark fusion across
// pluggable detection backends.
//
// The Provider abstraction is grounded on rekko's internal/provider.FaceProvider
// (capability interface returning bounding box, embedding, and pose in one
// call) and on MiFaceDEV-miface's MediaPipeProcessor (an optional external
// dense-landmark capability that degrades gracefully when unavailable).
package face

import "image"

// DetectedFace is one primary-backend detection: bounding box, embedding,
// and whatever coarse pose signal the backend can offer directly.
type DetectedFace struct {
	BBox           image.Rectangle
	Embedding      []float64
	Landmarks68    [][2]float64
	DetectionModel string
	RawConfidence  float64
}

// Provider is the primary embedding-producing detection backend.
type Provider interface {
	// Detect returns every face found in img. An empty slice with a nil
	// error means "no faces found", not a failure.
	Detect(img image.Image) ([]DetectedFace, error)
	// Name identifies this backend for FaceRecord.DetectionModel.
	Name() string
}

// DenseLandmarkProvider is an optional capability: a backend able to
// produce a dense, depth-carrying mesh for a cropped face region.
// Absent in most deployments; the pipeline degrades by omitting
// FaceRecord.LandmarksDense when no such provider is configured.
type DenseLandmarkProvider interface {
	DenseLandmarks(faceCrop image.Image) ([][3]float64, error)
}

// Landmark68Provider is an optional capability: a backend able to produce
// the classic 68-point dlib landmark set independent of the primary
// detector (used when the primary detector does not itself expose
// landmarks, e.g. the heuristic fallback).
type Landmark68Provider interface {
	Landmarks68(img image.Image, bbox image.Rectangle) ([][2]float64, error)
}
