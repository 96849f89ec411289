package isolation

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smegmarip/4d-photo-intel/internal/pipestate"
	"github.com/smegmarip/4d-photo-intel/internal/provenance"
)

type fakeMaskRegistry struct {
	verdict   provenance.Verdict
	registered []string
}

func (f *fakeMaskRegistry) CheckMask(maskHash string) provenance.CheckResult {
	return provenance.CheckResult{Verdict: f.verdict}
}

func (f *fakeMaskRegistry) RegisterMask(maskHash string, metadata map[string]any) error {
	f.registered = append(f.registered, maskHash)
	return nil
}

func testImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 60, 60))
	for y := 0; y < 60; y++ {
		for x := 0; x < 60; x++ {
			img.Set(x, y, color.RGBA{R: 100, G: 120, B: 140, A: 255})
		}
	}
	return img
}

func TestIsolateAcceptedMaskRegistersAndReturnsFrame(t *testing.T) {
	img := testImage()
	face := pipestate.FaceRecord{FaceID: "f1", BBox: pipestate.BBox{Top: 10, Left: 10, Right: 40, Bottom: 40}}
	reg := &fakeMaskRegistry{verdict: provenance.VerdictAllowed}

	frame, ok := Isolate(img, face, "img_001", reg)
	require.True(t, ok)
	assert.Equal(t, pipestate.ComplianceAccepted, frame.Compliance.Status)
	assert.NotEmpty(t, frame.MaskHash)
	assert.Len(t, reg.registered, 1)
	assert.NotEmpty(t, frame.MaskImage)
	assert.NotEmpty(t, frame.TrackingPointsImage)
}

func TestIsolateDuplicateMaskIsDropped(t *testing.T) {
	img := testImage()
	face := pipestate.FaceRecord{FaceID: "f1", BBox: pipestate.BBox{Top: 10, Left: 10, Right: 40, Bottom: 40}}
	reg := &fakeMaskRegistry{verdict: provenance.VerdictDuplicate}

	frame, ok := Isolate(img, face, "img_001", reg)
	assert.False(t, ok)
	assert.Equal(t, pipestate.ComplianceDropped, frame.Compliance.Status)
	assert.Empty(t, reg.registered)
}

func TestConvexHullDegeneratesBelowThreePoints(t *testing.T) {
	assert.Nil(t, convexHull([][2]float64{{0, 0}, {1, 1}}))
}

func TestPointInPolygonSquare(t *testing.T) {
	square := [][2]float64{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	assert.True(t, pointInPolygon(square, 5, 5))
	assert.False(t, pointInPolygon(square, 50, 50))
}
