// Package isolation implements C6: deriving a face mask, a full-frame
// background-zeroed copy, and a landmark-only visualization from each
// accepted frame, then submitting the mask fingerprint to the
// provenance registry.
//
// The padded-bbox crop geometry is grounded on
// internal/quality/detector.go's cropFace (10% padding around the
// bounding box before encoding); mask/registry wiring follows
// provenance.Registry's check-then-register pattern.
package isolation

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"image"
	"image/color"
	"image/png"

	"github.com/smegmarip/4d-photo-intel/internal/pipestate"
	"github.com/smegmarip/4d-photo-intel/internal/provenance"
)

// MaskRegistry is the subset of provenance.Registry the isolation stage
// needs.
type MaskRegistry interface {
	CheckMask(maskHash string) provenance.CheckResult
	RegisterMask(maskHash string, metadata map[string]any) error
}

// Isolate implements C6's contract for one accepted FaceRecord. ok is
// false when the registry rejected the mask; the caller is responsible
// for recording the frame in dropped_masks in that case.
func Isolate(img image.Image, face pipestate.FaceRecord, imageID string, registry MaskRegistry) (pipestate.IsolatedFrame, bool) {
	bounds := img.Bounds()
	region := padBBox(face.BBox, bounds, 0.10)

	maskImg := buildMask(bounds, region, face.Landmarks68)
	maskBytes := encodePNG(maskImg)
	maskHash := sha256Hex(maskBytes)

	backgroundZeroed := buildForeground(img, maskImg)
	trackingPoints := buildTrackingPoints(bounds, face.Landmarks68)

	frame := pipestate.IsolatedFrame{
		ImageID:             imageID,
		FaceID:              face.FaceID,
		MaskHash:            maskHash,
		FacialRegion:        region,
		MaskImage:           encodePNG(backgroundZeroed),
		TrackingPointsImage: encodePNG(trackingPoints),
	}

	result := registry.CheckMask(maskHash)
	if result.Verdict != provenance.VerdictAllowed {
		frame.Compliance = pipestate.Compliance{
			Status: pipestate.ComplianceDropped,
			Reason: string(result.Verdict) + ":" + result.Reason,
		}
		return frame, false
	}

	if err := registry.RegisterMask(maskHash, map[string]any{"image_id": imageID, "face_id": face.FaceID}); err != nil {
		frame.Compliance = pipestate.Compliance{Status: pipestate.ComplianceError, Reason: err.Error()}
		return frame, false
	}

	frame.Compliance = pipestate.Compliance{Status: pipestate.ComplianceAccepted, Pointer: maskHash}
	return frame, true
}

// padBBox expands a bounding box by ratio on each side, clamped to bounds.
func padBBox(b pipestate.BBox, bounds image.Rectangle, ratio float64) pipestate.BBox {
	padX := int(float64(b.Width()) * ratio)
	padY := int(float64(b.Height()) * ratio)
	return pipestate.BBox{
		Left:   clampInt(b.Left-padX, bounds.Min.X, bounds.Max.X),
		Top:    clampInt(b.Top-padY, bounds.Min.Y, bounds.Max.Y),
		Right:  clampInt(b.Right+padX, bounds.Min.X, bounds.Max.X),
		Bottom: clampInt(b.Bottom+padY, bounds.Min.Y, bounds.Max.Y),
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// buildMask renders a binary mask: white inside the facial region, black
// outside. When 68-point landmarks are available their convex hull
// refines the region; otherwise the padded bbox alone is used.
func buildMask(bounds image.Rectangle, region pipestate.BBox, landmarks [][2]float64) *image.Gray {
	mask := image.NewGray(bounds)
	hull := convexHull(landmarks)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			inBox := x >= region.Left && x < region.Right && y >= region.Top && y < region.Bottom
			inside := inBox
			if len(hull) >= 3 {
				inside = inBox && pointInPolygon(hull, float64(x), float64(y))
			}
			if inside {
				mask.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return mask
}

func buildForeground(img image.Image, mask *image.Gray) *image.RGBA {
	bounds := img.Bounds()
	out := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if mask.GrayAt(x, y).Y > 0 {
				out.Set(x, y, img.At(x, y))
			} else {
				out.Set(x, y, color.Black)
			}
		}
	}
	return out
}

func buildTrackingPoints(bounds image.Rectangle, landmarks [][2]float64) *image.RGBA {
	out := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			out.Set(x, y, color.Black)
		}
	}
	for _, p := range landmarks {
		drawDot(out, int(p[0]), int(p[1]))
	}
	return out
}

func drawDot(img *image.RGBA, cx, cy int) {
	bounds := img.Bounds()
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			x, y := cx+dx, cy+dy
			if image.Pt(x, y).In(bounds) {
				img.Set(x, y, color.White)
			}
		}
	}
}

func encodePNG(img image.Image) []byte {
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
