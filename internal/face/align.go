package face

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

const alignedCropSize = 150

// alignedCrop implements spec.md §4.3's alignment recipe: compute eye
// centers from the 68-pt landmarks, rotate the full raster so the eyes
// are horizontal, crop around the transformed landmark bbox with a 30%
// margin, and resize to 150x150. Returns ok=false when landmarks are
// insufficient to locate both eyes, in which case callers fall back to
// the backend's raw encoding.
func alignedCrop(full image.Image, landmarks [][2]float64) (image.Image, bool) {
	if len(landmarks) <= landmarkRightEyeCorner {
		return nil, false
	}
	left := landmarks[landmarkLeftEyeCorner]
	right := landmarks[landmarkRightEyeCorner]

	angleDeg := math.Atan2(right[1]-left[1], right[0]-left[0]) * 180.0 / math.Pi
	rotated := imaging.Rotate(full, -angleDeg, image.Transparent)

	transform := rotationTransform(full.Bounds(), rotated.Bounds(), -angleDeg)

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range landmarks {
		tx, ty := transform(p[0], p[1])
		minX = math.Min(minX, tx)
		minY = math.Min(minY, ty)
		maxX = math.Max(maxX, tx)
		maxY = math.Max(maxY, ty)
	}
	width := maxX - minX
	height := maxY - minY
	if width <= 0 || height <= 0 {
		return nil, false
	}
	marginX := width * 0.30
	marginY := height * 0.30

	bounds := rotated.Bounds()
	cropRect := image.Rect(
		clampInt(int(minX-marginX), bounds.Min.X, bounds.Max.X),
		clampInt(int(minY-marginY), bounds.Min.Y, bounds.Max.Y),
		clampInt(int(maxX+marginX), bounds.Min.X, bounds.Max.X),
		clampInt(int(maxY+marginY), bounds.Min.Y, bounds.Max.Y),
	)
	if cropRect.Dx() <= 0 || cropRect.Dy() <= 0 {
		return nil, false
	}

	cropped := imaging.Crop(rotated, cropRect)
	resized := imaging.Resize(cropped, alignedCropSize, alignedCropSize, imaging.Lanczos)
	return resized, true
}

// rotationTransform maps a point in the original image's coordinate
// space to its position in the rotated-and-recentered canvas imaging.Rotate
// produces (rotation about the original center, by angleDeg counter-clockwise,
// canvas expanded to the rotated bounding box).
func rotationTransform(orig, rotated image.Rectangle, angleDeg float64) func(x, y float64) (float64, float64) {
	cx := float64(orig.Min.X+orig.Max.X) / 2.0
	cy := float64(orig.Min.Y+orig.Max.Y) / 2.0
	ncx := float64(rotated.Min.X+rotated.Max.X) / 2.0
	ncy := float64(rotated.Min.Y+rotated.Max.Y) / 2.0
	theta := angleDeg * math.Pi / 180.0
	cos, sin := math.Cos(theta), math.Sin(theta)

	return func(x, y float64) (float64, float64) {
		dx, dy := x-cx, y-cy
		rx := dx*cos - dy*sin
		ry := dx*sin + dy*cos
		return rx + ncx, ry + ncy
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
