package face

import (
	"crypto/sha256"
	"image"
	"math"
)

const heuristicEmbeddingDim = 128

// HeuristicProvider is the coarse fallback detector used when no primary
// dlib backend is configured: it assumes a single centered face occupying
// the central two-thirds of the frame (a one-sixth margin on each side)
// and scores symmetry/variance instead of
// running real detection. Deterministic-embedding-from-hash is grounded
// on rekko's mock.Provider.generateEmbedding.
type HeuristicProvider struct{}

func NewHeuristicProvider() *HeuristicProvider { return &HeuristicProvider{} }

func (h *HeuristicProvider) Name() string { return "fallback" }

func (h *HeuristicProvider) Detect(img image.Image) ([]DetectedFace, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, nil
	}

	marginX := width / 6
	marginY := height / 6
	bbox := image.Rect(bounds.Min.X+marginX, bounds.Min.Y+marginY, bounds.Max.X-marginX, bounds.Max.Y-marginY)
	if bbox.Dx() <= 0 || bbox.Dy() <= 0 {
		bbox = bounds
	}

	variance, symmetry := varianceAndSymmetry(img, bbox)
	confidence := clamp01(0.3 + variance/255.0*0.4 + symmetry*0.3)

	return []DetectedFace{{
		BBox:           bbox,
		Embedding:      hashEmbedding(imageDigest(img)),
		DetectionModel: h.Name(),
		RawConfidence:  confidence,
	}}, nil
}

// varianceAndSymmetry computes pixel-luma variance (a crude sharpness
// proxy when no real face is located) and left/right mirror symmetry
// across the vertical midline of bbox.
func varianceAndSymmetry(img image.Image, bbox image.Rectangle) (variance, symmetry float64) {
	width := bbox.Dx()
	height := bbox.Dy()
	if width == 0 || height == 0 {
		return 0, 0
	}

	lumas := make([]float64, 0, width*height)
	for y := bbox.Min.Y; y < bbox.Max.Y; y++ {
		for x := bbox.Min.X; x < bbox.Max.X; x++ {
			lumas = append(lumas, luma(img, x, y))
		}
	}
	mean := 0.0
	for _, v := range lumas {
		mean += v
	}
	mean /= float64(len(lumas))
	for _, v := range lumas {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(lumas))

	var diffSum, count float64
	midX := bbox.Min.X + width/2
	for y := bbox.Min.Y; y < bbox.Max.Y; y++ {
		for dx := 0; dx < width/2; dx++ {
			left := luma(img, midX-1-dx, y)
			right := luma(img, midX+dx, y)
			diffSum += math.Abs(left - right)
			count++
		}
	}
	if count == 0 {
		return variance, 0
	}
	meanDiff := diffSum / count
	symmetry = clamp01(1.0 - meanDiff/255.0)
	return variance, symmetry
}

func luma(img image.Image, x, y int) float64 {
	r, g, b, _ := img.At(x, y).RGBA()
	return (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 257.0
}

func imageDigest(img image.Image) []byte {
	bounds := img.Bounds()
	buf := make([]byte, 0, bounds.Dx()*bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			buf = append(buf, byte(r>>8), byte(g>>8), byte(b>>8))
		}
	}
	sum := sha256.Sum256(buf)
	return sum[:]
}

func hashEmbedding(digest []byte) []float64 {
	embedding := make([]float64, heuristicEmbeddingDim)
	for i := range embedding {
		idx := i % len(digest)
		embedding[i] = (float64(digest[idx])/255.0)*2 - 1
	}
	norm := 0.0
	for _, v := range embedding {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return embedding
	}
	for i := range embedding {
		embedding[i] /= norm
	}
	return embedding
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
