package face

import (
	"image"
	"math"

	"github.com/smegmarip/4d-photo-intel/internal/pipestate"
)

// qualityMetrics implements spec.md §4.3's blur/brightness/contrast triple:
// blur_variance is the variance of the Laplacian, brightness is mean luma,
// contrast is the stdev of luma.
func qualityMetrics(img image.Image, bbox image.Rectangle) pipestate.QualityMetrics {
	bounds := img.Bounds()
	clamped := bbox.Intersect(bounds)
	if clamped.Dx() < 3 || clamped.Dy() < 3 {
		return pipestate.QualityMetrics{}
	}

	width, height := clamped.Dx(), clamped.Dy()
	lumas := make([][]float64, height)
	for y := 0; y < height; y++ {
		lumas[y] = make([]float64, width)
		for x := 0; x < width; x++ {
			lumas[y][x] = luma(img, clamped.Min.X+x, clamped.Min.Y+y)
		}
	}

	var sum float64
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			sum += lumas[y][x]
		}
	}
	mean := sum / float64(width*height)

	var varianceSum float64
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			d := lumas[y][x] - mean
			varianceSum += d * d
		}
	}
	contrast := math.Sqrt(varianceSum / float64(width*height))

	var laplacianVarianceSum, laplacianMean float64
	laplacians := make([]float64, 0, (width-2)*(height-2))
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			lap := 4*lumas[y][x] - lumas[y-1][x] - lumas[y+1][x] - lumas[y][x-1] - lumas[y][x+1]
			laplacians = append(laplacians, lap)
			laplacianMean += lap
		}
	}
	if len(laplacians) > 0 {
		laplacianMean /= float64(len(laplacians))
		for _, v := range laplacians {
			d := v - laplacianMean
			laplacianVarianceSum += d * d
		}
		laplacianVarianceSum /= float64(len(laplacians))
	}

	return pipestate.QualityMetrics{
		BlurVariance: laplacianVarianceSum,
		Brightness:   mean,
		Contrast:     contrast,
	}
}

// compositeConfidence implements spec.md §4.3's composite scoring:
// 0.5*sharpness + 0.2*exposure + 0.2*contrast + 0.1*relative size.
func compositeConfidence(q pipestate.QualityMetrics, bboxArea, imageArea int) float64 {
	sharpness := clamp01(q.BlurVariance / 500.0)
	exposure := clamp01(1.0 - math.Abs(q.Brightness-128.0)/128.0)
	contrast := clamp01(q.Contrast / 80.0)

	relativeSize := 0.0
	if imageArea > 0 {
		relativeSize = clamp01(float64(bboxArea) / float64(imageArea) * 5.0)
	}

	return clamp01(0.5*sharpness + 0.2*exposure + 0.2*contrast + 0.1*relativeSize)
}
