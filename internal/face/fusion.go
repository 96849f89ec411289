package face

import (
	"fmt"
	"image"

	"github.com/smegmarip/4d-photo-intel/internal/pipestate"
)

// Detector orchestrates up to three capability providers into the unified
// per-face record spec.md §4.3 calls for: a primary embedding-producing
// detector (tried fast, then accurate on an empty result), an optional
// independent landmark detector whose boxes are fused by IoU, and an
// optional dense-mesh landmarker operating on the aligned crop.
type Detector struct {
	Fast       Provider
	Accurate   Provider
	Landmark68 Provider // independent backend; fused by IoU against Fast/Accurate's boxes
	Dense      DenseLandmarkProvider
}

// DetectFaces implements C3's contract: decoded pixels in, FaceRecords out.
func (d *Detector) DetectFaces(img image.Image, imageIndex int) ([]pipestate.FaceRecord, error) {
	primary, primaryName, err := d.detectPrimary(img)
	if err != nil {
		return nil, fmt.Errorf("primary face detection: %w", err)
	}

	var secondary []DetectedFace
	if d.Landmark68 != nil {
		secondary, _ = d.Landmark68.Detect(img)
	}

	imgArea := img.Bounds().Dx() * img.Bounds().Dy()
	records := make([]pipestate.FaceRecord, 0, len(primary))

	for i, det := range primary {
		bbox := toBBox(det.BBox)
		landmarks := det.Landmarks68
		if len(landmarks) == 0 {
			landmarks = bestIoUMatch(bbox, secondary)
		}

		record := pipestate.FaceRecord{
			FaceID:         fmt.Sprintf("%d_%d", imageIndex, i),
			ImageIndex:     imageIndex,
			FaceIndex:      i,
			BBox:           bbox,
			Embedding:      det.Embedding,
			Landmarks68:    landmarks,
			DetectionModel: primaryName,
			Confidence:     det.RawConfidence,
		}

		if aligned, ok := alignedCrop(img, landmarks); ok && d.Fast != nil {
			if reencoded, rerr := d.Fast.Detect(aligned); rerr == nil && len(reencoded) > 0 {
				record.Embedding = reencoded[0].Embedding
			}
			if d.Dense != nil {
				if dense, derr := d.Dense.DenseLandmarks(aligned); derr == nil {
					record.LandmarksDense = toDenseLandmarks(dense)
				}
			}
		} else if d.Dense != nil {
			cropped := cropImage(img, det.BBox)
			if dense, derr := d.Dense.DenseLandmarks(cropped); derr == nil {
				record.LandmarksDense = toDenseLandmarks(dense)
			}
		}

		if pose, ok := estimatePose(landmarks); ok {
			record.HeadPose = &pose
		}

		record.Quality = qualityMetrics(img, det.BBox)
		record.Confidence = compositeConfidence(record.Quality, bbox.Area(), imgArea)
		record.Symmetry = symmetryScore(img, det.BBox)

		records = append(records, record)
	}

	return records, nil
}

// detectPrimary implements the "try fast, then accurate if empty" policy.
func (d *Detector) detectPrimary(img image.Image) ([]DetectedFace, string, error) {
	if d.Fast != nil {
		faces, err := d.Fast.Detect(img)
		if err == nil && len(faces) > 0 {
			return faces, d.Fast.Name(), nil
		}
	}
	if d.Accurate != nil {
		faces, err := d.Accurate.Detect(img)
		if err != nil {
			return nil, "", err
		}
		return faces, d.Accurate.Name(), nil
	}
	if d.Fast != nil {
		faces, err := d.Fast.Detect(img)
		return faces, d.Fast.Name(), err
	}
	return nil, "fallback", nil
}

func toBBox(r image.Rectangle) pipestate.BBox {
	return pipestate.BBox{Top: r.Min.Y, Left: r.Min.X, Right: r.Max.X, Bottom: r.Max.Y}
}

func toDenseLandmarks(points [][3]float64) pipestate.LandmarkDense {
	out := make(pipestate.LandmarkDense, len(points))
	for i, p := range points {
		out[i] = pipestate.Point3{X: p[0], Y: p[1], Z: p[2]}
	}
	return out
}

// bestIoUMatch attaches landmarks from the independent backend detection
// whose box overlaps primaryBBox by IoU >= 0.5, per spec.md §4.3.
func bestIoUMatch(primaryBBox pipestate.BBox, candidates []DetectedFace) [][2]float64 {
	best := -1.0
	var landmarks [][2]float64
	for _, c := range candidates {
		iou := primaryBBox.IoU(toBBox(c.BBox))
		if iou >= 0.5 && iou > best {
			best = iou
			landmarks = c.Landmarks68
		}
	}
	return landmarks
}

func cropImage(img image.Image, r image.Rectangle) image.Image {
	r = r.Intersect(img.Bounds())
	type subImager interface {
		SubImage(image.Rectangle) image.Image
	}
	if si, ok := img.(subImager); ok {
		return si.SubImage(r)
	}
	return img
}

func symmetryScore(img image.Image, bbox image.Rectangle) float64 {
	_, symmetry := varianceAndSymmetry(img, bbox)
	return symmetry
}
