package face

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"

	dlibface "github.com/Kagami/go-face"
)

// DlibProvider wraps github.com/Kagami/go-face as the primary,
// embedding-producing detection backend. Grounded on
// internal/quality/detector.go's Detector: go-face only recognizes from a
// file path, so Detect round-trips through a temp JPEG exactly as
// DetectBytes does there.
type DlibProvider struct {
	rec            *dlibface.Recognizer
	use68Landmarks bool
}

// NewDlibProvider initializes the dlib recognizer against modelsDir, which
// must contain the standard go-face model files (and, when
// use68Landmarks is set, shape_predictor_68_face_landmarks.dat).
func NewDlibProvider(modelsDir string, use68Landmarks bool) (*DlibProvider, error) {
	rec, err := dlibface.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("initialize dlib recognizer: %w", err)
	}
	return &DlibProvider{rec: rec, use68Landmarks: use68Landmarks}, nil
}

// Close releases the underlying dlib recognizer.
func (d *DlibProvider) Close() {
	if d.rec != nil {
		d.rec.Close()
	}
}

func (d *DlibProvider) Name() string {
	if d.use68Landmarks {
		return "dlib_68"
	}
	return "dlib_5"
}

// Detect writes img to a temp JPEG and runs go-face's RecognizeFile
// against it, since the underlying dlib binding only accepts file paths.
func (d *DlibProvider) Detect(img image.Image) ([]DetectedFace, error) {
	tmp, err := os.CreateTemp("", "face-detect-*.jpg")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := jpeg.Encode(tmp, img, &jpeg.Options{Quality: 95}); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("encode temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	faces, err := d.rec.RecognizeFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("recognize faces: %w", err)
	}

	out := make([]DetectedFace, 0, len(faces))
	for _, f := range faces {
		embedding := make([]float64, len(f.Descriptor))
		for i, v := range f.Descriptor {
			embedding[i] = float64(v)
		}
		landmarks := make([][2]float64, len(f.Shapes))
		for i, p := range f.Shapes {
			landmarks[i] = [2]float64{float64(p.X), float64(p.Y)}
		}
		out = append(out, DetectedFace{
			BBox:           f.Rectangle,
			Embedding:      embedding,
			Landmarks68:    landmarks,
			DetectionModel: d.Name(),
			RawConfidence:  1.0,
		})
	}
	return out, nil
}
