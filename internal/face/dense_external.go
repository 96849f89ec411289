package face

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"
)

// ExternalDenseLandmarkProvider models a MediaPipe-style dense mesh
// landmarker as an external-process capability (spec.md §9's "is_available()
// probe" design note), grounded on MiFaceDEV-miface/pkg/mediapipe.Processor's
// shape but realized as a subprocess runner rather than a cgo bridge, since
// no mesh model or C++ toolchain ships with this module. The external binary
// receives a JPEG-encoded, aligned face crop on stdin and must write a JSON
// array of [x, y, z] points to stdout.
type ExternalDenseLandmarkProvider struct {
	bin     string
	timeout time.Duration
	log     *logrus.Entry
}

// NewExternalDenseLandmarkProvider probes bin on PATH at construction time
// and returns ok=false when it cannot be resolved, so callers degrade to
// "dense landmarks omitted" without error, per spec.md §4.3's failure
// semantics for optional backends.
func NewExternalDenseLandmarkProvider(bin string, log *logrus.Entry) (provider *ExternalDenseLandmarkProvider, ok bool) {
	if bin == "" {
		return nil, false
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "dense_landmark_provider")

	resolved, err := exec.LookPath(bin)
	if err != nil {
		log.Warnf("dense landmark backend %q not available: %v", bin, err)
		return nil, false
	}
	return &ExternalDenseLandmarkProvider{bin: resolved, timeout: 10 * time.Second, log: log}, true
}

// DenseLandmarks implements DenseLandmarkProvider by round-tripping the
// aligned crop through the external process.
func (p *ExternalDenseLandmarkProvider) DenseLandmarks(faceCrop image.Image) ([][3]float64, error) {
	var input bytes.Buffer
	if err := jpeg.Encode(&input, faceCrop, nil); err != nil {
		return nil, fmt.Errorf("encode face crop for dense landmark subprocess: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.bin)
	cmd.Stdin = &input
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		p.log.Warnf("dense landmark subprocess failed: %v (stderr: %s)", err, stderr.String())
		return nil, fmt.Errorf("dense landmark subprocess: %w", err)
	}

	var points [][3]float64
	if err := json.Unmarshal(stdout.Bytes(), &points); err != nil {
		return nil, fmt.Errorf("parse dense landmark subprocess output: %w", err)
	}
	return points, nil
}
