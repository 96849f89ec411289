package face

import (
	"github.com/sirupsen/logrus"
)

// NewDetector implements spec.md §9's "Dynamic detector availability"
// design note: each candidate backend is probed at construction time and
// the chosen stack is recorded, so the rest of the system only ever sees
// the abstract FaceRecord contract. Grounded on the same try-then-fallback
// shape as detectPrimary, lifted one level up to backend selection itself.
//
// modelsDir must contain go-face's standard model files for the dlib
// backend to become available; an empty or unusable modelsDir degrades to
// the heuristic-only stack without error, per spec.md §4.3's "entirely
// absent primary detector" failure mode.
func NewDetector(modelsDir string, use68Landmarks bool, log *logrus.Entry) (*Detector, []string) {
	return NewDetectorWithDense(modelsDir, use68Landmarks, "", log)
}

// NewDetectorWithDense is NewDetector plus an optional dense-mesh landmarker
// binary (spec.md §9's optional dense-landmark capability). An empty
// denseLandmarkBin or one that fails exec.LookPath probing degrades to
// "dense landmarks omitted" without affecting the rest of the stack.
func NewDetectorWithDense(modelsDir string, use68Landmarks bool, denseLandmarkBin string, log *logrus.Entry) (*Detector, []string) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "face_detector")

	heuristic := NewHeuristicProvider()
	d := &Detector{Fast: heuristic, Accurate: heuristic}
	primaryStack := []string{"fallback"}

	var denseStack []string
	if dense, ok := NewExternalDenseLandmarkProvider(denseLandmarkBin, log); ok {
		d.Dense = dense
		denseStack = append(denseStack, dense.bin)
	}

	if modelsDir != "" {
		if dlib, err := NewDlibProvider(modelsDir, use68Landmarks); err != nil {
			log.Warnf("dlib backend unavailable, falling back to heuristic detector: %v", err)
		} else {
			log.Infof("dlib backend available: %s", dlib.Name())
			d.Fast = dlib
			d.Accurate = dlib
			if use68Landmarks {
				d.Landmark68 = dlib
			}
			primaryStack = []string{dlib.Name(), "fallback"}
		}
	} else {
		log.Warn("no models_dir configured, face detection stack is heuristic-only")
	}

	return d, append(primaryStack, denseStack...)
}
