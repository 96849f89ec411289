package face

import (
	"math"

	"github.com/smegmarip/4d-photo-intel/internal/pipestate"
)

// dlib's standard 68-point layout; 0-indexed.
const (
	landmarkChin          = 8
	landmarkLeftEyeCorner  = 36
	landmarkRightEyeCorner = 45
	landmarkNoseTip        = 30
	landmarkLeftMouth      = 48
	landmarkRightMouth     = 54
)

// estimatePose derives yaw/pitch/roll from the six canonical
// correspondences named in spec.md §4.3 (nose tip, chin, eye corners,
// mouth corners). No solvePnP implementation exists anywhere in the
// available library set (gocv's cgo binding is the only Go package found
// with SolvePnP, and pulling in an OpenCV cgo dependency for a single
// call is out of proportion), so pose is approximated geometrically:
// roll from the eye-line angle, yaw from the nose tip's horizontal
// offset between the eye corners, pitch from the vertical ratio between
// the eye-to-nose and nose-to-chin spans. Returns ok=false when any of
// the six landmarks is unavailable.
func estimatePose(landmarks [][2]float64) (pose pipestate.HeadPose, ok bool) {
	required := []int{landmarkChin, landmarkLeftEyeCorner, landmarkRightEyeCorner, landmarkNoseTip, landmarkLeftMouth, landmarkRightMouth}
	for _, idx := range required {
		if idx >= len(landmarks) {
			return pipestate.HeadPose{}, false
		}
	}

	chin := landmarks[landmarkChin]
	leftEye := landmarks[landmarkLeftEyeCorner]
	rightEye := landmarks[landmarkRightEyeCorner]
	nose := landmarks[landmarkNoseTip]
	leftMouth := landmarks[landmarkLeftMouth]
	rightMouth := landmarks[landmarkRightMouth]

	eyeDX := rightEye[0] - leftEye[0]
	eyeDY := rightEye[1] - leftEye[1]
	roll := math.Atan2(eyeDY, eyeDX) * 180.0 / math.Pi

	eyeMidX := (leftEye[0] + rightEye[0]) / 2.0
	eyeDist := math.Hypot(eyeDX, eyeDY)
	if eyeDist == 0 {
		return pipestate.HeadPose{}, false
	}
	yaw := ((nose[0] - eyeMidX) / eyeDist) * 90.0

	eyeMidY := (leftEye[1] + rightEye[1]) / 2.0
	mouthMidY := (leftMouth[1] + rightMouth[1]) / 2.0
	noseToEye := nose[1] - eyeMidY
	noseToChin := chin[1] - nose[1]
	faceHeight := mouthMidY - eyeMidY
	if faceHeight == 0 {
		return pipestate.HeadPose{}, false
	}
	expectedRatio := 0.55 // empirical eye->nose / nose->chin ratio for a frontal face
	actualRatio := 0.0
	if noseToChin != 0 {
		actualRatio = noseToEye / noseToChin
	}
	pitch := (actualRatio - expectedRatio) * 60.0

	return pipestate.HeadPose{
		Yaw:   clampDegrees(yaw),
		Pitch: clampDegrees(pitch),
		Roll:  clampDegrees(roll),
		Valid: true,
	}, true
}

func clampDegrees(v float64) float64 {
	if v > 90 {
		return 90
	}
	if v < -90 {
		return -90
	}
	return v
}
