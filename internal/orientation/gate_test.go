package orientation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smegmarip/4d-photo-intel/internal/config"
	"github.com/smegmarip/4d-photo-intel/internal/pipestate"
)

func TestEvaluateAcceptsFrontalFaceWithHighSimilarity(t *testing.T) {
	gate := NewGate(config.DefaultThresholds())
	faces := []pipestate.FaceRecord{
		{FaceID: "f1", HeadPose: &pipestate.HeadPose{Yaw: 5, Pitch: 5, Roll: 5, Valid: true}},
	}
	verdicts, summary := gate.Evaluate(faces, map[string]float64{"f1": 0.9}, nil)
	require.Len(t, verdicts, 1)
	assert.True(t, verdicts[0].Accepted)
	assert.Equal(t, pipestate.RejectNone, verdicts[0].RejectionReason)
	assert.InDelta(t, 1.0, summary.AcceptanceRatio, 0.0001)
}

func TestEvaluateRejectsExcessiveYaw(t *testing.T) {
	gate := NewGate(config.DefaultThresholds())
	faces := []pipestate.FaceRecord{
		{FaceID: "f1", HeadPose: &pipestate.HeadPose{Yaw: 60, Pitch: 0, Roll: 0, Valid: true}},
	}
	verdicts, _ := gate.Evaluate(faces, map[string]float64{"f1": 0.9}, nil)
	require.Len(t, verdicts, 1)
	assert.False(t, verdicts[0].Accepted)
	assert.Equal(t, pipestate.RejectOrientation, verdicts[0].RejectionReason)
}

func TestEvaluateRejectsLowSimilarityToDominantCluster(t *testing.T) {
	gate := NewGate(config.DefaultThresholds())
	faces := []pipestate.FaceRecord{
		{FaceID: "f1", HeadPose: &pipestate.HeadPose{Yaw: 0, Pitch: 0, Roll: 0, Valid: true}},
	}
	verdicts, _ := gate.Evaluate(faces, map[string]float64{"f1": 0.1}, nil)
	require.Len(t, verdicts, 1)
	assert.False(t, verdicts[0].Accepted)
	assert.Equal(t, pipestate.RejectLowSimilarity, verdicts[0].RejectionReason)
}

func TestEvaluateFallsBackToSingleClusterWhenSimilarityMissing(t *testing.T) {
	gate := NewGate(config.DefaultThresholds())
	faces := []pipestate.FaceRecord{
		{FaceID: "f1", HeadPose: &pipestate.HeadPose{Yaw: 0, Pitch: 0, Roll: 0, Valid: true}},
	}
	verdicts, _ := gate.Evaluate(faces, map[string]float64{}, nil)
	assert.True(t, verdicts[0].Accepted)
}

func TestEvaluateMarksFacelessImagesForManualReview(t *testing.T) {
	gate := NewGate(config.DefaultThresholds())
	verdicts, summary := gate.Evaluate(nil, nil, []string{"img_001"})
	require.Len(t, verdicts, 1)
	assert.Equal(t, "img_001", verdicts[0].FaceID)
	assert.Equal(t, pipestate.RejectNoFaceDetected, verdicts[0].RejectionReason)
	assert.Equal(t, 0.0, summary.AcceptanceRatio)
}
