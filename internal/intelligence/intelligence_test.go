package intelligence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smegmarip/4d-photo-intel/internal/pipestate"
)

func frontal() *pipestate.HeadPose {
	return &pipestate.HeadPose{Yaw: 1, Pitch: 1, Roll: 1, Valid: true}
}

func turned() *pipestate.HeadPose {
	return &pipestate.HeadPose{Yaw: 40, Pitch: 20, Roll: 5, Valid: true}
}

func TestSynthesizeIdentityConfidenceAveragesSimilarityAndLiveness(t *testing.T) {
	in := Input{
		Similarity: pipestate.SimilarityAnalysis{SamePersonConfidence: 1.0},
		Frames: []FrameQuality{
			{Sharp: true, Exposed: true, Contrast: true, HeadPose: frontal()},
			{Sharp: true, Exposed: true, Contrast: true, HeadPose: frontal()},
		},
		Embeddings: [][]float64{{1, 0}, {1, 0}},
	}
	summary := Synthesize(in)
	// Liveness: 0.4*quality(1) + 0.3*pose variation(0, identical poses) +
	// 0.3*embedding consistency(1) = 0.7; identity = (1.0 + 0.7) / 2.
	assert.InDelta(t, 0.7, summary.LivenessConfidence, 0.05)
	assert.InDelta(t, 0.85, summary.IdentityConfidence, 0.05)
}

func TestSynthesizeRiskHighConfidenceRequiresThreeFindings(t *testing.T) {
	in := Input{
		Similarity: pipestate.SimilarityAnalysis{SamePersonConfidence: 1.0},
		Frames: []FrameQuality{
			{Sharp: true, Exposed: true, Contrast: true, HeadPose: frontal()},
		},
		Anomalies: pipestate.OSINTAnomalies{
			PerImage: []pipestate.ImageAnomalies{
				{ImageID: "a", Anomalies: []string{"device_mismatch", "brightness_outlier", "hash_duplicate"}},
			},
		},
	}
	summary := Synthesize(in)
	assert.Equal(t, pipestate.RiskHighConfidence, summary.RiskAssessment)
}

func TestSynthesizeRiskModerateWithoutEnoughFindings(t *testing.T) {
	in := Input{
		Similarity: pipestate.SimilarityAnalysis{SamePersonConfidence: 1.0},
		Frames: []FrameQuality{
			{Sharp: true, Exposed: true, Contrast: true, HeadPose: frontal()},
		},
	}
	summary := Synthesize(in)
	assert.Equal(t, pipestate.RiskModerate, summary.RiskAssessment)
}

func TestSynthesizeRiskLowWithWeakIdentityConfidence(t *testing.T) {
	in := Input{
		Similarity: pipestate.SimilarityAnalysis{SamePersonConfidence: 0.1},
		Frames: []FrameQuality{
			{Sharp: false, Exposed: false, Contrast: false, HeadPose: frontal()},
		},
	}
	summary := Synthesize(in)
	assert.Equal(t, pipestate.RiskLowOrSynthetic, summary.RiskAssessment)
}

func TestPoseVariationScoreNormalizesRangeTo180(t *testing.T) {
	frames := []FrameQuality{
		{HeadPose: frontal()},
		{HeadPose: turned()},
	}
	score := poseVariationScore(frames)
	assert.Greater(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestEmbeddingConsistencyScoreIsOneForIdenticalEmbeddings(t *testing.T) {
	score := embeddingConsistencyScore([][]float64{{1, 2, 3}, {1, 2, 3}})
	assert.Equal(t, 1.0, score)
}

func TestRecommendationsPreserveFixedOrder(t *testing.T) {
	recs := recommendations(recommendationInputs{
		zeroOSINTFindings: true,
		lowCredibility:    true,
	})
	assert.Len(t, recs, 2)
	assert.Contains(t, recs[0], "credibility")
	assert.Contains(t, recs[1], "OSINT")
}

func TestRecommendationsEmptyWhenNoConditionsMatch(t *testing.T) {
	assert.Empty(t, recommendations(recommendationInputs{}))
}
