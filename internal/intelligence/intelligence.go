// Package intelligence implements C11: fusing similarity, liveness,
// OSINT, and reverse-search signals into the terminal IntelligenceSummary.
package intelligence

import (
	"math"

	"github.com/smegmarip/4d-photo-intel/internal/pipestate"
)

// FrameQuality is the per-frame sharpness/exposure/contrast triple the
// liveness composite draws from.
type FrameQuality struct {
	Sharp    bool // blur_variance above the sharpness floor
	Exposed  bool // brightness within the acceptable exposure band
	Contrast bool // contrast above the low-contrast floor
	HeadPose *pipestate.HeadPose
}

// Input bundles everything Synthesize needs to read.
type Input struct {
	Similarity          pipestate.SimilarityAnalysis
	Frames              []FrameQuality
	Embeddings          [][]float64
	Anomalies           pipestate.OSINTAnomalies
	Metadata            []pipestate.ImageMetadata
	ReverseResults      []pipestate.ReverseImageResult
}

// Synthesize implements C11's contract.
func Synthesize(in Input) pipestate.IntelligenceSummary {
	liveness := livenessConfidence(in.Frames, in.Embeddings)
	identityConfidence := (in.Similarity.SamePersonConfidence + liveness) / 2.0

	findings := osintFindings(in.Anomalies)
	summary := pipestate.IntelligenceSummary{
		IdentityConfidence: identityConfidence,
		LivenessConfidence: liveness,
		OSINTFindings:      findings,
		TechnicalQuality:   qualityRate(in.Frames, isSharp),
		AnomaliesSummary:   anomaliesSummary(in.Anomalies),
	}

	summary.AverageMetadataCredibility = averageCredibility(in.Metadata)
	summary.DuplicateHashesDetected = len(in.Anomalies.Global.HashDuplicates) > 0

	switch {
	case identityConfidence > 0.8 && len(findings) >= 3:
		summary.RiskAssessment = pipestate.RiskHighConfidence
	case identityConfidence > 0.5:
		summary.RiskAssessment = pipestate.RiskModerate
	default:
		summary.RiskAssessment = pipestate.RiskLowOrSynthetic
	}

	summary.Recommendations = recommendations(recommendationInputs{
		lowCredibility:         summary.AverageMetadataCredibility < 0.5,
		hashDuplicates:         summary.DuplicateHashesDetected,
		deviceInconsistencies:  len(in.Anomalies.Global.DeviceInconsistencies) > 0,
		timestampIssues:        len(in.Anomalies.Global.TimestampInconsistencies) > 0,
		isolatedGPS:            len(in.Anomalies.Global.IsolatedGPS) > 0,
		brightnessOutliers:     len(in.Anomalies.Global.BrightnessOutliers) > 0,
		fewerThanThreeImages:   len(in.Metadata) < 3,
		zeroOSINTFindings:      len(findings) == 0,
	})

	return summary
}

func isSharp(f FrameQuality) bool { return f.Sharp }

func qualityRate(frames []FrameQuality, pred func(FrameQuality) bool) float64 {
	if len(frames) == 0 {
		return 0
	}
	count := 0
	for _, f := range frames {
		if pred(f) {
			count++
		}
	}
	return float64(count) / float64(len(frames))
}

// livenessConfidence composes quality_score, pose_variation_score, and
// embedding_consistency per spec.md §4.11's fixed weights.
func livenessConfidence(frames []FrameQuality, embeddings [][]float64) float64 {
	if len(frames) == 0 {
		return 0
	}
	sharpRate := qualityRate(frames, func(f FrameQuality) bool { return f.Sharp })
	exposureRate := qualityRate(frames, func(f FrameQuality) bool { return f.Exposed })
	contrastRate := qualityRate(frames, func(f FrameQuality) bool { return f.Contrast })
	qualityScore := 0.5*sharpRate + 0.25*exposureRate + 0.25*contrastRate

	poseVariation := poseVariationScore(frames)
	embeddingConsistency := embeddingConsistencyScore(embeddings)

	return 0.4*qualityScore + 0.3*poseVariation + 0.3*embeddingConsistency
}

// poseVariationScore is the range of |yaw|+|pitch|+|roll| across frames
// with a valid head pose, normalized to 180 degrees.
func poseVariationScore(frames []FrameQuality) float64 {
	var values []float64
	for _, f := range frames {
		if f.HeadPose == nil || !f.HeadPose.Valid {
			continue
		}
		values = append(values, math.Abs(f.HeadPose.Yaw)+math.Abs(f.HeadPose.Pitch)+math.Abs(f.HeadPose.Roll))
	}
	if len(values) == 0 {
		return 0
	}
	minV, maxV := values[0], values[0]
	for _, v := range values {
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}
	return math.Min(1.0, (maxV-minV)/180.0)
}

// embeddingConsistencyScore is 1 minus the mean pairwise distance across
// embeddings, clamped to [0,1].
func embeddingConsistencyScore(embeddings [][]float64) float64 {
	if len(embeddings) < 2 {
		return 1.0
	}
	var sum float64
	pairs := 0
	for i := 0; i < len(embeddings); i++ {
		for j := i + 1; j < len(embeddings); j++ {
			sum += euclideanDistance(embeddings[i], embeddings[j])
			pairs++
		}
	}
	if pairs == 0 {
		return 1.0
	}
	mean := sum / float64(pairs)
	consistency := 1.0 - mean
	if consistency < 0 {
		return 0
	}
	if consistency > 1 {
		return 1
	}
	return consistency
}

func euclideanDistance(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func osintFindings(anomalies pipestate.OSINTAnomalies) []string {
	var findings []string
	for _, img := range anomalies.PerImage {
		findings = append(findings, img.Anomalies...)
	}
	return findings
}

func anomaliesSummary(anomalies pipestate.OSINTAnomalies) map[string]int {
	summary := map[string]int{}
	for _, img := range anomalies.PerImage {
		for _, a := range img.Anomalies {
			summary[a]++
		}
	}
	return summary
}

func averageCredibility(metadata []pipestate.ImageMetadata) float64 {
	if len(metadata) == 0 {
		return 0
	}
	var sum float64
	for _, m := range metadata {
		sum += m.CredibilityScore
	}
	return sum / float64(len(metadata))
}
