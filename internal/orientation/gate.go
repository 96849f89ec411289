// Package orientation implements C5: the orientation and quality gate
// that partitions a batch's FaceRecords into accepted and rejected sets.
//
// The cascading rule-then-reason shape (evaluate a threshold, append a
// named reason, stop) is grounded on internal/quality/fuzzy.go's
// assessQualityHard, generalized from a five-tier quality ladder to the
// spec's binary accept/reject decision.
package orientation

import (
	"math"

	"github.com/smegmarip/4d-photo-intel/internal/config"
	"github.com/smegmarip/4d-photo-intel/internal/pipestate"
)

// Gate evaluates every face against pose bounds and cluster similarity.
type Gate struct {
	Thresholds config.Thresholds
}

// NewGate builds a Gate from the pipeline's configured thresholds.
func NewGate(thresholds config.Thresholds) *Gate {
	return &Gate{Thresholds: thresholds}
}

// Evaluate implements C5's contract. similarityToDominant maps face ID to
// its similarity against the dominant cluster (see spec.md §4.5); faces
// absent from the map are treated as belonging to the sole cluster with
// similarity 1.0, matching the "fallback: all faces form one cluster"
// rule. faceless carries the image IDs for which C3 found no face at
// all; each becomes a no_face_detected verdict keyed by image ID rather
// than a face ID, flagged for manual review rather than auto-removal.
func (g *Gate) Evaluate(faces []pipestate.FaceRecord, similarityToDominant map[string]float64, faceless []string) ([]pipestate.OrientationVerdict, pipestate.OrientationSummary) {
	verdicts := make([]pipestate.OrientationVerdict, 0, len(faces)+len(faceless))

	for _, imageID := range faceless {
		verdicts = append(verdicts, pipestate.OrientationVerdict{
			FaceID:          imageID,
			Accepted:        false,
			RejectionReason: pipestate.RejectNoFaceDetected,
		})
	}

	var yaws, pitches, rolls, sims []float64
	var accepted int

	for _, f := range faces {
		if f.HeadPose == nil {
			verdicts = append(verdicts, pipestate.OrientationVerdict{
				FaceID:          f.FaceID,
				Accepted:        false,
				RejectionReason: pipestate.RejectNoFaceDetected,
			})
			continue
		}

		pose := *f.HeadPose
		orientationOK := math.Abs(pose.Yaw) <= g.Thresholds.MaxYaw &&
			math.Abs(pose.Pitch) <= g.Thresholds.MaxPitch &&
			math.Abs(pose.Roll) <= g.Thresholds.MaxRoll

		similarity, ok := similarityToDominant[f.FaceID]
		if !ok {
			similarity = 1.0
		}
		similarityOK := similarity >= g.Thresholds.DominantClusterSimilarity

		verdict := pipestate.OrientationVerdict{
			FaceID:               f.FaceID,
			Yaw:                  pose.Yaw,
			Pitch:                pose.Pitch,
			Roll:                 pose.Roll,
			OrientationOK:        orientationOK,
			SimilarityOK:         similarityOK,
			SimilarityToDominant: similarity,
		}

		switch {
		case !orientationOK:
			verdict.RejectionReason = pipestate.RejectOrientation
		case !similarityOK:
			verdict.RejectionReason = pipestate.RejectLowSimilarity
		default:
			verdict.Accepted = true
			accepted++
		}

		yaws = append(yaws, pose.Yaw)
		pitches = append(pitches, pose.Pitch)
		rolls = append(rolls, pose.Roll)
		sims = append(sims, similarity)

		verdicts = append(verdicts, verdict)
	}

	summary := pipestate.OrientationSummary{}
	total := len(faces) + len(faceless)
	if total > 0 {
		summary.AcceptanceRatio = float64(accepted) / float64(total)
	}
	summary.MeanYaw, summary.StdevYaw = meanStdev(yaws)
	summary.MeanPitch, summary.StdevPitch = meanStdev(pitches)
	summary.MeanRoll, summary.StdevRoll = meanStdev(rolls)
	if len(sims) > 0 {
		sum := 0.0
		for _, s := range sims {
			sum += s
		}
		summary.AverageSimilarity = sum / float64(len(sims))
	}

	return verdicts, summary
}

func meanStdev(values []float64) (mean, stdev float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var varSum float64
	for _, v := range values {
		d := v - mean
		varSum += d * d
	}
	stdev = math.Sqrt(varSum / float64(len(values)))
	return mean, stdev
}
