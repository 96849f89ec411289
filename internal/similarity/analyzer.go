package similarity

import (
	"github.com/smegmarip/4d-photo-intel/internal/pipestate"
)

// Analyze implements C4's contract exactly: pairwise distance/cosine
// blend, reference embedding, DBSCAN clustering, and the fixed verdict
// thresholds from spec.md §4.4.
func Analyze(faces []pipestate.FaceRecord) pipestate.SimilarityAnalysis {
	embedded := make([]pipestate.FaceRecord, 0, len(faces))
	for _, f := range faces {
		if len(f.Embedding) > 0 {
			embedded = append(embedded, f)
		}
	}

	if len(embedded) < 2 {
		return pipestate.SimilarityAnalysis{
			IdentityAssessment: pipestate.InsufficientData,
			DominantCluster:    -1,
		}
	}

	n := len(embedded)
	vectors := make([][]float64, n)
	for i, f := range embedded {
		vectors[i] = f.Embedding
	}

	matrix := make([][]float64, n)
	var upperSum float64
	var upperCount int
	for i := 0; i < n; i++ {
		matrix[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			if i == j {
				matrix[i][j] = 1
				continue
			}
			euclidSim := 1 - euclideanDistance(vectors[i], vectors[j])
			cosineSim := cosineSimilarity(vectors[i], vectors[j])
			blended := (euclidSim + cosineSim) / 2
			matrix[i][j] = blended
			if j > i {
				upperSum += blended
				upperCount++
			}
		}
	}

	samePersonConfidence := 0.0
	if upperCount > 0 {
		samePersonConfidence = upperSum / float64(upperCount)
	}

	reference := normalize(meanPool(vectors))
	perFaceSimilarity := make(map[string]float64, n)
	for i, f := range embedded {
		perFaceSimilarity[f.FaceID] = cosineSimilarity(normalize(vectors[i]), reference)
	}

	labels := DBSCAN(vectors, DefaultParams())
	clusterCount, noiseCount := labels.ClusterCount()
	dominant := labels.Dominant()

	assignments := make([]pipestate.ClusterAssignment, n)
	for i, f := range embedded {
		assignments[i] = pipestate.ClusterAssignment{FaceID: f.FaceID, Label: labels[i]}
	}

	var verdict pipestate.IdentityAssessment
	switch {
	case samePersonConfidence > 0.5:
		verdict = pipestate.SamePersonHigh
	case samePersonConfidence > 0.25:
		verdict = pipestate.SamePersonModerate
	default:
		verdict = pipestate.DifferentPeople
	}

	return pipestate.SimilarityAnalysis{
		PairwiseMatrix:               matrix,
		ReferenceEmbedding:           reference,
		PerFaceSimilarityToReference: perFaceSimilarity,
		SamePersonConfidence:         samePersonConfidence,
		IdentityAssessment:           verdict,
		Clusters:                     assignments,
		ClusterCount:                 clusterCount,
		NoiseCount:                   noiseCount,
		DominantCluster:              dominant,
	}
}
