package orchestrator_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smegmarip/4d-photo-intel/internal/config"
	"github.com/smegmarip/4d-photo-intel/internal/face"
	"github.com/smegmarip/4d-photo-intel/internal/orchestrator"
	"github.com/smegmarip/4d-photo-intel/internal/pipestate"
	"github.com/smegmarip/4d-photo-intel/internal/provenance"
)

// fakeProvider stands in for a real detection backend in tests: a fixed,
// frontal 68-point landmark set (so estimatePose succeeds) paired with a
// caller-supplied embedding (so similarity/clustering behavior is exactly
// controllable).
type fakeProvider struct {
	embedding []float64
}

func (f fakeProvider) Name() string { return "fake" }

func (f fakeProvider) Detect(img image.Image) ([]face.DetectedFace, error) {
	bounds := img.Bounds()
	landmarks := make([][2]float64, 68)
	for i := range landmarks {
		landmarks[i] = [2]float64{100, 100}
	}
	landmarks[36] = [2]float64{70, 90}   // left eye corner
	landmarks[45] = [2]float64{130, 90}  // right eye corner
	landmarks[30] = [2]float64{100, 110} // nose tip
	landmarks[8] = [2]float64{100, 150}  // chin
	landmarks[48] = [2]float64{85, 130}  // left mouth corner
	landmarks[54] = [2]float64{115, 130} // right mouth corner

	return []face.DetectedFace{{
		BBox:           image.Rect(bounds.Min.X+20, bounds.Min.Y+20, bounds.Max.X-20, bounds.Max.Y-20),
		Embedding:      f.embedding,
		Landmarks68:    landmarks,
		DetectionModel: "fake",
		RawConfidence:  0.9,
	}}, nil
}

func pngBytes(t *testing.T, seed uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x) + seed, G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func unitEmbedding(values ...float64) []float64 {
	return values
}

func newTestOrchestrator(detector *face.Detector) *orchestrator.Orchestrator {
	return orchestrator.New(orchestrator.Dependencies{
		Config:   config.Default(),
		Detector: detector,
	})
}

func TestProcessSamePersonHappyPath(t *testing.T) {
	emb := unitEmbedding(1, 0, 0, 0)
	detector := &face.Detector{Fast: fakeProvider{embedding: emb}}
	o := newTestOrchestrator(detector)

	images := [][]byte{pngBytes(t, 0), pngBytes(t, 10), pngBytes(t, 20)}
	state := o.Process(context.Background(), images, "user-1", "batch-1")

	require.True(t, state.Success)
	assert.False(t, state.Cancelled)
	assert.Equal(t, 3, state.ImagesProcessed)
	assert.Equal(t, 3, state.ComplianceSummary.Accepted)
	assert.Len(t, state.FacesDetected, 3)

	assert.Equal(t, pipestate.SamePersonHigh, state.SimilarityAnalysis.IdentityAssessment)
	assert.Equal(t, 0, state.SimilarityAnalysis.DominantCluster)

	require.Len(t, state.OrientationVerdicts, 3)
	for _, v := range state.OrientationVerdicts {
		assert.True(t, v.Accepted, "face %s should pass the orientation gate", v.FaceID)
	}
	assert.InDelta(t, 1.0, state.OrientationSummary.AcceptanceRatio, 1e-9)

	// No dense-mesh provider is wired in this test's Detector, so C7 must
	// fall back to merging the 68-point landmarks the fake backend supplies;
	// otherwise C7/C8 would see zero points despite a fully accepted batch.
	require.Greater(t, len(state.Landmarks3D.Points), 0)
	assert.Greater(t, len(state.Model4D.FacialPoints), 0)
	assert.Greater(t, state.Model4D.ConfidenceScore, 0.5)
	assert.NotEmpty(t, state.Model4D.ModelHash)
	assert.Equal(t, pipestate.ComplianceAccepted, state.Model4D.ComplianceStatus)

	result, ok := state.ReverseImageResults["img_000"]
	require.True(t, ok, "accepted image img_000 should have a reverse search result")
	assert.False(t, result.Disabled)
	assert.Equal(t, 3, state.OSINTMetrics.ReverseSearchStats.Successes)

	for _, stage := range []pipestate.StageName{
		pipestate.StageIngestion, pipestate.StageDetection, pipestate.StageSimilarity,
		pipestate.StageOrientation, pipestate.StageIsolation, pipestate.StageLandmarkMerge,
		pipestate.StageRefine4D, pipestate.StageOSINT, pipestate.StageReverseSearch, pipestate.StageSynthesis,
	} {
		found := false
		for _, s := range state.StageStatuses {
			if s.Stage == stage {
				found = true
				assert.Equal(t, pipestate.StageCompleted, s.State, "stage %s", stage)
			}
		}
		assert.True(t, found, "expected a status entry for stage %s", stage)
	}
}

func TestProcessTwoPeopleMixedRejectsMinority(t *testing.T) {
	a := unitEmbedding(1, 0, 0, 0)
	b := unitEmbedding(0, 1, 0, 0)

	images := [][]byte{pngBytes(t, 0), pngBytes(t, 10), pngBytes(t, 20), pngBytes(t, 30)}

	// Three frames of person A, one frame of person B. One Detector serves
	// the whole batch, so the provider hands out embeddings by call count.
	// DetectFaces calls Detect twice per image (detection, then re-encoding
	// of the aligned crop, whose embedding is kept), so each image uses two
	// entries; calls past the end reuse the last one.
	calls := 0
	embeddings := [][]float64{a, a, a, a, a, a, b}
	provider := callCountingProvider{embeddings: embeddings, calls: &calls}
	detector := &face.Detector{Fast: provider}
	o := newTestOrchestrator(detector)

	state := o.Process(context.Background(), images, "user-2", "batch-2")

	require.True(t, state.Success)
	assert.Equal(t, 4, state.ComplianceSummary.Accepted)
	assert.Len(t, state.FacesDetected, 4)

	accepted := 0
	for _, v := range state.OrientationVerdicts {
		if v.Accepted {
			accepted++
		}
	}
	assert.Equal(t, 3, accepted, "only the dominant cluster's three frames should pass the gate")
	assert.Less(t, state.OrientationSummary.AcceptanceRatio, 1.0)
}

type callCountingProvider struct {
	embeddings [][]float64
	calls      *int
}

func (p callCountingProvider) Name() string { return "fake" }

func (p callCountingProvider) Detect(img image.Image) ([]face.DetectedFace, error) {
	idx := *p.calls
	if idx >= len(p.embeddings) {
		idx = len(p.embeddings) - 1
	}
	*p.calls++

	bounds := img.Bounds()
	landmarks := make([][2]float64, 68)
	for i := range landmarks {
		landmarks[i] = [2]float64{100, 100}
	}
	landmarks[36] = [2]float64{70, 90}
	landmarks[45] = [2]float64{130, 90}
	landmarks[30] = [2]float64{100, 110}
	landmarks[8] = [2]float64{100, 150}
	landmarks[48] = [2]float64{85, 130}
	landmarks[54] = [2]float64{115, 130}

	return []face.DetectedFace{{
		BBox:           image.Rect(bounds.Min.X+20, bounds.Min.Y+20, bounds.Max.X-20, bounds.Max.Y-20),
		Embedding:      p.embeddings[idx],
		Landmarks68:    landmarks,
		DetectionModel: "fake",
		RawConfidence:  0.9,
	}}, nil
}

func TestProcessEmptyBatch(t *testing.T) {
	detector := &face.Detector{Fast: fakeProvider{embedding: unitEmbedding(1, 0)}}
	o := newTestOrchestrator(detector)

	state := o.Process(context.Background(), nil, "user-3", "batch-empty")

	require.True(t, state.Success)
	assert.Equal(t, 0, state.ImagesProcessed)
	assert.Empty(t, state.FacesDetected)
	assert.Equal(t, pipestate.InsufficientData, state.SimilarityAnalysis.IdentityAssessment)
}

func TestProcessAllDecodeFailuresBatch(t *testing.T) {
	detector := &face.Detector{Fast: fakeProvider{embedding: unitEmbedding(1, 0)}}
	o := newTestOrchestrator(detector)

	garbage := [][]byte{[]byte("not an image"), []byte("also not an image")}
	state := o.Process(context.Background(), garbage, "user-4", "batch-bad")

	require.True(t, state.Success)
	assert.Equal(t, 2, state.ComplianceSummary.Errored)
	assert.Empty(t, state.FacesDetected)
	for _, img := range state.Images {
		assert.NotEmpty(t, img.DecodeError)
	}
}

func TestProcessDuplicateImageInBatch(t *testing.T) {
	dir := t.TempDir()
	registry, err := provenance.Open(filepath.Join(dir, "registry.json"), 6, nil)
	require.NoError(t, err)

	detector := &face.Detector{Fast: fakeProvider{embedding: unitEmbedding(1, 0)}}
	o := orchestrator.New(orchestrator.Dependencies{
		Config:   config.Default(),
		Detector: detector,
		Registry: registry,
	})

	same := pngBytes(t, 7)
	state := o.Process(context.Background(), [][]byte{same, same}, "user-5", "batch-dup")

	require.True(t, state.Success)
	assert.Equal(t, 1, state.ComplianceSummary.Accepted)
	assert.Equal(t, 1, state.ComplianceSummary.Duplicate)

	foundDuplicate := false
	for _, img := range state.Images {
		if img.Compliance.Status == pipestate.ComplianceDuplicate {
			foundDuplicate = true
			assert.Equal(t, "sha256_match", img.Compliance.Reason)
		}
	}
	assert.True(t, foundDuplicate)

	// The in-batch hash collision also surfaces as an OSINT anomaly,
	// independent of the registry's own compliance verdict.
	assert.NotEmpty(t, state.OSINTAnomalies.Global.HashDuplicates)
}

func TestProcessCancelledRunSkipsSynthesis(t *testing.T) {
	detector := &face.Detector{Fast: fakeProvider{embedding: unitEmbedding(1, 0)}}
	o := newTestOrchestrator(detector)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state := o.Process(ctx, [][]byte{pngBytes(t, 1)}, "user-6", "batch-cancel")

	assert.True(t, state.Cancelled)
	assert.False(t, state.Success)
	assert.Equal(t, pipestate.IntelligenceSummary{}, state.IntelligenceSummary)
}

func TestProcessReverseSearchDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Flags.DisableReverseSearch = true
	detector := &face.Detector{Fast: fakeProvider{embedding: unitEmbedding(1, 0, 0)}}
	o := orchestrator.New(orchestrator.Dependencies{Config: cfg, Detector: detector})

	images := [][]byte{pngBytes(t, 2), pngBytes(t, 3)}
	state := o.Process(context.Background(), images, "user-7", "batch-noreverse")

	require.True(t, state.Success)
	for _, r := range state.ReverseImageResults {
		assert.True(t, r.Disabled)
	}
	assert.Equal(t, len(state.ReverseImageResults), state.OSINTMetrics.ReverseSearchStats.Disabled)
}
