// Package orchestrator implements C12: the pipeline orchestrator that
// sequences C1-C11 over one batch, propagates partial failures, emits
// progress/partial-snapshot callbacks, and performs the sanitized
// serialization handoff.
//
// The staged, numbered-comment shape ("Stage 1: ...", "Stage 2: ...") and
// the injected-interface dependency style (Registry/Detector/Driver/Store
// passed in rather than constructed here) are grounded on
// other_examples/.../banshee-data-velocity.report's
// internal/lidar/pipeline/tracking_pipeline.go TrackingPipelineConfig,
// generalized from a streaming per-frame callback to a one-shot batch
// Process call. Per-stage state machine transitions follow spec.md §4.12
// exactly: pending -> running -> completed|skipped|errored.
package orchestrator

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smegmarip/4d-photo-intel/internal/config"
	"github.com/smegmarip/4d-photo-intel/internal/decode"
	"github.com/smegmarip/4d-photo-intel/internal/face"
	"github.com/smegmarip/4d-photo-intel/internal/intelligence"
	"github.com/smegmarip/4d-photo-intel/internal/isolation"
	"github.com/smegmarip/4d-photo-intel/internal/landmark"
	"github.com/smegmarip/4d-photo-intel/internal/model4d"
	"github.com/smegmarip/4d-photo-intel/internal/orientation"
	"github.com/smegmarip/4d-photo-intel/internal/osint"
	"github.com/smegmarip/4d-photo-intel/internal/pipestate"
	"github.com/smegmarip/4d-photo-intel/internal/provenance"
	"github.com/smegmarip/4d-photo-intel/internal/reverse"
	"github.com/smegmarip/4d-photo-intel/internal/similarity"
	"github.com/smegmarip/4d-photo-intel/internal/vectorstore"
)

// Dependencies bundles every external collaborator the orchestrator needs.
// Registry, ReverseDriver, and VectorStore may be nil/no-op; Detector
// should never be nil (face.NewDetector always returns at least the
// heuristic fallback).
type Dependencies struct {
	Config        *config.Config
	Registry      *provenance.Registry
	Detector      *face.Detector
	ReverseDriver reverse.Driver
	VectorStore   vectorstore.Store
	Log           *logrus.Entry
}

// Orchestrator drives one batch through the full C1-C11 pipeline.
type Orchestrator struct {
	cfg      *config.Config
	registry *provenance.Registry
	detector *face.Detector
	driver   reverse.Driver
	store    vectorstore.Store
	log      *logrus.Entry

	onProgress func(pipestate.ProgressTick)
	onPartial  func(pipestate.PartialSnapshot)
}

// New builds an Orchestrator from its dependencies, defaulting any
// unconfigured external collaborator to its no-op implementation so the
// pipeline's behavior never depends on which optional backends are wired.
func New(deps Dependencies) *Orchestrator {
	log := deps.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}
	driver := deps.ReverseDriver
	if driver == nil {
		driver = reverse.NoOpDriver{}
	}
	store := deps.VectorStore
	if store == nil {
		store = vectorstore.NoOpStore{}
	}
	detector := deps.Detector
	if detector == nil {
		detector, _ = face.NewDetector("", false, log)
	}
	return &Orchestrator{
		cfg:      cfg,
		registry: deps.Registry,
		detector: detector,
		driver:   driver,
		store:    store,
		log:      log.WithField("component", "orchestrator"),
	}
}

// OnProgress registers a callback invoked after each completed unit of
// work. Per spec.md §4.12, a panicking callback must never reach the
// pipeline; notify recovers around every call.
func (o *Orchestrator) OnProgress(fn func(pipestate.ProgressTick)) { o.onProgress = fn }

// OnPartial registers the rolling-snapshot callback a reviewer UI polls.
func (o *Orchestrator) OnPartial(fn func(pipestate.PartialSnapshot)) { o.onPartial = fn }

func (o *Orchestrator) notify(tick pipestate.ProgressTick) {
	if o.onProgress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.log.Warnf("progress callback panicked, ignoring: %v", r)
		}
	}()
	o.onProgress(tick)
}

func (o *Orchestrator) partial(state *pipestate.PipelineState, stage pipestate.StageName, total, status string) {
	if o.onPartial == nil {
		return
	}
	snapshot := pipestate.PartialSnapshot{
		BatchID:         state.BatchID,
		ImagesTotal:     len(state.Images),
		ImagesProcessed: state.ImagesProcessed,
		FacesFound:      len(state.FacesDetected),
		CurrentStage:    stage,
		Status:          status,
	}
	defer func() {
		if r := recover(); r != nil {
			o.log.Warnf("partial snapshot callback panicked, ignoring: %v", r)
		}
	}()
	o.onPartial(snapshot)
}

// setStage records stage's current state, replacing any earlier entry for
// the same stage so StageStatuses holds one entry per stage, and emits a
// progress tick when the stage completes.
func (o *Orchestrator) setStage(state *pipestate.PipelineState, stage pipestate.StageName, s pipestate.StageState, errMsg string) {
	status := pipestate.StageStatus{Stage: stage, State: s, Error: errMsg}
	replaced := false
	for i := range state.StageStatuses {
		if state.StageStatuses[i].Stage == stage {
			state.StageStatuses[i] = status
			replaced = true
			break
		}
	}
	if !replaced {
		state.StageStatuses = append(state.StageStatuses, status)
	}
	if s == pipestate.StageCompleted {
		o.notify(pipestate.ProgressTick{Stage: stage, Status: string(s)})
	}
}

// cancelled checks ctx at a stage boundary, per spec.md §5's "external
// cancellation at stage boundaries only". completedStage is whichever
// stage just finished running; it is reported as-is (already marked
// completed) and no further stage ever runs once this returns true.
func (o *Orchestrator) cancelled(ctx context.Context, state *pipestate.PipelineState, completedStage pipestate.StageName) bool {
	select {
	case <-ctx.Done():
		state.Cancelled = true
		state.Success = false
		o.partial(state, completedStage, "", "cancelled")
		return true
	default:
		return false
	}
}

// Process implements C12's contract: process(images, user_id) ->
// PipelineState. images is the raw byte batch; batchID is an opaque batch
// identifier (spec.md §6 "plus a batch identifier string").
func (o *Orchestrator) Process(ctx context.Context, images [][]byte, userID, batchID string) (state *pipestate.PipelineState) {
	start := time.Now()
	state = pipestate.NewPipelineState(userID, batchID, start)

	defer func() {
		if r := recover(); r != nil {
			state.Success = false
			state.Error = fmt.Sprintf("orchestrator panic: %v", r)
			o.log.Errorf("pipeline run %s failed catastrophically: %v", batchID, r)
		}
		state.ProcessingTime = time.Since(start).Seconds()
	}()

	o.runIngestion(state, images)
	if o.cancelled(ctx, state, pipestate.StageIngestion) {
		return state
	}

	o.runDetection(state)
	if o.cancelled(ctx, state, pipestate.StageDetection) {
		return state
	}

	simToDominant := o.runSimilarity(state)
	if o.cancelled(ctx, state, pipestate.StageSimilarity) {
		return state
	}

	acceptedFaces := o.runOrientation(state, simToDominant)
	if o.cancelled(ctx, state, pipestate.StageOrientation) {
		return state
	}

	if o.cfg.Flags.Disable3D {
		o.setStage(state, pipestate.StageIsolation, pipestate.StageSkipped, "")
		o.setStage(state, pipestate.StageLandmarkMerge, pipestate.StageSkipped, "")
		o.setStage(state, pipestate.StageRefine4D, pipestate.StageSkipped, "")
	} else {
		o.runIsolation(state, acceptedFaces)
		if o.cancelled(ctx, state, pipestate.StageIsolation) {
			return state
		}
		o.runLandmarkMerge(state)
		if o.cancelled(ctx, state, pipestate.StageLandmarkMerge) {
			return state
		}
		o.run4DRefine(state)
		if o.cancelled(ctx, state, pipestate.StageRefine4D) {
			return state
		}
	}

	o.runOSINT(state)
	if o.cancelled(ctx, state, pipestate.StageOSINT) {
		return state
	}

	o.runReverseSearch(ctx, state, acceptedFaces)
	if o.cancelled(ctx, state, pipestate.StageReverseSearch) {
		return state
	}

	o.runVectorStore(ctx, state, acceptedFaces)
	o.runSynthesis(state)

	state.Success = true
	return state
}

// registryMetadataFor builds the free-form metadata bag persisted
// alongside each provenance record (spec.md §6).
func registryMetadataFor(img pipestate.IngestedImage) map[string]any {
	return map[string]any{
		"image_id":  img.ID,
		"index":     img.Index,
		"file_size": img.Metadata.FileSize,
		"width":     img.Width,
		"height":    img.Height,
	}
}

// toImage reconstructs an image.Image view over a decoded NRGBA raster
// without copying, matching the Pix/Stride layout imaging.Clone produces
// in decode.rasterize.
func toImage(d pipestate.DecodedImage) image.Image {
	if d.Width == 0 || d.Height == 0 {
		return nil
	}
	return &image.NRGBA{
		Pix:    d.Pixels,
		Stride: d.Width * 4,
		Rect:   image.Rect(0, 0, d.Width, d.Height),
	}
}

// Stage 1: Ingestion (C2) gated by the Provenance Registry (C1).
func (o *Orchestrator) runIngestion(state *pipestate.PipelineState, images [][]byte) {
	o.setStage(state, pipestate.StageIngestion, pipestate.StageRunning, "")

	for i, raw := range images {
		img := decode.Extract(raw, i, o.registry)

		if img.DecodeError == "" && o.registry != nil {
			result, err := o.registry.CheckAndRegisterImage(
				img.Metadata.SHA256, registryMetadataFor(img),
				img.Metadata.PerceptualHash, img.Metadata.WatermarkHash)
			switch {
			case err != nil:
				img.Compliance = pipestate.Compliance{Status: pipestate.ComplianceError, Reason: err.Error()}
				state.ComplianceSummary.Errored++
				state.Errors = append(state.Errors, fmt.Sprintf("%s: registry error: %v", img.ID, err))
			case result.Verdict == provenance.VerdictAllowed:
				img.Compliance = pipestate.Compliance{Status: pipestate.ComplianceAccepted, Pointer: img.Metadata.SHA256}
				state.ComplianceSummary.Accepted++
			case result.Verdict == provenance.VerdictDuplicate:
				img.Compliance = pipestate.Compliance{Status: pipestate.ComplianceDuplicate, Reason: result.Reason}
				state.ComplianceSummary.Duplicate++
			default:
				reason := "registry_policy:" + result.Reason
				img.Compliance = pipestate.Compliance{Status: pipestate.ComplianceDropped, Reason: reason}
				state.ComplianceSummary.Dropped++
				state.DroppedImages = append(state.DroppedImages, pipestate.DroppedImage{ImageID: img.ID, Reason: "registry_policy"})
			}
		} else if img.DecodeError == "" {
			img.Compliance = pipestate.Compliance{Status: pipestate.ComplianceAccepted}
			state.ComplianceSummary.Accepted++
		} else {
			state.ComplianceSummary.Errored++
		}

		state.Images = append(state.Images, img)
		state.OSINTMetadata = append(state.OSINTMetadata, img.Metadata)
		state.ImagesProcessed++

		o.notify(pipestate.ProgressTick{Stage: pipestate.StageIngestion, Status: "image_ingested", ImageID: img.ID})
		o.partial(state, pipestate.StageIngestion, "", "running")
	}

	o.setStage(state, pipestate.StageIngestion, pipestate.StageCompleted, "")
}

// acceptedImages returns the subset of state.Images whose compliance
// status is "accepted" — only these proceed past C1's gate.
func acceptedImages(state *pipestate.PipelineState) []pipestate.IngestedImage {
	out := make([]pipestate.IngestedImage, 0, len(state.Images))
	for _, img := range state.Images {
		if img.Compliance.Status == pipestate.ComplianceAccepted {
			out = append(out, img)
		}
	}
	return out
}

// Stage 2: Face detection and landmark fusion (C3).
func (o *Orchestrator) runDetection(state *pipestate.PipelineState) {
	o.setStage(state, pipestate.StageDetection, pipestate.StageRunning, "")

	for _, img := range acceptedImages(state) {
		raster := toImage(img.DecodedPixels)
		if raster == nil {
			continue
		}
		faces, err := o.detector.DetectFaces(raster, img.Index)
		if err != nil {
			state.Errors = append(state.Errors, fmt.Sprintf("%s: detection error: %v", img.ID, err))
			o.notify(pipestate.ProgressTick{Stage: pipestate.StageDetection, Status: "detection_error", ImageID: img.ID})
			continue
		}
		state.FacesDetected = append(state.FacesDetected, faces...)
		o.notify(pipestate.ProgressTick{Stage: pipestate.StageDetection, Status: "faces_detected", ImageID: img.ID})
		o.partial(state, pipestate.StageDetection, "", "running")
	}

	o.setStage(state, pipestate.StageDetection, pipestate.StageCompleted, "")
}

// facelessImageIDs returns the image IDs of every accepted image for
// which C3 found zero faces, per spec.md §4.5's "manual review candidate"
// rule.
func facelessImageIDs(state *pipestate.PipelineState) []string {
	withFaces := map[int]bool{}
	for _, f := range state.FacesDetected {
		withFaces[f.ImageIndex] = true
	}
	var out []string
	for _, img := range acceptedImages(state) {
		if !withFaces[img.Index] {
			out = append(out, img.ID)
		}
	}
	return out
}

// Stage 3: Cross-frame similarity analysis (C4).
func (o *Orchestrator) runSimilarity(state *pipestate.PipelineState) map[string]float64 {
	o.setStage(state, pipestate.StageSimilarity, pipestate.StageRunning, "")
	state.SimilarityAnalysis = similarity.Analyze(state.FacesDetected)
	o.setStage(state, pipestate.StageSimilarity, pipestate.StageCompleted, "")
	return similarityToDominantCluster(state.SimilarityAnalysis)
}

// similarityToDominantCluster derives, for each face with an embedding,
// its best similarity against any other member of the dominant cluster
// (the largest cluster C4 returned), per spec.md §4.5. Faces are absent
// from the returned map when there is no dominant cluster at all (fewer
// than two embeddings, or every face is noise); the orientation gate's
// documented fallback then treats every face as belonging to the sole
// cluster with similarity 1.0.
func similarityToDominantCluster(sim pipestate.SimilarityAnalysis) map[string]float64 {
	if sim.DominantCluster < 0 || len(sim.Clusters) == 0 || len(sim.PairwiseMatrix) != len(sim.Clusters) {
		return nil
	}

	var members []int
	for i, c := range sim.Clusters {
		if c.Label == sim.DominantCluster {
			members = append(members, i)
		}
	}
	if len(members) == 0 {
		return nil
	}

	out := make(map[string]float64, len(sim.Clusters))
	for i, c := range sim.Clusters {
		if len(members) == 1 && members[0] == i {
			out[c.FaceID] = 1.0
			continue
		}
		best := 0.0
		for _, m := range members {
			if m == i {
				continue
			}
			if sim.PairwiseMatrix[i][m] > best {
				best = sim.PairwiseMatrix[i][m]
			}
		}
		out[c.FaceID] = best
	}
	return out
}

// Stage 4: Orientation and quality gate (C5).
func (o *Orchestrator) runOrientation(state *pipestate.PipelineState, simToDominant map[string]float64) []pipestate.FaceRecord {
	o.setStage(state, pipestate.StageOrientation, pipestate.StageRunning, "")

	gate := orientation.NewGate(o.cfg.Thresholds)
	faceless := facelessImageIDs(state)
	verdicts, summary := gate.Evaluate(state.FacesDetected, simToDominant, faceless)
	state.OrientationVerdicts = verdicts
	state.OrientationSummary = summary

	accepted := map[string]bool{}
	for _, v := range verdicts {
		if v.Accepted {
			accepted[v.FaceID] = true
		}
	}
	var acceptedFaces []pipestate.FaceRecord
	for _, f := range state.FacesDetected {
		if accepted[f.FaceID] {
			acceptedFaces = append(acceptedFaces, f)
		}
	}

	o.setStage(state, pipestate.StageOrientation, pipestate.StageCompleted, "")
	return acceptedFaces
}

// imagesByIndex indexes a batch's accepted images by their Index field
// for the O(1) lookups C6/C7 need while walking accepted faces.
func imagesByIndex(state *pipestate.PipelineState) map[int]pipestate.IngestedImage {
	out := make(map[int]pipestate.IngestedImage, len(state.Images))
	for _, img := range state.Images {
		out[img.Index] = img
	}
	return out
}

// Stage 5: Facial isolation (C6).
func (o *Orchestrator) runIsolation(state *pipestate.PipelineState, acceptedFaces []pipestate.FaceRecord) {
	o.setStage(state, pipestate.StageIsolation, pipestate.StageRunning, "")

	byIndex := imagesByIndex(state)
	for _, f := range acceptedFaces {
		img, ok := byIndex[f.ImageIndex]
		if !ok {
			continue
		}
		raster := toImage(img.DecodedPixels)
		if raster == nil {
			continue
		}

		var frame pipestate.IsolatedFrame
		var accepted bool
		if o.registry != nil {
			frame, accepted = isolation.Isolate(raster, f, img.ID, o.registry)
		} else {
			frame, accepted = isolation.Isolate(raster, f, img.ID, allowAllRegistry{})
		}

		if !accepted {
			state.DroppedMasks = append(state.DroppedMasks, pipestate.DroppedMask{ImageID: img.ID, Reason: frame.Compliance.Reason})
			continue
		}
		state.IsolatedFrames = append(state.IsolatedFrames, frame)
		o.notify(pipestate.ProgressTick{Stage: pipestate.StageIsolation, Status: "frame_isolated", ImageID: img.ID})
	}

	o.setStage(state, pipestate.StageIsolation, pipestate.StageCompleted, "")
}

// allowAllRegistry is the mask-registry fallback used when no
// provenance.Registry was configured: every mask is allowed, matching the
// "no registry configured" ambient behavior the decoder also assumes.
type allowAllRegistry struct{}

func (allowAllRegistry) CheckMask(string) provenance.CheckResult {
	return provenance.CheckResult{Verdict: provenance.VerdictAllowed}
}
func (allowAllRegistry) RegisterMask(string, map[string]any) error { return nil }

// Stage 6: Landmark merger (C7).
func (o *Orchestrator) runLandmarkMerge(state *pipestate.PipelineState) {
	o.setStage(state, pipestate.StageLandmarkMerge, pipestate.StageRunning, "")

	byIndex := imagesByIndex(state)
	faceByID := make(map[string]pipestate.FaceRecord, len(state.FacesDetected))
	for _, f := range state.FacesDetected {
		faceByID[f.FaceID] = f
	}

	var points []landmark.SourcePoint
	for _, frame := range state.IsolatedFrames {
		face, ok := faceByID[frame.FaceID]
		if !ok {
			continue
		}
		img := byIndex[face.ImageIndex]
		raster := toImage(img.DecodedPixels)

		switch {
		case len(face.LandmarksDense) > 0:
			for _, p := range face.LandmarksDense {
				points = append(points, landmark.SourcePoint{X: p.X, Y: p.Y, Z: p.Z, Frame: raster})
			}
		case len(face.Landmarks68) > 0:
			// No dense-mesh provider wired (the default configuration, spec.md
			// §9's "entirely absent" backend case): fall back to the 68-point
			// landmark set the primary/independent detector already produced,
			// projected onto z=0, so C7/C8 still receive points to merge.
			for _, p := range face.Landmarks68 {
				points = append(points, landmark.SourcePoint{X: p[0], Y: p[1], Z: 0, Frame: raster})
			}
		}
	}

	state.Landmarks3D = landmark.Merge(points)
	o.setStage(state, pipestate.StageLandmarkMerge, pipestate.StageCompleted, "")
}

// Stage 7: 4D model refinement (C8).
func (o *Orchestrator) run4DRefine(state *pipestate.PipelineState) {
	o.setStage(state, pipestate.StageRefine4D, pipestate.StageRunning, "")

	opts := model4d.Options{
		SmoothingEnabled:    o.cfg.Flags.SmoothingEnabled && !o.cfg.Flags.DisableSmoothing,
		SmoothingIterations: o.cfg.Flags.SmoothingIterations,
	}
	if o.registry != nil {
		state.Model4D = model4d.Refine(state.Landmarks3D, opts, o.registry)
	} else {
		state.Model4D = model4d.Refine(state.Landmarks3D, opts, nil)
	}

	o.setStage(state, pipestate.StageRefine4D, pipestate.StageCompleted, "")
}

// Stage 8: OSINT anomaly detection (C9). Runs over the metadata of every
// ingested image that decoded, regardless of registry compliance status
// (images with a decode error are skipped), since the duplicate/
// anomaly rules themselves are the mechanism that surfaces in-batch
// duplicates (spec.md §8 seed scenario 3).
func (o *Orchestrator) runOSINT(state *pipestate.PipelineState) {
	o.setStage(state, pipestate.StageOSINT, pipestate.StageRunning, "")

	images := make([]osint.Image, 0, len(state.Images))
	for _, img := range state.Images {
		if img.DecodeError != "" {
			continue
		}
		m := img.Metadata
		var ts *time.Time
		if m.TimestampOriginal != nil {
			ts = m.TimestampOriginal
		}
		images = append(images, osint.Image{
			ImageID:     img.ID,
			DeviceModel: m.DeviceInfo.Model,
			Timestamp:   ts,
			HasGPS:      m.LocationData.HasDecimal,
			Latitude:    m.LocationData.Latitude,
			Longitude:   m.LocationData.Longitude,
			Brightness:  m.BrightnessMean,
			SHA256:      m.SHA256,
		})
	}

	state.OSINTAnomalies = osint.Detect(images)
	o.setStage(state, pipestate.StageOSINT, pipestate.StageCompleted, "")
}

// Stage 9: Reverse-image-search normalization (C10).
func (o *Orchestrator) runReverseSearch(ctx context.Context, state *pipestate.PipelineState, acceptedFaces []pipestate.FaceRecord) {
	o.setStage(state, pipestate.StageReverseSearch, pipestate.StageRunning, "")

	byIndex := imagesByIndex(state)
	seen := map[string]bool{}
	for _, f := range acceptedFaces {
		img, ok := byIndex[f.ImageIndex]
		if !ok || seen[img.ID] {
			continue
		}
		seen[img.ID] = true

		if o.cfg.Flags.DisableReverseSearch {
			state.ReverseImageResults[img.ID] = pipestate.ReverseImageResult{ImageID: img.ID, Disabled: true}
			state.OSINTMetrics.ReverseSearchStats.Disabled++
			continue
		}

		raw, err := o.driver.Search(ctx, img.ID, img.DecodedPixels.RawBytes)
		if err != nil {
			state.ReverseImageResults[img.ID] = pipestate.ReverseImageResult{ImageID: img.ID, Error: err.Error()}
			state.OSINTMetrics.ReverseSearchStats.Errors++
			continue
		}
		state.ReverseImageResults[img.ID] = reverse.Normalize(raw)
		state.OSINTMetrics.ReverseSearchStats.Successes++
		o.notify(pipestate.ProgressTick{Stage: pipestate.StageReverseSearch, Status: "search_complete", ImageID: img.ID})
	}

	o.setStage(state, pipestate.StageReverseSearch, pipestate.StageCompleted, "")
}

// runVectorStore is a best-effort ambient step: embedding registration
// failures are logged and recorded, never fatal to the batch (spec.md §6,
// "the pipeline's behavior must not change" when the store is a no-op).
func (o *Orchestrator) runVectorStore(ctx context.Context, state *pipestate.PipelineState, acceptedFaces []pipestate.FaceRecord) {
	for _, f := range acceptedFaces {
		if len(f.Embedding) == 0 {
			continue
		}
		meta := map[string]any{"face_id": f.FaceID, "image_index": f.ImageIndex}
		if err := o.store.Add(ctx, state.UserID, f.Embedding, meta); err != nil {
			state.Errors = append(state.Errors, fmt.Sprintf("%s: vector store add failed: %v", f.FaceID, err))
		}
	}
	if err := o.store.Save(ctx); err != nil {
		state.Errors = append(state.Errors, fmt.Sprintf("vector store save failed: %v", err))
	}
}

// Stage 10: Intelligence synthesis (C11).
func (o *Orchestrator) runSynthesis(state *pipestate.PipelineState) {
	o.setStage(state, pipestate.StageSynthesis, pipestate.StageRunning, "")

	var frames []intelligence.FrameQuality
	var embeddings [][]float64
	for _, f := range state.FacesDetected {
		frames = append(frames, intelligence.FrameQuality{
			Sharp:    f.Quality.BlurVariance > 100,
			Exposed:  f.Quality.Brightness > 40 && f.Quality.Brightness < 220,
			Contrast: f.Quality.Contrast > 20,
			HeadPose: f.HeadPose,
		})
		if len(f.Embedding) > 0 {
			embeddings = append(embeddings, f.Embedding)
		}
	}

	var reverseResults []pipestate.ReverseImageResult
	for _, r := range state.ReverseImageResults {
		reverseResults = append(reverseResults, r)
	}

	summary := intelligence.Synthesize(intelligence.Input{
		Similarity:     state.SimilarityAnalysis,
		Frames:         frames,
		Embeddings:     embeddings,
		Anomalies:      state.OSINTAnomalies,
		Metadata:       state.OSINTMetadata,
		ReverseResults: reverseResults,
	})
	summary.ProcessingStages = append([]pipestate.StageStatus{}, state.StageStatuses...)
	state.IntelligenceSummary = summary

	o.setStage(state, pipestate.StageSynthesis, pipestate.StageCompleted, "")
}
