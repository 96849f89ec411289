// Command pipeline is the CLI entrypoint (spec.md's A3 ambient component):
// it reads a manifest of image paths, drives one batch through the
// orchestrator, and writes the sanitized PipelineState JSON to stdout or a
// file. It is a thin driver — all pipeline semantics live in
// internal/orchestrator.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/smegmarip/4d-photo-intel/internal/config"
	"github.com/smegmarip/4d-photo-intel/internal/face"
	"github.com/smegmarip/4d-photo-intel/internal/orchestrator"
	"github.com/smegmarip/4d-photo-intel/internal/pipestate"
	"github.com/smegmarip/4d-photo-intel/internal/provenance"
	"github.com/smegmarip/4d-photo-intel/internal/reverse"
	"github.com/smegmarip/4d-photo-intel/internal/vectorstore"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a TOML config file (optional)")
		manifest   = flag.String("manifest", "", "path to a newline-delimited manifest of image file paths")
		userID     = flag.String("user", "", "user_id to attribute this batch to")
		batchID    = flag.String("batch", "", "batch identifier (defaults to a generated UUID)")
		outPath    = flag.String("out", "", "write sanitized JSON here instead of stdout")
		verbose    = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	entry := logrus.NewEntry(log)

	if *manifest == "" {
		entry.Fatal("-manifest is required")
	}
	if *userID == "" {
		entry.Fatal("-user is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		entry.Fatalf("loading config: %v", err)
	}

	paths, err := readManifest(*manifest)
	if err != nil {
		entry.Fatalf("reading manifest: %v", err)
	}
	images, err := loadImages(paths)
	if err != nil {
		entry.Fatalf("loading images: %v", err)
	}

	var registry *provenance.Registry
	if cfg.RegistryPath != "" {
		registry, err = provenance.Open(cfg.RegistryPath, cfg.Thresholds.PerceptualHashHammingMax, entry)
		if err != nil {
			entry.Fatalf("opening provenance registry: %v", err)
		}
	}

	detector, stack := face.NewDetectorWithDense(cfg.ModelsDir, true, cfg.DenseLandmarkBin, entry)
	entry.Infof("face detection stack: %v", stack)

	var driver reverse.Driver = reverse.NoOpDriver{}
	if !cfg.Flags.DisableReverseSearch && cfg.VisionServiceURL != "" {
		driver = reverse.NewHTTPDriver(cfg.VisionServiceURL, entry)
	}

	store := vectorstore.Store(vectorstore.NewInMemoryStore())

	o := orchestrator.New(orchestrator.Dependencies{
		Config:        cfg,
		Registry:      registry,
		Detector:      detector,
		ReverseDriver: driver,
		VectorStore:   store,
		Log:           entry,
	})
	o.OnProgress(func(tick pipestate.ProgressTick) {
		entry.WithField("stage", tick.Stage).Debugf("%s: %s", tick.ImageID, tick.Status)
	})
	o.OnPartial(func(snap pipestate.PartialSnapshot) {
		entry.WithField("stage", snap.CurrentStage).
			Infof("%d/%d images processed, %d faces found", snap.ImagesProcessed, snap.ImagesTotal, snap.FacesFound)
	})

	effectiveBatchID := *batchID
	if effectiveBatchID == "" {
		effectiveBatchID = uuid.NewString()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state := o.Process(ctx, images, *userID, effectiveBatchID)

	if err := writeResult(*outPath, state); err != nil {
		entry.Fatalf("writing result: %v", err)
	}
	if !state.Success {
		os.Exit(1)
	}
}

func readManifest(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var paths []string
	for _, line := range splitLines(string(data)) {
		if line == "" {
			continue
		}
		paths = append(paths, line)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("manifest %s contains no paths", path)
	}
	return paths, nil
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			line := s[start:i]
			line = trimCR(line)
			lines = append(lines, line)
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, trimCR(s[start:]))
	}
	return lines
}

func trimCR(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\r' {
		return s[:len(s)-1]
	}
	return s
}

func loadImages(paths []string) ([][]byte, error) {
	images := make([][]byte, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read image %s: %w", p, err)
		}
		images = append(images, data)
	}
	return images, nil
}

// writeResult serializes the pipeline result. A cancelled run never
// reaches synthesis and does not serialize a final state (spec.md §5); it
// emits only the terminal bookkeeping fields instead of the full record.
func writeResult(outPath string, state *pipestate.PipelineState) error {
	var payload any = pipestate.Sanitize(state)
	if state.Cancelled {
		payload = pipestate.Sanitize(map[string]any{
			"user_id":         state.UserID,
			"batch_id":        state.BatchID,
			"success":         false,
			"cancelled":       true,
			"processing_time": state.ProcessingTime,
		})
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sanitized state: %w", err)
	}
	data = append(data, '\n')

	if outPath == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(outPath, data, 0o644)
}
