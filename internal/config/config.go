// Package config loads pipeline configuration from an optional TOML file
// and environment variable overrides, the way MiFaceDEV-miface's
// internal/config package loads camera/tracking settings with
// BurntSushi/toml, merged with the teacher's "defaults, then override"
// flow from its own config.Load.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Thresholds holds the named constants spec.md §9 calls out. Only some are
// read from here: the orientation gate uses MaxYaw, MaxPitch, MaxRoll and
// DominantClusterSimilarity, and cmd/pipeline passes
// PerceptualHashHammingMax to the provenance registry. The similarity
// verdict thresholds, DBSCAN parameters and landmark cluster radius are
// fixed constants in the similarity and landmark packages, which do not
// read these fields.
type Thresholds struct {
	// Similarity verdict thresholds (C4/C5/C11).
	HighConfidenceSimilarity     float64 `toml:"high_confidence_similarity"`
	ModerateConfidenceSimilarity float64 `toml:"moderate_confidence_similarity"`
	DominantClusterSimilarity   float64 `toml:"dominant_cluster_similarity"`

	// Orientation gate pose bounds, in degrees (C5).
	MaxYaw   float64 `toml:"max_yaw"`
	MaxPitch float64 `toml:"max_pitch"`
	MaxRoll  float64 `toml:"max_roll"`

	// Provenance registry perceptual-hash Hamming distance bound (C1).
	PerceptualHashHammingMax int `toml:"perceptual_hash_hamming_max"`

	// Landmark merger spatial clustering threshold, in pixels (C7).
	LandmarkClusterPixels float64 `toml:"landmark_cluster_pixels"`

	// DBSCAN parameters for cross-frame embedding clustering (C4).
	DBSCANEpsilon   float64 `toml:"dbscan_epsilon"`
	DBSCANMinPoints int     `toml:"dbscan_min_points"`

	// Expected embedding dimension. Load only checks that it is positive;
	// FaceRecord embeddings are not compared against it.
	EmbeddingDim int `toml:"embedding_dim"`
}

// DefaultThresholds returns the spec's fixed, empirically-tuned constants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HighConfidenceSimilarity:     0.5,
		ModerateConfidenceSimilarity: 0.25,
		DominantClusterSimilarity:   0.45,
		MaxYaw:                      25,
		MaxPitch:                    20,
		MaxRoll:                     30,
		PerceptualHashHammingMax:    6,
		LandmarkClusterPixels:       10,
		DBSCANEpsilon:               0.5,
		DBSCANMinPoints:             2,
		EmbeddingDim:                128,
	}
}

// Flags are the per-run stage toggles named in spec.md §4.12.
type Flags struct {
	DisableReverseSearch bool `toml:"disable_reverse_search"`
	Disable3D            bool `toml:"disable_3d"`
	DisableSmoothing     bool `toml:"disable_smoothing"`
	SmoothingEnabled     bool `toml:"smoothing_enabled"`
	SmoothingIterations  int  `toml:"smoothing_iterations"`
}

// Config is the full pipeline configuration.
type Config struct {
	Thresholds Thresholds `toml:"thresholds"`
	Flags      Flags      `toml:"flags"`

	ModelsDir        string `toml:"models_dir"`
	RegistryPath     string `toml:"registry_path"`
	VisionServiceURL string `toml:"vision_service_url"`
	DenseLandmarkBin string `toml:"dense_landmark_bin"`
	MaxBatchSize     int    `toml:"max_batch_size"`
	WorkerPoolSize   int    `toml:"worker_pool_size"`
}

// Default returns a Config with the spec's defaults and no file/env
// overrides applied.
func Default() *Config {
	return &Config{
		Thresholds:     DefaultThresholds(),
		Flags:          Flags{},
		RegistryPath:   "provenance.json",
		MaxBatchSize:   20,
		WorkerPoolSize: 4,
	}
}

// Load reads an optional TOML config file at path (empty path is allowed
// and yields defaults), then applies PIPELINE_* environment overrides,
// mirroring the teacher's "start from defaults, override from settings"
// flow in config.Load.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("decode config file %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PIPELINE_MODELS_DIR"); v != "" {
		cfg.ModelsDir = v
	}
	if v := os.Getenv("PIPELINE_REGISTRY_PATH"); v != "" {
		cfg.RegistryPath = v
	}
	if v := os.Getenv("PIPELINE_VISION_SERVICE_URL"); v != "" {
		cfg.VisionServiceURL = v
	}
	if v := os.Getenv("PIPELINE_DENSE_LANDMARK_BIN"); v != "" {
		cfg.DenseLandmarkBin = v
	}
	if v := os.Getenv("PIPELINE_MAX_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxBatchSize = n
		}
	}
	if v := os.Getenv("PIPELINE_DISABLE_REVERSE_SEARCH"); v != "" {
		cfg.Flags.DisableReverseSearch = v == "1" || v == "true"
	}
	if v := os.Getenv("PIPELINE_DISABLE_3D"); v != "" {
		cfg.Flags.Disable3D = v == "1" || v == "true"
	}
}

func validate(cfg *Config) error {
	if cfg.Thresholds.EmbeddingDim <= 0 {
		return fmt.Errorf("thresholds.embedding_dim must be positive, got %d", cfg.Thresholds.EmbeddingDim)
	}
	if cfg.MaxBatchSize <= 0 {
		return fmt.Errorf("max_batch_size must be positive, got %d", cfg.MaxBatchSize)
	}
	return nil
}
