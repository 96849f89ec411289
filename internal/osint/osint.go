// Package osint implements C9: a pure function deriving batch-wide
// anomaly flags from ImageMetadata. It never mutates its input and never
// calls out to any external service — every rule is a closed-form check
// over the metadata already extracted during decode.
package osint

import (
	"math"
	"sort"
	"time"

	"github.com/smegmarip/4d-photo-intel/internal/pipestate"
)

// Image is the minimal per-image slice the detector needs, named
// independently of pipestate.IngestedImage so callers can pass synthetic
// fixtures in tests without building a full decoded image.
type Image struct {
	ImageID    string
	DeviceModel string
	Timestamp  *time.Time
	HasGPS     bool
	Latitude   float64
	Longitude  float64
	Brightness float64
	SHA256     string
}

// Detect implements C9's contract: every rule accumulates independently,
// and an image can carry more than one anomaly token.
func Detect(images []Image) pipestate.OSINTAnomalies {
	perImage := map[string][]string{}
	add := func(id, token string) {
		perImage[id] = append(perImage[id], token)
	}

	global := pipestate.GlobalAnomalyBuckets{}

	deviceMismatch(images, add, &global)
	timestampInconsistency(images, add, &global)
	isolatedGPS(images, add, &global)
	brightnessOutliers(images, add, &global)
	hashDuplicates(images, add, &global)

	result := pipestate.OSINTAnomalies{Global: global}
	for _, img := range images {
		if tokens, ok := perImage[img.ImageID]; ok {
			result.PerImage = append(result.PerImage, pipestate.ImageAnomalies{ImageID: img.ImageID, Anomalies: tokens})
		}
	}
	return result
}

func deviceMismatch(images []Image, add func(id, token string), global *pipestate.GlobalAnomalyBuckets) {
	counts := map[string]int{}
	for _, img := range images {
		if img.DeviceModel == "" {
			continue
		}
		counts[img.DeviceModel]++
	}
	if len(counts) <= 1 {
		return
	}

	dominant := ""
	best := -1
	models := make([]string, 0, len(counts))
	for model := range counts {
		models = append(models, model)
	}
	sort.Strings(models)
	for _, model := range models {
		if counts[model] > best {
			best = counts[model]
			dominant = model
		}
	}

	global.DeviceInconsistencies = map[string][]string{}
	for _, img := range images {
		if img.DeviceModel == "" {
			continue
		}
		global.DeviceInconsistencies[img.DeviceModel] = append(global.DeviceInconsistencies[img.DeviceModel], img.ImageID)
		if img.DeviceModel != dominant {
			add(img.ImageID, "device_mismatch")
		}
	}
}

func timestampInconsistency(images []Image, add func(id, token string), global *pipestate.GlobalAnomalyBuckets) {
	type stamped struct {
		id string
		ts time.Time
	}
	var stamps []stamped
	for _, img := range images {
		if img.Timestamp != nil {
			stamps = append(stamps, stamped{id: img.ImageID, ts: *img.Timestamp})
		}
	}
	if len(stamps) < 2 {
		return
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].ts.Before(stamps[j].ts) })

	for i := 1; i < len(stamps); i++ {
		delta := stamps[i].ts.Sub(stamps[i-1].ts)
		if delta < 0 {
			add(stamps[i].id, "non_monotonic")
			global.TimestampInconsistencies = append(global.TimestampInconsistencies, stamps[i].id)
		}
		if delta > 30*24*time.Hour {
			add(stamps[i].id, "large_gap_days")
			global.TimestampInconsistencies = append(global.TimestampInconsistencies, stamps[i].id)
		}
	}
}

func isolatedGPS(images []Image, add func(id, token string), global *pipestate.GlobalAnomalyBuckets) {
	var withGPS []Image
	for _, img := range images {
		if img.HasGPS {
			withGPS = append(withGPS, img)
		}
	}
	if len(withGPS) == 1 && len(images) > 1 {
		add(withGPS[0].ImageID, "isolated_gps")
		global.IsolatedGPS = append(global.IsolatedGPS, withGPS[0].ImageID)
		return
	}
	if len(withGPS) <= 1 {
		return
	}

	minLat, maxLat := withGPS[0].Latitude, withGPS[0].Latitude
	minLon, maxLon := withGPS[0].Longitude, withGPS[0].Longitude
	for _, img := range withGPS {
		minLat = math.Min(minLat, img.Latitude)
		maxLat = math.Max(maxLat, img.Latitude)
		minLon = math.Min(minLon, img.Longitude)
		maxLon = math.Max(maxLon, img.Longitude)
	}
	if maxLat-minLat > 5 || maxLon-minLon > 5 {
		for _, img := range withGPS {
			add(img.ImageID, "widely_separated_points")
			global.IsolatedGPS = append(global.IsolatedGPS, img.ImageID)
		}
	}
}

func brightnessOutliers(images []Image, add func(id, token string), global *pipestate.GlobalAnomalyBuckets) {
	if len(images) < 3 {
		return
	}
	var sum float64
	for _, img := range images {
		sum += img.Brightness
	}
	mean := sum / float64(len(images))

	var variance float64
	for _, img := range images {
		d := img.Brightness - mean
		variance += d * d
	}
	stdev := math.Sqrt(variance / float64(len(images)))
	if stdev == 0 {
		return
	}

	for _, img := range images {
		if math.Abs(img.Brightness-mean)/stdev > 2 {
			add(img.ImageID, "brightness_outlier")
			global.BrightnessOutliers = append(global.BrightnessOutliers, img.ImageID)
		}
	}
}

func hashDuplicates(images []Image, add func(id, token string), global *pipestate.GlobalAnomalyBuckets) {
	seen := map[string]bool{}
	reported := map[string]bool{}
	for _, img := range images {
		if img.SHA256 == "" {
			continue
		}
		if seen[img.SHA256] {
			add(img.ImageID, "hash_duplicate")
			if !reported[img.SHA256] {
				global.HashDuplicates = append(global.HashDuplicates, img.SHA256)
				reported[img.SHA256] = true
			}
		}
		seen[img.SHA256] = true
	}
}
