// Package decode implements C2: turning raw uploaded bytes into an
// orientation-normalized raster plus the metadata bag used by every
// downstream OSINT stage.
//
// Grounded on internal/rpc/utils.go's NormalizeImageOrientation (EXIF
// orientation tag 274, manual rotate/flip transforms) and on
// rwcarlsen/goexif/exif for the metadata bag. Extra raster formats are
// registered via blank import exactly as rpc/utils.go does.
package decode

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/png"
	"sort"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/disintegration/imaging"

	"github.com/smegmarip/4d-photo-intel/internal/pipestate"
	"github.com/smegmarip/4d-photo-intel/internal/provenance"
)

// SessionRegistry is the subset of provenance.Registry the decoder needs;
// declared narrowly so tests can supply a fake without touching disk.
type SessionRegistry interface {
	SeenThisSession(sha256 string) bool
}

// Extract implements extract(bytes, index) -> (decoded_pixels, ImageMetadata)
// from spec.md §4.2. registry may be nil, in which case the "not already
// cached in session" credibility factor is always granted.
func Extract(raw []byte, index int, registry SessionRegistry) pipestate.IngestedImage {
	id := fmt.Sprintf("img_%03d", index)

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return placeholder(id, index, raw, fmt.Sprintf("decode_failed: %v", err))
	}

	x := readEXIF(raw)
	oriented := applyOrientation(img, orientationTag(x))
	bounds := oriented.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	sha := sha256.Sum256(raw)
	shaHex := hex.EncodeToString(sha[:])
	md := md5.Sum(raw)
	mdHex := hex.EncodeToString(md[:])

	phash, err := provenance.PerceptualHash(oriented)
	if err != nil {
		phash = ""
	}

	device := deviceInfo(x)
	timestamp, timestampInfo := originalTimestamp(x)
	gps := gpsDecimal(x)
	indicators := platformIndicators(device.Software, width, height)
	brightness := brightnessMean(oriented)

	meta := pipestate.ImageMetadata{
		FileSize:              int64(len(raw)),
		SHA256:                shaHex,
		MD5:                   mdHex,
		PerceptualHash:        phash,
		DeviceInfo:            device,
		ExifSoftwareRaw:       device.Software,
		TimestampOriginal:     timestamp,
		TimestampInfo:         timestampInfo,
		LocationData:          gps,
		SocialMediaIndicators: indicators,
		BrightnessMean:        brightness,
	}

	seenBefore := false
	if registry != nil {
		seenBefore = registry.SeenThisSession(shaHex)
	}
	meta.CredibilityScore, meta.CredibilityFactors = credibilityScore(meta, seenBefore)

	pixels := rasterize(oriented)

	return pipestate.IngestedImage{
		ID:       id,
		Index:    index,
		Width:    width,
		Height:   height,
		Metadata: meta,
		Compliance: pipestate.Compliance{
			Status: pipestate.ComplianceAccepted,
		},
		DecodedPixels: pipestate.DecodedImage{
			RawBytes: raw,
			Pixels:   pixels,
			Width:    width,
			Height:   height,
		},
	}
}

func placeholder(id string, index int, raw []byte, reason string) pipestate.IngestedImage {
	return pipestate.IngestedImage{
		ID:          id,
		Index:       index,
		Metadata:    pipestate.ImageMetadata{FileSize: int64(len(raw))},
		Compliance:  pipestate.Compliance{Status: pipestate.ComplianceError, Reason: reason},
		DecodeError: reason,
	}
}

// rasterize flattens img into a row-major NRGBA byte buffer for
// downstream stages that need raw pixel access without re-decoding.
func rasterize(img image.Image) []byte {
	rgba := imaging.Clone(img)
	return rgba.Pix
}

// brightnessMean samples a downscaled grayscale copy and averages pixel
// luminance to [0,1], used both as a standalone signal and as an input
// to C9's brightness-outlier anomaly rule.
func brightnessMean(img image.Image) float64 {
	small := imaging.Resize(img, 64, 0, imaging.Lanczos)
	bounds := small.Bounds()
	var sum float64
	var count int
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := small.At(x, y).RGBA()
			lum := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 65535.0
			sum += lum
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// credibilityScore implements spec.md §4.2's accumulation rule exactly.
func credibilityScore(meta pipestate.ImageMetadata, seenBefore bool) (float64, []string) {
	var score float64
	var factors []string

	if meta.LocationData.HasDecimal {
		score += 0.25
		factors = append(factors, "gps_decoded")
	}
	if meta.DeviceInfo.Make != "" && meta.DeviceInfo.Model != "" {
		score += 0.25
		factors = append(factors, "device_identified")
	}
	if meta.TimestampOriginal != nil {
		score += 0.20
		factors = append(factors, "timestamp_present")
	}
	if len(meta.SocialMediaIndicators) > 0 {
		score += 0.10
		factors = append(factors, "platform_indicator")
	}
	if !seenBefore {
		score += 0.20
		factors = append(factors, "session_unique")
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	score = roundTo(score, 3)

	sort.Strings(factors)
	return score, factors
}

func roundTo(v float64, places int) float64 {
	mult := 1.0
	for i := 0; i < places; i++ {
		mult *= 10
	}
	return float64(int(v*mult+0.5)) / mult
}
