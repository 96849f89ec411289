package decode

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smegmarip/4d-photo-intel/internal/pipestate"
)

func solidPNG(t *testing.T, width, height int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fakeRegistry struct {
	seen map[string]bool
}

func (f *fakeRegistry) SeenThisSession(sha256 string) bool {
	return f.seen[sha256]
}

func TestExtractDecodeFailureProducesPlaceholder(t *testing.T) {
	result := Extract([]byte("not an image"), 0, nil)
	assert.Equal(t, pipestate.ComplianceError, result.Compliance.Status)
	assert.NotEmpty(t, result.DecodeError)
	assert.Equal(t, 0, result.Width)
}

func TestExtractPopulatesHashesAndDimensions(t *testing.T) {
	raw := solidPNG(t, 40, 20, color.RGBA{R: 200, G: 200, B: 200, A: 255})
	result := Extract(raw, 3, nil)

	require.Equal(t, pipestate.ComplianceAccepted, result.Compliance.Status)
	assert.Equal(t, 40, result.Width)
	assert.Equal(t, 20, result.Height)
	assert.Len(t, result.Metadata.SHA256, 64)
	assert.Len(t, result.Metadata.MD5, 32)
	assert.Equal(t, 3, result.Index)
}

func TestCredibilityScoreAccumulatesAndClamps(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	meta := pipestate.ImageMetadata{
		LocationData:          pipestate.GPSData{HasDecimal: true},
		DeviceInfo:            pipestate.DeviceInfo{Make: "Apple", Model: "iPhone 14"},
		TimestampOriginal:     &ts,
		SocialMediaIndicators: []string{"Instagram"},
	}

	score, factors := credibilityScore(meta, false)
	assert.InDelta(t, 1.0, score, 0.0001)
	assert.Contains(t, factors, "gps_decoded")
	assert.Contains(t, factors, "device_identified")
	assert.Contains(t, factors, "timestamp_present")
	assert.Contains(t, factors, "platform_indicator")
	assert.Contains(t, factors, "session_unique")
}

func TestCredibilityScoreZeroWhenNoSignalsAndSeenBefore(t *testing.T) {
	score, factors := credibilityScore(pipestate.ImageMetadata{}, true)
	assert.Equal(t, 0.0, score)
	assert.Empty(t, factors)
}

func TestCredibilityScoreSessionUniqueOnlyFactor(t *testing.T) {
	score, factors := credibilityScore(pipestate.ImageMetadata{}, false)
	assert.InDelta(t, 0.20, score, 0.0001)
	assert.Equal(t, []string{"session_unique"}, factors)
}

func TestSeenThisSessionSuppressesCredibilityFactor(t *testing.T) {
	raw := solidPNG(t, 10, 10, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	probe := Extract(raw, 0, nil)

	reg := &fakeRegistry{seen: map[string]bool{probe.Metadata.SHA256: true}}
	result := Extract(raw, 0, reg)

	assert.NotContains(t, result.Metadata.CredibilityFactors, "session_unique")
}

func TestPlatformIndicatorsAspectRatioHeuristics(t *testing.T) {
	assert.Contains(t, platformIndicators("", 1080, 1080), "Instagram Square")
	assert.Contains(t, platformIndicators("", 1910, 1000), "Facebook Link Preview")
	assert.Empty(t, platformIndicators("", 640, 480))
}

func TestPlatformIndicatorsSoftwareSubstring(t *testing.T) {
	indicators := platformIndicators("Instagram 301.0.0.0", 0, 0)
	assert.Contains(t, indicators, "Instagram")
}

