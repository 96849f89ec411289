package decode

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/smegmarip/4d-photo-intel/internal/pipestate"
)

// readEXIF extracts the EXIF tag set used throughout C2. A missing or
// corrupt EXIF block is not an error: the returned bag is simply empty,
// since most downstream signals degrade gracefully to "absent".
func readEXIF(raw []byte) *exif.Exif {
	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil
	}
	return x
}

// orientationTag reads the EXIF orientation tag (274), defaulting to 1
// (no transform) when absent or unparsable.
func orientationTag(x *exif.Exif) int {
	if x == nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return v
}

func deviceInfo(x *exif.Exif) pipestate.DeviceInfo {
	var info pipestate.DeviceInfo
	if x == nil {
		return info
	}
	info.Make = tagString(x, exif.Make)
	info.Model = tagString(x, exif.Model)
	info.Software = tagString(x, exif.Software)
	return info
}

func tagString(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return strings.Trim(tag.String(), `"`)
	}
	return strings.TrimSpace(s)
}

func originalTimestamp(x *exif.Exif) (*time.Time, string) {
	if x == nil {
		return nil, ""
	}
	t, err := x.DateTime()
	if err != nil {
		return nil, fmt.Sprintf("timestamp_unavailable: %v", err)
	}
	return &t, ""
}

// gpsDecimal converts the EXIF GPS rationals to signed decimal degrees.
// Failure is reported via the returned error string rather than a Go
// error, matching spec.md §4.2's "never crash extraction" rule.
func gpsDecimal(x *exif.Exif) pipestate.GPSData {
	data := pipestate.GPSData{Raw: map[string]string{}}
	if x == nil {
		return data
	}

	lat, long, err := x.LatLong()
	if err != nil {
		data.DecodeError = fmt.Sprintf("gps_unavailable: %v", err)
		return data
	}

	if latRef := tagString(x, exif.GPSLatitudeRef); latRef != "" {
		data.Raw["GPSLatitudeRef"] = latRef
	}
	if longRef := tagString(x, exif.GPSLongitudeRef); longRef != "" {
		data.Raw["GPSLongitudeRef"] = longRef
	}

	data.Latitude = lat
	data.Longitude = long
	data.HasDecimal = true
	return data
}

// platformIndicators matches the Software EXIF tag against known
// platform substrings, then appends aspect-ratio heuristics.
func platformIndicators(software string, width, height int) []string {
	var indicators []string

	lower := strings.ToLower(software)
	for substr, label := range softwarePlatformMarkers {
		if strings.Contains(lower, substr) {
			indicators = append(indicators, label)
		}
	}

	if width > 0 && height > 0 {
		ratio := float64(width) / float64(height)
		switch {
		case width == 1080 && height == 1080:
			indicators = append(indicators, "Instagram Square")
		case approxEqual(ratio, 1.91, 0.03):
			indicators = append(indicators, "Facebook Link Preview")
		case approxEqual(ratio, 9.0/16.0, 0.02):
			indicators = append(indicators, "Instagram Story")
		}
	}

	return indicators
}

var softwarePlatformMarkers = map[string]string{
	"instagram": "Instagram",
	"facebook":  "Facebook",
	"whatsapp":  "WhatsApp",
	"twitter":   "Twitter",
	"snapchat":  "Snapchat",
}

func approxEqual(a, b, tolerance float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}
