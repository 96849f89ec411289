package face

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradientImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8((x + y) % 256)
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func TestHeuristicProviderDetectsSingleCenteredFace(t *testing.T) {
	img := gradientImage(120, 120)
	provider := NewHeuristicProvider()

	faces, err := provider.Detect(img)
	require.NoError(t, err)
	require.Len(t, faces, 1)
	assert.Equal(t, "fallback", faces[0].DetectionModel)
	assert.Len(t, faces[0].Embedding, heuristicEmbeddingDim)
	assert.True(t, faces[0].RawConfidence >= 0 && faces[0].RawConfidence <= 1)
}

func TestHeuristicProviderDeterministicEmbedding(t *testing.T) {
	img := gradientImage(80, 80)
	provider := NewHeuristicProvider()

	first, err := provider.Detect(img)
	require.NoError(t, err)
	second, err := provider.Detect(img)
	require.NoError(t, err)

	assert.Equal(t, first[0].Embedding, second[0].Embedding)
}

func TestDetectorFallsBackToAccurateWhenFastEmpty(t *testing.T) {
	img := gradientImage(100, 100)
	empty := &stubProvider{name: "empty"}
	heuristic := NewHeuristicProvider()

	detector := &Detector{Fast: empty, Accurate: heuristic}
	records, err := detector.DetectFaces(img, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "fallback", records[0].DetectionModel)
}

func TestEstimatePoseRequiresAllSixLandmarks(t *testing.T) {
	_, ok := estimatePose(nil)
	assert.False(t, ok)
}

func TestEstimatePoseFrontalFaceNearZero(t *testing.T) {
	landmarks := make([][2]float64, 68)
	landmarks[landmarkLeftEyeCorner] = [2]float64{30, 40}
	landmarks[landmarkRightEyeCorner] = [2]float64{70, 40}
	landmarks[landmarkNoseTip] = [2]float64{50, 60}
	landmarks[landmarkChin] = [2]float64{50, 96}
	landmarks[landmarkLeftMouth] = [2]float64{35, 80}
	landmarks[landmarkRightMouth] = [2]float64{65, 80}

	pose, ok := estimatePose(landmarks)
	require.True(t, ok)
	assert.InDelta(t, 0, pose.Roll, 1.0)
	assert.True(t, pose.Valid)
}

func TestExternalDenseLandmarkProviderUnavailableWhenBinMissing(t *testing.T) {
	_, ok := NewExternalDenseLandmarkProvider("", nil)
	assert.False(t, ok)

	_, ok = NewExternalDenseLandmarkProvider("definitely-not-a-real-binary-xyz", nil)
	assert.False(t, ok)
}

func TestNewDetectorWithDenseDegradesWithoutBin(t *testing.T) {
	detector, stack := NewDetectorWithDense("", false, "", nil)
	assert.Nil(t, detector.Dense)
	assert.Equal(t, []string{"fallback"}, stack)
}

type stubProvider struct {
	name string
}

func (s *stubProvider) Name() string { return s.name }
func (s *stubProvider) Detect(img image.Image) ([]DetectedFace, error) {
	return nil, nil
}
