package landmark

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeClustersNearbyPoints(t *testing.T) {
	points := []SourcePoint{
		{X: 0, Y: 0, Z: 1},
		{X: 2, Y: 2, Z: 1.2},
		{X: 500, Y: 500, Z: 5},
	}
	cloud := Merge(points)
	require.Len(t, cloud.Points, 2)
	assert.Equal(t, 3, cloud.OriginalPointCount)
	assert.InDelta(t, 2.0/3.0, cloud.CompressionRatio, 0.0001)
}

func TestMergeConfidenceScalesWithClusterSize(t *testing.T) {
	points := []SourcePoint{
		{X: 0, Y: 0, Z: 0},
		{X: 1, Y: 1, Z: 0},
		{X: 2, Y: 0, Z: 0},
		{X: 0, Y: 2, Z: 0},
		{X: 1, Y: 0, Z: 0},
	}
	cloud := Merge(points)
	require.Len(t, cloud.Points, 1)
	assert.InDelta(t, 1.0, cloud.PerPointConfidence[0], 0.0001)
}

func TestMergeSinglePointHasHalfConfidence(t *testing.T) {
	cloud := Merge([]SourcePoint{{X: 0, Y: 0, Z: 0}})
	require.Len(t, cloud.Points, 1)
	assert.Equal(t, 0.5, cloud.PerPointConfidence[0])
}

func TestMergeEmptyInputProducesEmptyCloud(t *testing.T) {
	cloud := Merge(nil)
	assert.Empty(t, cloud.Points)
	assert.Equal(t, 0.0, cloud.CompressionRatio)
}

func TestMergeDefaultsToNeutralGrayWithoutFrame(t *testing.T) {
	cloud := Merge([]SourcePoint{{X: 0, Y: 0, Z: 0}})
	assert.Equal(t, [3]uint8{128, 128, 128}, cloud.PerPointColor[0])
}
