package provenance

import (
	"fmt"
	"image"
	"math/bits"

	"github.com/corona10/goimagehash"
)

// PerceptualHash computes the spec's 64-bit DCT perceptual hash (32x32
// grayscale -> 2D DCT -> compare the top-left 8x8 block to its median ->
// 64-bit bitstring -> hex). goimagehash.PerceptionHash already implements
// exactly this algorithm, so it is used directly rather than hand-rolled.
func PerceptualHash(img image.Image) (string, error) {
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return "", fmt.Errorf("compute perceptual hash: %w", err)
	}
	return fmt.Sprintf("%016x", h.GetHash()), nil
}

// HammingDistance computes the XOR-popcount Hamming distance between two
// hex-encoded 64-bit perceptual hashes, per spec.md §4.1.
func HammingDistance(a, b string) (int, error) {
	var va, vb uint64
	if _, err := fmt.Sscanf(a, "%016x", &va); err != nil {
		return 0, fmt.Errorf("parse hash %q: %w", a, err)
	}
	if _, err := fmt.Sscanf(b, "%016x", &vb); err != nil {
		return 0, fmt.Errorf("parse hash %q: %w", b, err)
	}
	return bits.OnesCount64(va ^ vb), nil
}
