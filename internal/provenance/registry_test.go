package provenance

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterThenCheckIsDuplicate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	reg, err := Open(path, 6, nil)
	require.NoError(t, err)

	result, err := reg.CheckAndRegisterImage("abc123", map[string]any{"name": "one"}, "", "")
	require.NoError(t, err)
	assert.Equal(t, VerdictAllowed, result.Verdict)

	second := reg.CheckImage("abc123", "", "")
	assert.Equal(t, VerdictDuplicate, second.Verdict)
	assert.Equal(t, "sha256_match", second.Reason)
}

func TestRegisterTwiceDoesNotMutateRegisteredAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	reg, err := Open(path, 6, nil)
	require.NoError(t, err)

	_, err = reg.CheckAndRegisterImage("dup", nil, "", "")
	require.NoError(t, err)
	first := reg.doc.Images["dup"].RegisteredAt

	require.NoError(t, reg.RegisterImage("dup", nil, "", ""))
	second := reg.doc.Images["dup"].RegisteredAt

	assert.Equal(t, first, second)
}

func TestPerceptualHashNearDuplicate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	reg, err := Open(path, 6, nil)
	require.NoError(t, err)

	_, err = reg.CheckAndRegisterImage("first", nil, "0000000000000000", "")
	require.NoError(t, err)

	// Flip 3 bits: within the fixed Hamming threshold of 6.
	result := reg.CheckImage("second", "0000000000000007", "")
	assert.Equal(t, VerdictDuplicate, result.Verdict)
	assert.Equal(t, "perceptual_match", result.Reason)
}

func TestPerceptualHashBeyondThresholdAllowed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	reg, err := Open(path, 6, nil)
	require.NoError(t, err)

	_, err = reg.CheckAndRegisterImage("first", nil, "0000000000000000", "")
	require.NoError(t, err)

	// 0xFF has 8 set bits: beyond the threshold of 6.
	result := reg.CheckImage("second", "00000000000000ff", "")
	assert.Equal(t, VerdictAllowed, result.Verdict)
}

func TestRevokedConsentBlocksDuplicate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	reg, err := Open(path, 6, nil)
	require.NoError(t, err)

	_, err = reg.CheckAndRegisterImage("revoke-me", nil, "", "")
	require.NoError(t, err)
	require.NoError(t, reg.RevokeConsent("revoke-me"))

	result := reg.CheckImage("revoke-me", "", "")
	assert.Equal(t, VerdictRevoked, result.Verdict)
}

func TestLookupPointerResolvesRegisteredMask(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	reg, err := Open(path, 6, nil)
	require.NoError(t, err)

	require.NoError(t, reg.RegisterMask("maskhash1", map[string]any{"image_id": "img_001"}))

	rec, ns, ok := reg.LookupPointer("maskhash1", "")
	require.True(t, ok)
	assert.Equal(t, "mask", ns)
	assert.Equal(t, "maskhash1", rec.Hash)
}

func TestCorruptRegistryFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	reg, err := Open(path, 6, nil)
	require.NoError(t, err)
	assert.Empty(t, reg.doc.Images)

	_, statErr := os.Stat(path + ".corrupt")
	assert.NoError(t, statErr)
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	reg, err := Open(path, 6, nil)
	require.NoError(t, err)
	_, err = reg.CheckAndRegisterImage("persisted", map[string]any{"k": "v"}, "abcd", "")
	require.NoError(t, err)

	reloaded, err := Open(path, 6, nil)
	require.NoError(t, err)
	result := reloaded.CheckImage("persisted", "", "")
	assert.Equal(t, VerdictDuplicate, result.Verdict)
}
