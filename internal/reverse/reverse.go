// Package reverse implements C10: normalizing heterogeneous reverse-image
// search engine output into a canonical ReverseImageResult, plus a Driver
// abstraction for the engines themselves. The HTTP driver's submit/poll
// shape follows the teacher's VisionServiceClient job lifecycle
// (SubmitJob/GetJobStatus/GetResults) against a dedicated reverse-search
// backend instead of the teacher's video-analysis backend.
package reverse

import (
	"context"
	"math"
	"net/url"
	"sort"

	"github.com/smegmarip/4d-photo-intel/internal/pipestate"
)

// EngineResult is one engine's raw output for a single image, before
// normalization.
type EngineResult struct {
	Engine string
	URLs   []string
}

// RawSearch is the full heterogeneous input to Normalize: every engine's
// hits, plus the session-wide externally-verified URL set.
type RawSearch struct {
	ImageID      string
	Engines      []EngineResult
	VerifiedURLs []string
}

// Driver performs the actual reverse-image search for one image. A
// disabled or failed driver call still produces a valid, empty
// ReverseImageResult — C10 never fabricates hits.
type Driver interface {
	Search(ctx context.Context, imageID string, imageBytes []byte) (RawSearch, error)
}

// NoOpDriver implements Driver for disable_reverse_search or for batches
// run with no configured backend; every call returns an empty RawSearch.
type NoOpDriver struct{}

func (NoOpDriver) Search(ctx context.Context, imageID string, imageBytes []byte) (RawSearch, error) {
	return RawSearch{ImageID: imageID}, nil
}

// Normalize implements C10's contract exactly.
func Normalize(raw RawSearch) pipestate.ReverseImageResult {
	result := pipestate.ReverseImageResult{ImageID: raw.ImageID}

	verified := map[string]bool{}
	for _, u := range raw.VerifiedURLs {
		if u == "" {
			continue
		}
		verified[u] = true
	}

	seenURLs := map[string]bool{}
	seenDomains := map[string]bool{}
	engineSet := map[string]bool{}

	rank := 0
	for _, engine := range raw.Engines {
		if engine.Engine == "" {
			continue
		}
		hadHit := false
		for _, rawURL := range engine.URLs {
			if rawURL == "" {
				continue
			}
			domain := extractDomain(rawURL)
			if domain == "" {
				continue
			}
			rank++
			hit := pipestate.ReverseHit{
				Engine:   engine.Engine,
				URL:      rawURL,
				Domain:   domain,
				Verified: verified[rawURL],
				Rank:     rank,
			}
			result.Hits = append(result.Hits, hit)
			seenURLs[rawURL] = true
			seenDomains[domain] = true
			hadHit = true
		}
		if hadHit {
			engineSet[engine.Engine] = true
		}
	}

	engines := make([]string, 0, len(engineSet))
	for e := range engineSet {
		engines = append(engines, e)
	}
	sort.Strings(engines)
	result.Engines = engines
	result.TotalHits = len(result.Hits)
	result.UniqueDomains = len(seenDomains)

	if len(seenURLs) == 0 {
		return result
	}

	verifiedUniqueCount := 0
	for u := range seenURLs {
		if verified[u] {
			verifiedUniqueCount++
		}
	}
	result.VerifiedRatio = float64(verifiedUniqueCount) / float64(len(seenURLs))
	result.StrengthScore = strengthScore(result.VerifiedRatio, len(engines), len(seenDomains))
	return result
}

// strengthScore implements the fixed formula:
// 0.5·verified_ratio + 0.25·min(|engines|/4,1) + 0.25·min(|domains|/25,1).
func strengthScore(verifiedRatio float64, engineCount, domainCount int) float64 {
	engineTerm := math.Min(float64(engineCount)/4.0, 1.0)
	domainTerm := math.Min(float64(domainCount)/25.0, 1.0)
	return 0.5*verifiedRatio + 0.25*engineTerm + 0.25*domainTerm
}

// extractDomain returns the host component of a URL, or "" if the URL is
// malformed; malformed URLs are silently omitted per C10's contract.
func extractDomain(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return parsed.Hostname()
}
