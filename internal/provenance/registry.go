package provenance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Registry is the process-wide fingerprint store. Construct one per
// enclosing service and inject it explicitly rather than reaching for a
// package-level global (spec.md §9, "Process-wide registry").
//
// Go's sync.Mutex is not reentrant. Rather than fabricate a recursive lock,
// every public operation that needs "check, then register" acquires mu
// exactly once and calls unexported *Locked helpers internally — preserving
// the spec's check-then-register intent without re-entering the lock.
type Registry struct {
	mu   sync.Mutex
	path string
	doc  *document
	log  *logrus.Entry

	// hammingMax is the fixed perceptual-hash near-duplicate threshold.
	hammingMax int

	// seenThisSession tracks SHA-256 values registered during the current
	// process lifetime, for C2's credibility-score "not already cached in
	// session" signal.
	seenThisSession map[string]bool
}

// Open loads the registry from path, or starts a fresh in-memory registry
// if the file is absent. A corrupt persistence file is renamed with a
// .corrupt suffix and a fresh registry is started; Open never returns an
// error for a corrupt file, matching the "never crash" failure semantics
// of spec.md §4.1.
func Open(path string, hammingMax int, log *logrus.Entry) (*Registry, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	r := &Registry{
		path:            path,
		doc:             newDocument(),
		log:             log.WithField("component", "provenance"),
		hammingMax:      hammingMax,
		seenThisSession: map[string]bool{},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("read registry file %s: %w", path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		r.log.Warnf("corrupt registry file %s, starting fresh: %v", path, err)
		corruptPath := path + ".corrupt"
		if renameErr := os.Rename(path, corruptPath); renameErr != nil {
			r.log.Warnf("failed to rename corrupt registry to %s: %v", corruptPath, renameErr)
		}
		return r, nil
	}
	if doc.Images == nil {
		doc.Images = map[string]*Record{}
	}
	if doc.Masks == nil {
		doc.Masks = map[string]*Record{}
	}
	if doc.Models == nil {
		doc.Models = map[string]*Record{}
	}
	if doc.Watermarks == nil {
		doc.Watermarks = map[string]string{}
	}
	r.doc = &doc
	return r, nil
}

// persistLocked writes the document atomically (temp file + rename). Must
// be called while mu is held.
func (r *Registry) persistLocked() error {
	if r.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(r.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, ".provenance-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp registry file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp registry file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp registry file: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp registry file: %w", err)
	}
	return nil
}

// CheckImage implements check_image: exact SHA match, then watermark
// match, then perceptual-hash near-duplicate, in that decision order.
func (r *Registry) CheckImage(sha256 string, phash, watermarkHash string) CheckResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checkImageLocked(sha256, phash, watermarkHash)
}

func (r *Registry) checkImageLocked(sha256, phash, watermarkHash string) CheckResult {
	if rec, ok := r.doc.Images[sha256]; ok {
		if rec.Consent == ConsentRevoked {
			return CheckResult{Verdict: VerdictRevoked, Reason: "sha256_match"}
		}
		return CheckResult{Verdict: VerdictDuplicate, Reason: "sha256_match"}
	}

	if watermarkHash != "" {
		if imgSHA, ok := r.doc.Watermarks[watermarkHash]; ok {
			if rec, ok := r.doc.Images[imgSHA]; ok && rec.Consent == ConsentRevoked {
				return CheckResult{Verdict: VerdictRevoked, Reason: "watermark_match"}
			}
			return CheckResult{Verdict: VerdictDuplicate, Reason: "watermark_match"}
		}
	}

	if phash != "" {
		for _, rec := range r.doc.Images {
			if rec.PerceptualHash == "" {
				continue
			}
			d, err := HammingDistance(phash, rec.PerceptualHash)
			if err != nil {
				continue
			}
			if d <= r.hammingMax {
				return CheckResult{Verdict: VerdictDuplicate, Reason: "perceptual_match"}
			}
		}
	}

	return CheckResult{Verdict: VerdictAllowed}
}

// RegisterImage implements register_image: writes the record, updates
// last_seen, and updates the watermark index.
func (r *Registry) RegisterImage(sha256 string, metadata map[string]any, phash, watermarkHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerImageLocked(sha256, metadata, phash, watermarkHash)
}

func (r *Registry) registerImageLocked(sha256 string, metadata map[string]any, phash, watermarkHash string) error {
	now := time.Now().UTC()
	if rec, ok := r.doc.Images[sha256]; ok {
		rec.LastSeen = now
	} else {
		r.doc.Images[sha256] = &Record{
			Hash:           sha256,
			RegisteredAt:   now,
			LastSeen:       now,
			Consent:        ConsentPending,
			Metadata:       metadata,
			PerceptualHash: phash,
			WatermarkHash:  watermarkHash,
		}
	}
	if watermarkHash != "" {
		r.doc.Watermarks[watermarkHash] = sha256
	}
	r.seenThisSession[sha256] = true
	return r.persistLocked()
}

// CheckAndRegisterImage performs the common "check, then register if
// allowed" sequence under a single lock acquisition.
func (r *Registry) CheckAndRegisterImage(sha256 string, metadata map[string]any, phash, watermarkHash string) (CheckResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := r.checkImageLocked(sha256, phash, watermarkHash)
	if result.Verdict == VerdictAllowed {
		if err := r.registerImageLocked(sha256, metadata, phash, watermarkHash); err != nil {
			return result, err
		}
	}
	return result, nil
}

// SeenThisSession reports whether sha256 was registered earlier in this
// process's lifetime, feeding C2's credibility-score heuristic.
func (r *Registry) SeenThisSession(sha256 string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seenThisSession[sha256]
}

// CheckMask implements check_mask: exact hash match only, no
// near-duplicate rule.
func (r *Registry) CheckMask(maskHash string) CheckResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.doc.Masks[maskHash]; ok {
		if rec.Consent == ConsentRevoked {
			return CheckResult{Verdict: VerdictRevoked, Reason: "mask_policy"}
		}
		return CheckResult{Verdict: VerdictDuplicate, Reason: "mask_policy"}
	}
	return CheckResult{Verdict: VerdictAllowed}
}

// RegisterMask implements register_mask.
func (r *Registry) RegisterMask(maskHash string, metadata map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	if rec, ok := r.doc.Masks[maskHash]; ok {
		rec.LastSeen = now
	} else {
		r.doc.Masks[maskHash] = &Record{
			Hash:         maskHash,
			RegisteredAt: now,
			LastSeen:     now,
			Consent:      ConsentPending,
			Metadata:     metadata,
		}
	}
	return r.persistLocked()
}

// CheckModel implements check_model.
func (r *Registry) CheckModel(modelHash string) CheckResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.doc.Models[modelHash]; ok {
		if rec.Consent == ConsentRevoked {
			return CheckResult{Verdict: VerdictRevoked, Reason: "model_policy"}
		}
		return CheckResult{Verdict: VerdictDuplicate, Reason: "model_policy"}
	}
	return CheckResult{Verdict: VerdictAllowed}
}

// RegisterModel implements register_model.
func (r *Registry) RegisterModel(modelHash string, metadata map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	if rec, ok := r.doc.Models[modelHash]; ok {
		rec.LastSeen = now
	} else {
		r.doc.Models[modelHash] = &Record{
			Hash:         modelHash,
			RegisteredAt: now,
			LastSeen:     now,
			Consent:      ConsentPending,
			Metadata:     metadata,
		}
	}
	return r.persistLocked()
}

// LookupPointer resolves an opaque pointer (sha256, mask_hash, model_hash,
// watermark_hash, or phash) to a record, for reviewer tooling. typ may be
// "", "image", "mask", "model", or "watermark"; "" searches all namespaces.
func (r *Registry) LookupPointer(pointer, typ string) (*Record, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	search := func(ns string, m map[string]*Record) (*Record, string, bool) {
		if rec, ok := m[pointer]; ok {
			return rec, ns, true
		}
		return nil, "", false
	}

	tryOrder := []struct {
		name string
		m    map[string]*Record
	}{
		{"image", r.doc.Images},
		{"mask", r.doc.Masks},
		{"model", r.doc.Models},
	}

	if typ != "" {
		for _, t := range tryOrder {
			if t.name == typ {
				return search(t.name, t.m)
			}
		}
		if typ == "watermark" {
			if sha, ok := r.doc.Watermarks[pointer]; ok {
				if rec, ok := r.doc.Images[sha]; ok {
					return rec, "image", true
				}
			}
			return nil, "", false
		}
		return nil, "", false
	}

	for _, t := range tryOrder {
		if rec, ns, ok := search(t.name, t.m); ok {
			return rec, ns, true
		}
	}
	if sha, ok := r.doc.Watermarks[pointer]; ok {
		if rec, ok := r.doc.Images[sha]; ok {
			return rec, "image", true
		}
	}
	// Perceptual-hash pointer: scan images for a match.
	for _, rec := range r.doc.Images {
		if rec.PerceptualHash == pointer {
			return rec, "image", true
		}
	}
	return nil, "", false
}

// RevokeConsent flips an image record's consent field to revoked. Records
// are never deleted; only the consent field changes.
func (r *Registry) RevokeConsent(sha256 string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.doc.Images[sha256]
	if !ok {
		return fmt.Errorf("no image record for sha256 %s", sha256)
	}
	rec.Consent = ConsentRevoked
	return r.persistLocked()
}
