// Package extraction turns post text into Entity mentions, claims, frames,
// events and the coarse classification topic of each post.
package extraction

import (
	"context"
	"strings"

	"github.com/izukuuuu/opinion-system-sub001/backend/internal/evidence"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/identity"
)

// Entity is one (name, type) pair produced by an extractor
type Entity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TextExtractor finds named entities in text. Implementations return entities
// in document order; duplicates are allowed and removed before writing.
type TextExtractor interface {
	Extract(ctx context.Context, text string) ([]Entity, error)
}

// ClaimExtractor is optionally implemented by extractors that can also find
// claims and their evidence
type ClaimExtractor interface {
	ExtractClaims(ctx context.Context, text string) ([]evidence.Assertion, error)
}

// FrameExtractor is optionally implemented by extractors that name the
// narrative frames of a text
type FrameExtractor interface {
	ExtractFrames(ctx context.Context, text string) ([]string, error)
}

// EventExtractor is optionally implemented by extractors that name the
// events a text is part of
type EventExtractor interface {
	ExtractEvents(ctx context.Context, text string) ([]string, error)
}

// NoopExtractor finds nothing. Real NER runs outside this process and is
// plugged in through TextExtractor.
type NoopExtractor struct{}

// Extract implements TextExtractor
func (NoopExtractor) Extract(context.Context, string) ([]Entity, error) {
	return nil, nil
}

// ExtractorFunc adapts a function to TextExtractor
type ExtractorFunc func(ctx context.Context, text string) ([]Entity, error)

// Extract implements TextExtractor
func (f ExtractorFunc) Extract(ctx context.Context, text string) ([]Entity, error) {
	return f(ctx, text)
}

// UniqueNames trims names and keeps the first occurrence of each, dropping blanks
func UniqueNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// Dedupe normalizes entities and keeps the first occurrence of each
// (name, type) pair. Blank names are dropped and blank types become OTHER.
func Dedupe(entities []Entity) []Entity {
	seen := make(map[Entity]bool, len(entities))
	out := make([]Entity, 0, len(entities))
	for _, e := range entities {
		name, entityType, ok := identity.NormalizeEntity(e.Name, e.Type)
		if !ok {
			continue
		}
		k := Entity{Name: name, Type: entityType}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
