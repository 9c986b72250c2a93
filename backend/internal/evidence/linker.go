// Package evidence writes SourceDoc nodes and links claims to them with one of
// the closed set of relation kinds.
package evidence

import (
	"context"
	"fmt"
	"strings"

	"github.com/izukuuuu/opinion-system-sub001/backend/internal/graph"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/identity"
	apperrors "github.com/izukuuuu/opinion-system-sub001/backend/pkg/errors"
	"github.com/izukuuuu/opinion-system-sub001/backend/pkg/logger"
	"go.uber.org/zap"
)

// Store is the graph surface the linker writes through
type Store interface {
	UpsertSourceDoc(ctx context.Context, doc graph.SourceDoc) error
	UpsertClaim(ctx context.Context, postID string, claim graph.Claim) error
	LinkClaimToSource(ctx context.Context, claimID, docID string, relation graph.Relation) (bool, error)
}

// Linker manages evidence documents and claim links
type Linker struct {
	store  Store
	logger *zap.Logger
}

// NewLinker creates an evidence linker
func NewLinker(store Store) *Linker {
	return &Linker{
		store:  store,
		logger: logger.Component(nil, "evidence"),
	}
}

// UpsertSourceDoc writes a document under its caller-supplied id
func (l *Linker) UpsertSourceDoc(ctx context.Context, doc graph.SourceDoc) error {
	doc.ID = strings.TrimSpace(doc.ID)
	if doc.ID == "" {
		return apperrors.NewBaseError(apperrors.ErrorTypeValidation, "source doc id is required", nil)
	}
	if doc.Type == "" {
		doc.Type = "Report"
	}
	if err := l.store.UpsertSourceDoc(ctx, doc); err != nil {
		return fmt.Errorf("failed to upsert source doc %s: %w", doc.ID, err)
	}
	return nil
}

// Link parses the relation kind and links an existing claim to an existing
// document. Kinds outside the closed set are rejected without writing.
// The boolean reports whether both endpoints were found.
func (l *Linker) Link(ctx context.Context, claimID, docID, kind string) (bool, error) {
	relation, err := graph.ParseRelation(kind)
	if err != nil {
		return false, err
	}
	return l.LinkRelation(ctx, claimID, docID, relation)
}

// LinkRelation links a claim to a document with an already parsed relation
func (l *Linker) LinkRelation(ctx context.Context, claimID, docID string, relation graph.Relation) (bool, error) {
	if strings.TrimSpace(claimID) == "" || strings.TrimSpace(docID) == "" {
		return false, apperrors.NewBaseError(apperrors.ErrorTypeValidation, "claim id and source doc id are required", nil)
	}
	linked, err := l.store.LinkClaimToSource(ctx, claimID, docID, relation)
	if err != nil {
		return false, fmt.Errorf("failed to link claim %s: %w", claimID, err)
	}
	if !linked {
		l.logger.Debug("Claim link skipped, endpoint missing",
			zap.String("claim_id", claimID),
			zap.String("doc_id", docID),
		)
	}
	return linked, nil
}

// Assertion is a claim made by a post, optionally backed by evidence
type Assertion struct {
	Content  string `json:"content"`
	Evidence string `json:"evidence,omitempty"`
	Source   string `json:"source,omitempty"`
	// Relation defaults to SUPPORTED_BY when blank
	Relation string `json:"relation,omitempty"`
}

// Assert writes a claim with its ASSERTS edge from postID and, when evidence
// or a source is given, an evidence document linked to the claim. The
// relation kind is validated before anything is written. Returns the claim id.
func (l *Linker) Assert(ctx context.Context, postID, topic string, a Assertion) (string, error) {
	content := strings.TrimSpace(a.Content)
	if content == "" {
		return "", apperrors.NewBaseError(apperrors.ErrorTypeValidation, "claim content is required", nil)
	}

	relation := graph.SupportedBy
	if kind := strings.TrimSpace(a.Relation); kind != "" {
		parsed, err := graph.ParseRelation(kind)
		if err != nil {
			return "", err
		}
		relation = parsed
	}

	claim := graph.Claim{ID: identity.ClaimID(content), Content: content, Topic: topic}
	if err := l.store.UpsertClaim(ctx, postID, claim); err != nil {
		return "", fmt.Errorf("failed to upsert claim: %w", err)
	}

	if a.Evidence == "" && a.Source == "" {
		return claim.ID, nil
	}

	docContent := fmt.Sprintf("Evidence: %s\nSource: %s", a.Evidence, a.Source)
	doc := graph.SourceDoc{
		ID:      identity.SourceDocID(docContent),
		Title:   "Extracted Evidence",
		Content: docContent,
		Type:    "Evidence",
	}
	if err := l.UpsertSourceDoc(ctx, doc); err != nil {
		return "", err
	}
	if _, err := l.LinkRelation(ctx, claim.ID, doc.ID, relation); err != nil {
		return "", err
	}
	return claim.ID, nil
}
