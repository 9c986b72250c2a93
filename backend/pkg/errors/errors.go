package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeConfig represents missing or invalid configuration
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeGraph represents graph store connectivity and query errors
	ErrorTypeGraph ErrorType = "graph"
	// ErrorTypeSource represents relational source errors
	ErrorTypeSource ErrorType = "source"
	// ErrorTypeArtifact represents missing upstream artifacts (channel tables, clustering files)
	ErrorTypeArtifact ErrorType = "artifact"
	// ErrorTypeEnrichment represents per-row enrichment failures
	ErrorTypeEnrichment ErrorType = "enrichment"
	// ErrorTypeValidation represents invalid caller input
	ErrorTypeValidation ErrorType = "validation"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// Category reports the error type; typed errors embedding *BaseError inherit it.
func (e *BaseError) Category() ErrorType {
	return e.Type
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Config Errors

// ErrConfigMissingRequired is returned when a required config value is missing.
// Callers report it as "skipped" rather than as a failure.
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeValidation, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// Graph Errors

// ErrGraphConnectionFailed is returned when the Neo4j connection cannot be established
type ErrGraphConnectionFailed struct {
	*BaseError
	URI string
}

func NewGraphConnectionFailed(uri string, err error) *ErrGraphConnectionFailed {
	return &ErrGraphConnectionFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("failed to connect to Neo4j: %s", uri), err),
		URI:       uri,
	}
}

// ErrGraphQueryFailed is returned when a graph write or read fails
type ErrGraphQueryFailed struct {
	*BaseError
	Operation string
}

func NewGraphQueryFailed(operation string, err error) *ErrGraphQueryFailed {
	return &ErrGraphQueryFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("query failed: %s", operation), err),
		Operation: operation,
	}
}

// Source Errors

// ErrSourceConnectionFailed is returned when the relational source is unreachable
type ErrSourceConnectionFailed struct {
	*BaseError
	Database string
}

func NewSourceConnectionFailed(database string, err error) *ErrSourceConnectionFailed {
	return &ErrSourceConnectionFailed{
		BaseError: NewBaseError(ErrorTypeSource, fmt.Sprintf("failed to connect to relational source: %s", database), err),
		Database:  database,
	}
}

// ErrSourceReadFailed is returned when a channel table cannot be read
type ErrSourceReadFailed struct {
	*BaseError
	Table string
}

func NewSourceReadFailed(table string, err error) *ErrSourceReadFailed {
	return &ErrSourceReadFailed{
		BaseError: NewBaseError(ErrorTypeSource, fmt.Sprintf("failed to read table: %s", table), err),
		Table:     table,
	}
}

// Artifact Errors

// ErrArtifactMissing is returned when upstream outputs (channel tables, clustering files) are absent
type ErrArtifactMissing struct {
	*BaseError
	Path string
}

func NewArtifactMissing(path, what string) *ErrArtifactMissing {
	return &ErrArtifactMissing{
		BaseError: NewBaseError(ErrorTypeArtifact, fmt.Sprintf("%s not found: %s", what, path), nil),
		Path:      path,
	}
}

// ErrArtifactInvalid is returned when an upstream artifact cannot be decoded
type ErrArtifactInvalid struct {
	*BaseError
	Path string
}

func NewArtifactInvalid(path string, err error) *ErrArtifactInvalid {
	return &ErrArtifactInvalid{
		BaseError: NewBaseError(ErrorTypeArtifact, fmt.Sprintf("invalid artifact: %s", path), err),
		Path:      path,
	}
}

// Enrichment Errors

// ErrEnrichmentFailed wraps a per-row enrichment failure. It never aborts the batch.
type ErrEnrichmentFailed struct {
	*BaseError
	Stage  string
	PostID string
}

func NewEnrichmentFailed(stage, postID string, err error) *ErrEnrichmentFailed {
	return &ErrEnrichmentFailed{
		BaseError: NewBaseError(ErrorTypeEnrichment, fmt.Sprintf("%s enrichment failed for %s", stage, postID), err),
		Stage:     stage,
		PostID:    postID,
	}
}

// Validation Errors

// ErrInvalidRelation is returned when a claim relation kind is outside the closed set
type ErrInvalidRelation struct {
	*BaseError
	Value string
}

func NewInvalidRelation(value string) *ErrInvalidRelation {
	return &ErrInvalidRelation{
		BaseError: NewBaseError(ErrorTypeValidation, fmt.Sprintf("invalid relation kind: %q", value), nil),
		Value:     value,
	}
}

// Helper functions

type categorized interface {
	Category() ErrorType
}

// IsErrorType checks if an error, or any error it wraps, is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		if c, ok := err.(categorized); ok && c.Category() == errType {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// IsConfigMissing reports whether err means the backend is simply not configured
func IsConfigMissing(err error) bool {
	var missing *ErrConfigMissingRequired
	return stderrors.As(err, &missing)
}

// IsSchemaConflict reports whether a schema statement failed only because the rule already exists
func IsSchemaConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "EquivalentSchemaRuleAlreadyExists") ||
		strings.Contains(strings.ToLower(msg), "already exists")
}
