package outcome

import (
	apperrors "github.com/izukuuuu/opinion-system-sub001/backend/pkg/errors"
)

// Status tags the result of a top-level operation
type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

// Counter keys reported on ok outcomes
const (
	Posts        = "posts"
	Chunks       = "chunks"
	Mentions     = "mentions"
	Claims       = "claims"
	Frames       = "frames"
	Events       = "events"
	Omitted      = "omitted"
	Tables       = "tables"
	SkippedRows  = "skipped_rows"
	FailedRows   = "failed_rows"
	FailedTables = "failed_tables"
	Micro        = "micro_topics"
	Macro        = "macro_topics"
	Hierarchy    = "hierarchy_links"
	PostLinks    = "post_links"
	Cleared      = "cleared"
	Applied      = "applied"
	Existing     = "existing"
	Rejected     = "rejected"
	Platforms    = "platforms"
)

// Outcome is the caller-facing result of a sync step. Expected conditions
// such as an unconfigured backend are reported here rather than raised.
type Outcome struct {
	Status   Status         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Counters map[string]int `json:"counters,omitempty"`
	Err      error          `json:"-"`
}

// OK builds a successful outcome carrying counters
func OK(message string, counters map[string]int) Outcome {
	if counters == nil {
		counters = map[string]int{}
	}
	return Outcome{Status: StatusOK, Message: message, Counters: counters}
}

// Skipped builds a non-fatal skip outcome
func Skipped(reason string) Outcome {
	return Outcome{Status: StatusSkipped, Message: reason}
}

// Failed builds an error outcome
func Failed(err error) Outcome {
	return Outcome{Status: StatusError, Message: err.Error(), Err: err}
}

// FromError maps the error taxonomy onto an outcome: a missing configuration
// is a skip, everything else is an error. A nil error yields an empty ok.
func FromError(err error) Outcome {
	switch {
	case err == nil:
		return OK("", nil)
	case apperrors.IsConfigMissing(err):
		o := Skipped(err.Error())
		o.Err = err
		return o
	default:
		return Failed(err)
	}
}

// IsOK reports whether the operation completed
func (o Outcome) IsOK() bool {
	return o.Status == StatusOK
}

// Count returns a counter, zero when absent
func (o Outcome) Count(key string) int {
	return o.Counters[key]
}
