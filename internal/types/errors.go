package types

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failure. Kinds are stable strings: they appear in scrape
// logs, telemetry tags, and batch error lists.
type Kind string

const (
	KindTransientNetwork Kind = "transient_network"
	KindParse            Kind = "parse_error"
	KindValidation       Kind = "validation_error"
	KindItemRender       Kind = "item_render_error"
	KindBatchDatabase    Kind = "batch_database_error"
	KindCommit           Kind = "commit_error"
	KindPartialFailure   Kind = "partial_failure"
	KindZeroItems        Kind = "zero_items"
	KindScrapeTimeout    Kind = "scrape_timeout"
	KindFatalSetup       Kind = "fatal_setup"
)

// Sentinel errors for common failure modes.
var (
	ErrMaxRetries      = errors.New("max retries exceeded")
	ErrEmptyResponse   = errors.New("empty response body")
	ErrInvalidURL      = errors.New("invalid URL")
	ErrScrapeStopped   = errors.New("scrape has been stopped")
	ErrUnknownAdapter  = errors.New("no adapter registered for organization")
	ErrOrgNotFound     = errors.New("organization not found")
	ErrBreakerOpen     = errors.New("circuit breaker open for host")
	ErrBodyTooLarge    = errors.New("response body exceeds size limit")
	ErrNoOrganizations = errors.New("no enabled organizations")
)

// FetchError wraps errors that occur while fetching a source page.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
	RetryAfter time.Duration // populated from Retry-After on HTTP 429
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// ParseError wraps item-level extraction failures inside an adapter.
type ParseError struct {
	URL      string
	Selector string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Selector != "" {
		return fmt.Sprintf("parse error for %s (selector=%q): %v", e.URL, e.Selector, e.Err)
	}
	return fmt.Sprintf("parse error for %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError marks a discovered item missing a required field. The item
// is dropped; the scrape continues.
type ValidationError struct {
	ExternalID string
	Field      string
}

func (e *ValidationError) Error() string {
	if e.ExternalID == "" {
		return fmt.Sprintf("validation error: missing %s", e.Field)
	}
	return fmt.Sprintf("validation error for %q: missing %s", e.ExternalID, e.Field)
}

// DatabaseError wraps a failed statement or transaction in the store layer.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database error (%s): %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// SetupError is a fatal startup failure: missing database config, unreadable
// organization configs. The orchestrator exits non-zero before any scrape.
type SetupError struct {
	Stage string
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup failed (%s): %v", e.Stage, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// ScrapeError carries a failed scrape's classification up to the
// orchestrator. One scrape's error never propagates into another.
type ScrapeError struct {
	Kind     Kind
	ConfigID string
	Err      error
}

func (e *ScrapeError) Error() string {
	return fmt.Sprintf("scrape %s failed (%s): %v", e.ConfigID, e.Kind, e.Err)
}

func (e *ScrapeError) Unwrap() error { return e.Err }

// KindOf extracts the failure kind from an error chain, defaulting to
// transient_network for plain fetch errors and failure-shaped unknowns.
func KindOf(err error) Kind {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Kind
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return KindParse
	}
	var de *DatabaseError
	if errors.As(err, &de) {
		return KindBatchDatabase
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return KindTransientNetwork
	}
	var sue *SetupError
	if errors.As(err, &sue) {
		return KindFatalSetup
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindScrapeTimeout
	}
	return KindTransientNetwork
}
