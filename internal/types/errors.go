package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrInvalidURL      = errors.New("invalid URL")
	ErrEmptyGoal       = errors.New("extraction goal is empty")
	ErrNoCredentials   = errors.New("no LLM credentials configured")
	ErrNoProvider      = errors.New("no LLM provider configured")
	ErrInvalidStrategy = errors.New("invalid extraction strategy")
	ErrNoJSON          = errors.New("no JSON payload found")
)

// FetchError wraps transport failures. A non-2xx status is not a FetchError.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// ParseError wraps errors that occur during extraction.
type ParseError struct {
	URL      string
	Selector string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error for %s (selector=%q): %v", e.URL, e.Selector, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// LLMErrorCategory classifies provider failures.
type LLMErrorCategory string

const (
	LLMErrAuth       LLMErrorCategory = "auth"
	LLMErrRateLimit  LLMErrorCategory = "rate_limit"
	LLMErrServer     LLMErrorCategory = "server"
	LLMErrBadRequest LLMErrorCategory = "bad_request"
	LLMErrTimeout    LLMErrorCategory = "timeout"
	LLMErrTransport  LLMErrorCategory = "transport"
	LLMErrResponse   LLMErrorCategory = "response"
)

// LLMError wraps failures talking to an LLM provider.
type LLMError struct {
	Provider   string
	StatusCode int
	Category   LLMErrorCategory
	Retryable  bool
	Err        error
}

func (e *LLMError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("llm %s error (%s, status %d): %v", e.Provider, e.Category, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("llm %s error (%s): %v", e.Provider, e.Category, e.Err)
}

func (e *LLMError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur during persistence.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PipelineError wraps errors raised by a product middleware.
type PipelineError struct {
	Stage   string
	Product *Product
	Err     error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
