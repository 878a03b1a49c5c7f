// Package events defines the typed lifecycle events a crawl run emits and
// the sinks that receive them.
package events

import (
	"time"

	"github.com/IshaanNene/ShelfStalk/internal/types"
)

// Kind names an event variant.
type Kind string

const (
	KindRunStarted      Kind = "run.started"
	KindPageFetched     Kind = "page.fetched"
	KindPageDecided     Kind = "page.decided"
	KindPageExtracted   Kind = "page.extracted"
	KindPaginationFound Kind = "pagination.found"
	KindRunCompleted    Kind = "run.completed"
)

// Meta is carried by every event. RunID correlates all events of one run.
type Meta struct {
	RunID string    `json:"runId"`
	Time  time.Time `json:"time"`
}

// Base returns the event's metadata.
func (m Meta) Base() Meta { return m }

// NewMeta stamps metadata for runID with the current time.
func NewMeta(runID string) Meta {
	return Meta{RunID: runID, Time: time.Now().UTC()}
}

// Event is implemented only by the variants in this package.
type Event interface {
	Kind() Kind
	Base() Meta
}

// RunStarted is emitted once before the first fetch.
type RunStarted struct {
	Meta
	StartURL string `json:"startUrl"`
	Goal     string `json:"goal"`
	MaxPages int    `json:"maxPages"`
}

// PageFetched is emitted after every fetch attempt, failed or not.
type PageFetched struct {
	Meta
	URL        string          `json:"url"`
	FinalURL   string          `json:"finalUrl,omitempty"`
	Status     int             `json:"status,omitempty"`
	Mode       types.FetchMode `json:"mode"`
	Bytes      int             `json:"bytes"`
	DurationMs int64           `json:"durationMs"`
	Error      string          `json:"error,omitempty"`
}

// PageDecided is emitted once the decision engine has answered.
type PageDecided struct {
	Meta
	URL           string              `json:"url"`
	Actions       int                 `json:"actions"`
	Mode          types.FetchMode     `json:"mode,omitempty"`
	ParseStrategy types.ParseStrategy `json:"parseStrategy,omitempty"`
	Fallback      bool                `json:"fallback"`
	Reason        string              `json:"reason,omitempty"`
	Error         string              `json:"error,omitempty"`
}

// PageExtracted reports the outcome of one action's extraction chain.
type PageExtracted struct {
	Meta
	URL        string `json:"url"`
	Extractor  string `json:"extractor,omitempty"`
	Candidates int    `json:"candidates"`
	Added      int    `json:"added"`
	Total      int    `json:"total"`
}

// PaginationFound reports next-page links discovered on a page.
type PaginationFound struct {
	Meta
	URL      string   `json:"url"`
	Links    []string `json:"links"`
	Enqueued int      `json:"enqueued"`
}

// RunCompleted is emitted on every exit path with the final summary.
type RunCompleted struct {
	Meta
	Summary types.RunSummary `json:"summary"`
}

func (RunStarted) Kind() Kind      { return KindRunStarted }
func (PageFetched) Kind() Kind     { return KindPageFetched }
func (PageDecided) Kind() Kind     { return KindPageDecided }
func (PageExtracted) Kind() Kind   { return KindPageExtracted }
func (PaginationFound) Kind() Kind { return KindPaginationFound }
func (RunCompleted) Kind() Kind    { return KindRunCompleted }
