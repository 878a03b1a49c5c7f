package types

import (
	"strings"
	"time"
)

// FetchMode identifies how a page was retrieved.
type FetchMode string

const (
	ModeHTTP    FetchMode = "HTTP"
	ModeBrowser FetchMode = "BROWSER"
)

// DOMSignals are cheap structural hints computed from a fetched page.
type DOMSignals struct {
	LinkCount    int  `json:"linkCount"`
	ImageCount   int  `json:"imageCount"`
	HasJSONLD    bool `json:"hasJsonLd"`
	ScrollHeight int  `json:"scrollHeight"`
}

// PageObservation is the result of fetching one URL.
type PageObservation struct {
	// URL is the final URL after redirects.
	URL string

	// Status is the HTTP status code; 0 when unknown.
	Status int

	// HTML is the page body. Empty signals a fetch worth counting as noHtml.
	HTML string

	DOMSignals DOMSignals

	// Mode is the fetch mode that produced this observation.
	Mode FetchMode

	FetchDuration time.Duration
	FetchedAt     time.Time

	// RetryAfter is the server's Retry-After hint on a 429 or 503.
	RetryAfter time.Duration
}

// HasHTML reports whether the observation carries a non-blank body.
func (o *PageObservation) HasHTML() bool {
	return strings.TrimSpace(o.HTML) != ""
}
