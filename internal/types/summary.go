package types

import "time"

// StopReason explains why a run ended.
type StopReason string

const (
	StopMinProducts StopReason = "min_products_reached"
	StopNoMorePages StopReason = "no_more_pages"
	StopMaxPages    StopReason = "max_pages_reached"
	StopCancelled   StopReason = "cancelled"
)

// FailureCounters is the per-run failure tally.
type FailureCounters struct {
	HTTPErrors    int `json:"httpErrors"    bson:"http_errors"`
	NoHTML        int `json:"noHtml"        bson:"no_html"`
	LLMErrors     int `json:"llmErrors"     bson:"llm_errors"`
	ParsingErrors int `json:"parsingErrors" bson:"parsing_errors"`
	EmptyResults  int `json:"emptyResults"  bson:"empty_results"`
	TotalPages    int `json:"totalPages"    bson:"total_pages"`
}

// RunSummary is produced once at the end of every run.
type RunSummary struct {
	RunID           string          `json:"runId"           bson:"run_id"`
	DurationMs      int64           `json:"durationMs"      bson:"duration_ms"`
	TotalProducts   int             `json:"totalProducts"   bson:"total_products"`
	PagesProcessed  int             `json:"pagesProcessed"  bson:"pages_processed"`
	StopReason      StopReason      `json:"stopReason"      bson:"stop_reason"`
	FailureCounters FailureCounters `json:"failureCounters" bson:"failure_counters"`
	SuccessRate     float64         `json:"successRate"     bson:"success_rate"`
	StartedAt       time.Time       `json:"startedAt"       bson:"started_at"`
}

// SuccessRate is the share of attempted pages that were neither
// HTTP-failed, HTML-empty, nor LLM-failed. Zero pages yields 0.
func (c FailureCounters) SuccessRate() float64 {
	if c.TotalPages == 0 {
		return 0
	}
	failed := c.HTTPErrors + c.NoHTML + c.LLMErrors
	ok := c.TotalPages - failed
	if ok < 0 {
		ok = 0
	}
	return float64(ok) / float64(c.TotalPages)
}
