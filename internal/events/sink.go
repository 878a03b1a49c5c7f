package events

import (
	"log/slog"
)

// Sink receives events. Emit must not block the caller for long; sinks
// that do I/O queue internally.
type Sink interface {
	Emit(e Event)
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// FuncSink adapts a function to Sink.
type FuncSink func(Event)

func (f FuncSink) Emit(e Event) { f(e) }

// MultiSink fans out to several sinks. A panicking sink does not stop
// delivery to the others.
type MultiSink struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewMultiSink creates a fan-out sink, skipping nil entries.
func NewMultiSink(logger *slog.Logger, sinks ...Sink) *MultiSink {
	m := &MultiSink{logger: logger}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *MultiSink) Emit(e Event) {
	for _, s := range m.sinks {
		SafeEmit(m.logger, s, e)
	}
}

// SafeEmit delivers e to s and recovers a panic raised by the sink.
func SafeEmit(logger *slog.Logger, s Sink, e Event) {
	if s == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil && logger != nil {
			logger.Warn("event sink panicked", "kind", e.Kind(), "panic", r)
		}
	}()
	s.Emit(e)
}

// LogSink writes events to a structured logger. Run-level events log at
// info, page-level events at debug.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("component", "events")}
}

func (l *LogSink) Emit(e Event) {
	meta := e.Base()
	log := l.logger.With("run_id", meta.RunID, "event", string(e.Kind()))
	switch ev := e.(type) {
	case RunStarted:
		log.Info("run started", "url", ev.StartURL, "goal", ev.Goal, "max_pages", ev.MaxPages)
	case PageFetched:
		if ev.Error != "" {
			log.Warn("page fetch failed", "url", ev.URL, "error", ev.Error)
			return
		}
		log.Debug("page fetched", "url", ev.FinalURL, "status", ev.Status, "mode", ev.Mode, "bytes", ev.Bytes, "duration_ms", ev.DurationMs)
	case PageDecided:
		log.Debug("page decided", "url", ev.URL, "actions", ev.Actions, "parse", ev.ParseStrategy, "fallback", ev.Fallback, "reason", ev.Reason)
	case PageExtracted:
		log.Debug("page extracted", "url", ev.URL, "extractor", ev.Extractor, "candidates", ev.Candidates, "added", ev.Added, "total", ev.Total)
	case PaginationFound:
		log.Debug("pagination found", "url", ev.URL, "links", len(ev.Links), "enqueued", ev.Enqueued)
	case RunCompleted:
		s := ev.Summary
		log.Info("run completed",
			"stop_reason", s.StopReason,
			"products", s.TotalProducts,
			"pages", s.PagesProcessed,
			"duration_ms", s.DurationMs,
			"success_rate", s.SuccessRate,
		)
	}
}
