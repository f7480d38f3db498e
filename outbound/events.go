package outbound

import (
	"log/slog"
	"time"
)

// SendEvent describes one physical attempt crossing the pipeline, with
// gauge snapshots taken as the event fired.
type SendEvent struct {
	Endpoint  Endpoint
	MessageID string
	Attempt   int
	InFlight  int64
	Sleeping  int64
}

// RetryEvent describes a scheduled retry: the attempt that failed, the wait
// before the next one, and the fault that caused it.
type RetryEvent struct {
	Endpoint  Endpoint
	MessageID string
	Attempt   int
	Delay     time.Duration
	Err       error
}

// EventSink observes pipeline activity. Implementations must be safe for
// concurrent use; sends on many goroutines share one sink.
type EventSink interface {
	SendStarted(e SendEvent)
	SendSucceeded(e SendEvent)
	SendFailed(e SendEvent, err error)
	RetryScheduled(e RetryEvent)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) SendStarted(SendEvent)       {}
func (NopSink) SendSucceeded(SendEvent)     {}
func (NopSink) SendFailed(SendEvent, error) {}
func (NopSink) RetryScheduled(RetryEvent)   {}

// LogSink writes pipeline events through a structured logger: attempts at
// debug, retries and terminal failures at warn.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink builds a sink over logger, falling back to slog.Default.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) SendStarted(e SendEvent) {
	s.logger.Debug("send attempt started",
		"endpoint", e.Endpoint.String(),
		"messageId", e.MessageID,
		"attempt", e.Attempt,
		"inFlight", e.InFlight)
}

func (s *LogSink) SendSucceeded(e SendEvent) {
	s.logger.Debug("send succeeded",
		"endpoint", e.Endpoint.String(),
		"messageId", e.MessageID,
		"attempt", e.Attempt)
}

func (s *LogSink) SendFailed(e SendEvent, err error) {
	s.logger.Warn("send failed",
		"endpoint", e.Endpoint.String(),
		"messageId", e.MessageID,
		"attempt", e.Attempt,
		"error", err)
}

func (s *LogSink) RetryScheduled(e RetryEvent) {
	s.logger.Warn("send retry scheduled",
		"endpoint", e.Endpoint.String(),
		"messageId", e.MessageID,
		"attempt", e.Attempt,
		"delay", e.Delay,
		"error", e.Err)
}

// MultiSink fans events out to several sinks in order.
func MultiSink(sinks ...EventSink) EventSink {
	return multiSink(sinks)
}

type multiSink []EventSink

func (m multiSink) SendStarted(e SendEvent) {
	for _, s := range m {
		s.SendStarted(e)
	}
}

func (m multiSink) SendSucceeded(e SendEvent) {
	for _, s := range m {
		s.SendSucceeded(e)
	}
}

func (m multiSink) SendFailed(e SendEvent, err error) {
	for _, s := range m {
		s.SendFailed(e, err)
	}
}

func (m multiSink) RetryScheduled(e RetryEvent) {
	for _, s := range m {
		s.RetryScheduled(e)
	}
}
