package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shortontech/featurefp/internal/event"
	"github.com/shortontech/featurefp/pkg/logger"
)

// LogSink writes each event as one log line.
type LogSink struct {
	log logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	if log == nil {
		log = logger.Default()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Start(ctx context.Context) error { return nil }

func (s *LogSink) Enqueue(e event.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}
	s.log.Info("event",
		logger.F("event_id", e.EventID),
		logger.F("method", e.Method),
		logger.F("payload", string(b)))
	return nil
}

func (s *LogSink) Close() error { return nil }

func (s *LogSink) Name() string { return "log" }
