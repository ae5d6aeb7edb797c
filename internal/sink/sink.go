package sink

import (
	"context"
	"fmt"

	"github.com/shortontech/featurefp/internal/event"
	"github.com/shortontech/featurefp/pkg/logger"
)

// Sink receives accepted report events.
type Sink interface {
	Start(ctx context.Context) error
	Enqueue(e event.Event) error
	Close() error
	Name() string // Returns the sink name for metrics and logging
}

// Recorder is told about every enqueue outcome.
type Recorder interface {
	IncrementEventsIngested(sink string)
	IncrementSinkErrors(sink, errorType string)
}

// FromOutputs builds the sinks named in outputs. Unknown names are an error.
func FromOutputs(outputs []string, log logger.Logger) ([]Sink, error) {
	var sinks []Sink
	for _, name := range outputs {
		switch name {
		case "log":
			sinks = append(sinks, NewLogSink(log))
		case "kafka":
			sinks = append(sinks, NewKafkaSinkFromEnv(log))
		default:
			return nil, fmt.Errorf("unknown output %q", name)
		}
	}
	return sinks, nil
}

// FanOut returns an emitter that enqueues to every sink. A failing sink is
// logged and counted; the others still receive the event.
func FanOut(sinks []Sink, rec Recorder, log logger.Logger) func(event.Event) {
	return func(e event.Event) {
		for _, s := range sinks {
			if err := s.Enqueue(e); err != nil {
				log.Error("sink: enqueue failed",
					logger.F("sink", s.Name()), logger.F("event_id", e.EventID), logger.Err(err))
				if rec != nil {
					rec.IncrementSinkErrors(s.Name(), "enqueue")
				}
				continue
			}
			if rec != nil {
				rec.IncrementEventsIngested(s.Name())
			}
		}
	}
}
