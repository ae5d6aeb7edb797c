package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/shortontech/featurefp/internal/event"
	"github.com/shortontech/featurefp/internal/report"
	"github.com/shortontech/featurefp/pkg/logger"
)

func sampleEvent() event.Event {
	return event.NewFeature(report.FeatureReport{
		Version:    "2023-05-11_feature",
		Features:   "10",
		VisitedURL: "https://shop.test/",
	})
}

type stubSink struct {
	name string
	err  error
	got  []event.Event
}

func (s *stubSink) Start(context.Context) error { return nil }
func (s *stubSink) Close() error                { return nil }
func (s *stubSink) Name() string                { return s.name }
func (s *stubSink) Enqueue(e event.Event) error {
	if s.err != nil {
		return s.err
	}
	s.got = append(s.got, e)
	return nil
}

type stubRecorder struct {
	ingested map[string]int
	errors   map[string]int
}

func (r *stubRecorder) IncrementEventsIngested(sink string) { r.ingested[sink]++ }
func (r *stubRecorder) IncrementSinkErrors(sink, errorType string) {
	r.errors[sink+"/"+errorType]++
}

func TestLogSinkWritesEvent(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSink(logger.NewWithOutput("info", "json", &buf))
	if s.Name() != "log" {
		t.Errorf("Name() = %q", s.Name())
	}
	e := sampleEvent()
	if err := s.Enqueue(e); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not json: %v", err)
	}
	if line["event_id"] != e.EventID || line["method"] != "feature" {
		t.Errorf("unexpected fields: %v", line)
	}
	if !strings.Contains(line["payload"].(string), `["features","10"]`) {
		t.Errorf("payload missing report: %v", line["payload"])
	}
}

func TestFanOutIsolatesFailingSink(t *testing.T) {
	bad := &stubSink{name: "kafka", err: errors.New("down")}
	good := &stubSink{name: "log"}
	rec := &stubRecorder{ingested: map[string]int{}, errors: map[string]int{}}

	emit := FanOut([]Sink{bad, good}, rec, logger.Nop())
	emit(sampleEvent())
	emit(sampleEvent())

	if len(good.got) != 2 {
		t.Errorf("healthy sink got %d events, want 2", len(good.got))
	}
	if rec.ingested["log"] != 2 || rec.errors["kafka/enqueue"] != 2 {
		t.Errorf("recorder = %+v", rec)
	}
}

func TestFromOutputs(t *testing.T) {
	sinks, err := FromOutputs([]string{"log", "kafka"}, logger.Nop())
	if err != nil {
		t.Fatalf("FromOutputs: %v", err)
	}
	if len(sinks) != 2 || sinks[0].Name() != "log" || sinks[1].Name() != "kafka" {
		t.Errorf("unexpected sinks: %v", sinks)
	}
	if _, err := FromOutputs([]string{"postgres"}, logger.Nop()); err == nil {
		t.Error("expected error for unknown output")
	}
}

func TestNewKafkaSinkFromEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "b1:9092, b2:9092")
	t.Setenv("KAFKA_TOPIC", "")
	t.Setenv("KAFKA_SASL_MECHANISM", "PLAIN")
	t.Setenv("KAFKA_SASL_USER", "u")
	t.Setenv("KAFKA_SASL_PASSWORD", "p")
	t.Setenv("KAFKA_TLS_CA", "/etc/ca.pem")
	t.Setenv("KAFKA_TLS_SKIP_VERIFY", "yes")

	s := NewKafkaSinkFromEnv(logger.Nop())
	if s.config.Topic != "featurefp.reports" {
		t.Errorf("topic = %q", s.config.Topic)
	}
	cm := s.ConfigMap()
	checks := map[string]any{
		"bootstrap.servers":                     "b1:9092,b2:9092",
		"security.protocol":                     "SASL_SSL",
		"sasl.mechanism":                        "PLAIN",
		"sasl.username":                         "u",
		"ssl.ca.location":                       "/etc/ca.pem",
		"ssl.endpoint.identification.algorithm": "none",
	}
	for k, want := range checks {
		if cm[k] != want {
			t.Errorf("config[%s] = %v, want %v", k, cm[k], want)
		}
	}
}

func TestKafkaTLSWithoutSASL(t *testing.T) {
	s := NewKafkaSink([]string{"b:9092"}, "t", logger.Nop())
	s.config.TLSCAPath = "/ca"
	if got := s.ConfigMap()["security.protocol"]; got != "SSL" {
		t.Errorf("security.protocol = %v", got)
	}
}

func TestKafkaMessage(t *testing.T) {
	s := NewKafkaSink([]string{"localhost:9092"}, "reports", logger.Nop())
	e := sampleEvent()
	msg, err := s.Message(e)
	if err != nil {
		t.Fatalf("Message: %v", err)
	}
	if string(msg.Key) != e.EventID || *msg.TopicPartition.Topic != "reports" {
		t.Errorf("unexpected message routing: key=%s", msg.Key)
	}
	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["report_method"] != "feature" || headers["catalog_version"] != "2023-05-11_feature" || headers["schema"] != reportSchema {
		t.Errorf("headers = %v", headers)
	}
}

func TestKafkaEnqueueWithoutProducer(t *testing.T) {
	s := NewKafkaSink([]string{"localhost:9092"}, "reports", logger.Nop())
	if err := s.Enqueue(sampleEvent()); err == nil {
		t.Error("Enqueue should fail when producer is not initialized")
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close without producer: %v", err)
	}
}
