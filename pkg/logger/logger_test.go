package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestJSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithOutput("debug", "json", &buf)
	l.WithField("component", "reporter").Info("delivery failed", F("url", "https://a.test/"), Err(errors.New("boom")))

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not json: %v (%q)", err, buf.String())
	}
	if line["msg"] != "delivery failed" {
		t.Errorf("msg = %v", line["msg"])
	}
	if line["component"] != "reporter" || line["url"] != "https://a.test/" || line["error"] != "boom" {
		t.Errorf("missing fields: %v", line)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithOutput("warn", "text", &buf)
	l.Info("hidden")
	l.Warn("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("info logged at warn level: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("warn not logged: %q", buf.String())
	}
}

func TestUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithOutput("chatty", "text", &buf)
	l.Debug("hidden")
	l.Info("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestSetDefault(t *testing.T) {
	prev := Default()
	defer SetDefault(prev)

	var buf bytes.Buffer
	SetDefault(NewWithOutput("info", "text", &buf))
	Info("through default")
	if !strings.Contains(buf.String(), "through default") {
		t.Errorf("default logger not used: %q", buf.String())
	}
}
