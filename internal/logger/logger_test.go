package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    logrus.Level
		wantErr bool
	}{
		{"trace", logrus.TraceLevel, false},
		{"debug", logrus.DebugLevel, false},
		{"info", logrus.InfoLevel, false},
		{"warn", logrus.WarnLevel, false},
		{"warning", logrus.WarnLevel, false},
		{"error", logrus.ErrorLevel, false},
		{"", logrus.InfoLevel, false}, // empty defaults to info
		{"TRACE", logrus.TraceLevel, false},
		{"invalid", 0, true},
		{"fatal", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseLevel(%q) should return error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLevel(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestConfigure_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	if err := Configure("debug", "json"); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	defer func() {
		SetOutput(os.Stderr)
		_ = Configure("info", "text")
	}()

	New("state").Debug("trust updated")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected a JSON log line, got %q: %v", buf.String(), err)
	}
	if line["component"] != "state" {
		t.Errorf("expected component=state, got %v", line["component"])
	}
	if line["msg"] != "trust updated" {
		t.Errorf("expected msg 'trust updated', got %v", line["msg"])
	}
}

func TestConfigure_Invalid(t *testing.T) {
	if err := Configure("loud", "text"); err == nil {
		t.Error("expected error for unknown level")
	}
	if err := Configure("info", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}
