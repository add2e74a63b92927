package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name  string
		level string
		env   string
	}{
		{"development text format", "debug", "development"},
		{"production json format", "info", "production"},
		{"invalid level falls back to info", "nope", "development"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(tt.level, tt.env)
			if l == nil {
				t.Fatal("New() returned nil")
			}
			l.Info("probe")
		})
	}
}

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("debug", &buf)

	l.Infof("collected %d observations", 4)

	out := buf.String()
	if !strings.Contains(out, "collected 4 observations") {
		t.Errorf("output missing message: %s", out)
	}
	if !strings.Contains(out, `"level"`) {
		t.Errorf("output not JSON formatted: %s", out)
	}
}

func TestWithField(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("info", &buf)

	l.WithField("run_id", "abc-123").Warn("lock already held")

	out := buf.String()
	if !strings.Contains(out, "abc-123") {
		t.Errorf("output missing field value: %s", out)
	}
	if !strings.Contains(out, "lock already held") {
		t.Errorf("output missing message: %s", out)
	}
}

func TestWithField_Chaining(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("info", &buf)

	l.WithField("job", "aggregate").WithField("date", "2026-08-20").Info("done")

	out := buf.String()
	if !strings.Contains(out, "aggregate") || !strings.Contains(out, "2026-08-20") {
		t.Errorf("chained fields missing: %s", out)
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Info("silent")
	l.Errorf("also silent: %d", 1)
}
