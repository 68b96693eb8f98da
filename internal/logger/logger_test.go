package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func reset() {
	SetVerbose(false)
	SetJSON(false)
	SetOutput(os.Stderr)
}

func TestSetVerbose(t *testing.T) {
	defer reset()

	SetVerbose(false)
	if IsVerbose() {
		t.Error("expected verbose to be false initially")
	}

	SetVerbose(true)
	if !IsVerbose() {
		t.Error("expected verbose to be true after SetVerbose(true)")
	}

	SetVerbose(false)
	if IsVerbose() {
		t.Error("expected verbose to be false after SetVerbose(false)")
	}
}

func TestDebug_WhenVerbose(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(true)

	Debug("test message %s", "arg")

	if got := buf.String(); got != "[DEBUG] test message arg\n" {
		t.Errorf("unexpected output: %q", got)
	}
}

func TestDebug_WhenNotVerbose(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(false)

	Debug("test message")
	Info("info message")
	Section("Retrieval")

	if buf.Len() > 0 {
		t.Errorf("expected no output when verbose is disabled, got %q", buf.String())
	}
}

func TestSection(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(true)

	Section("Retrieval")

	if got := buf.String(); got != "[INFO] === Retrieval ===\n" {
		t.Errorf("unexpected output: %q", got)
	}
}

func TestWarn_AlwaysWritten(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(false)

	Warn("index unavailable: %s", "closed")
	Error("backend exhausted")

	got := buf.String()
	if !strings.Contains(got, "[WARN] index unavailable: closed") {
		t.Errorf("missing warning in %q", got)
	}
	if !strings.Contains(got, "[ERROR] backend exhausted") {
		t.Errorf("missing error in %q", got)
	}
}

func TestSetJSON(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(true)
	SetJSON(true)

	Info("retrieved %d documents", 3)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %q: %v", buf.String(), err)
	}
	if rec["level"] != "info" {
		t.Errorf("unexpected level: %v", rec["level"])
	}
	if rec["msg"] != "retrieved 3 documents" {
		t.Errorf("unexpected message: %v", rec["msg"])
	}
}

func TestL_StructuredFields(t *testing.T) {
	defer reset()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetJSON(true)

	L().Warn("backend exhausted", zap.String("backend", "primary"), zap.Int("attempts", 3))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	if rec["backend"] != "primary" || rec["attempts"] != float64(3) {
		t.Errorf("missing structured fields: %v", rec)
	}

	buf.Reset()
	L().Debug("hidden", zap.String("backend", "primary"))
	if buf.Len() != 0 {
		t.Errorf("debug written without verbose: %q", buf.String())
	}
}

func TestSync(t *testing.T) {
	defer reset()
	var buf bytes.Buffer
	SetOutput(&buf)

	Warn("before sync")
	Sync()

	if !strings.Contains(buf.String(), "before sync") {
		t.Errorf("expected record before sync, got %q", buf.String())
	}
}
