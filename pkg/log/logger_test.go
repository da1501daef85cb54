// Structured logging tests
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

// capture returns a DEBUG-level logger writing uncolored output to a buffer.
func capture(prefix string, format OutputFormat) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := New(prefix)
	l.SetWriter(&buf)
	l.SetColorize(false)
	l.SetFormat(format)
	l.SetLevel(DEBUG)
	return l, &buf
}

func decode(t *testing.T, buf *bytes.Buffer) JSONLogEntry {
	t.Helper()
	var entry JSONLogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not one JSON entry: %v\n%s", err, buf.String())
	}
	return entry
}

func TestTextLine(t *testing.T) {
	l, buf := capture("pipeline", FormatText)
	l.WithFields(Fields{"samples": 5, "distance": 2.5}).Info("resampled path")

	line := buf.String()
	for _, want := range []string{
		"[INFO ] pipeline: resampled path",
		"{distance=2.5, samples=5}",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("missing %q in %q", want, line)
		}
	}
	if !strings.HasSuffix(line, "\n") || strings.Count(line, "\n") != 1 {
		t.Errorf("expected exactly one line, got %q", line)
	}
}

func TestPrintfArgs(t *testing.T) {
	l, buf := capture("cli", FormatText)
	l.Warn("%d axis values were skipped", 3)
	if !strings.Contains(buf.String(), "[WARN ] cli: 3 axis values were skipped") {
		t.Errorf("unexpected output %q", buf.String())
	}

	buf.Reset()
	l.WithField("file", "part.gcode").Warnf("%s shutdown", "preview")
	if !strings.Contains(buf.String(), "preview shutdown {file=part.gcode}") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	emitters := map[LogLevel]func(*Logger){
		DEBUG: func(l *Logger) { l.Debug("mapped frames") },
		INFO:  func(l *Logger) { l.Info("parsed program") },
		WARN:  func(l *Logger) { l.Warn("skipped unparsable axis value") },
		ERROR: func(l *Logger) { l.Error("pipeline failed") },
	}
	for _, floor := range []LogLevel{DEBUG, INFO, WARN, ERROR} {
		t.Run(floor.String(), func(t *testing.T) {
			for level, emit := range emitters {
				l, buf := capture("test", FormatText)
				l.SetLevel(floor)
				emit(l)
				if got, want := buf.Len() > 0, level >= floor; got != want {
					t.Errorf("%v message at minimum %v: written=%v, want %v", level, floor, got, want)
				}
			}
		})
	}
}

func TestJSONEntry(t *testing.T) {
	l, buf := capture("pipeline", FormatJSON)
	l.WithFields(Fields{"stage": "resample", "samples": 5}).Info("stage complete")

	entry := decode(t, buf)
	if entry.Level != "INFO" || entry.Logger != "pipeline" || entry.Message != "stage complete" {
		t.Errorf("unexpected entry %+v", entry)
	}
	if entry.Timestamp == "" {
		t.Error("timestamp not set")
	}
	if entry.Fields["stage"] != "resample" || entry.Fields["samples"] != float64(5) {
		t.Errorf("unexpected fields %v", entry.Fields)
	}
}

func TestJSONOmitsEmptyFields(t *testing.T) {
	l, buf := capture("pipeline", FormatJSON)
	l.Info("done")
	if strings.Contains(buf.String(), `"fields"`) || strings.Contains(buf.String(), `"caller"`) {
		t.Errorf("expected no fields or caller, got %s", buf.String())
	}
}

func TestWithError(t *testing.T) {
	l, buf := capture("cli", FormatJSON)
	l.WithError(fmt.Errorf("open part.gcode: no such file")).Error("pipeline failed")

	entry := decode(t, buf)
	if entry.Fields["error"] != "open part.gcode: no such file" {
		t.Errorf("unexpected error field %v", entry.Fields["error"])
	}
}

func TestEntryFieldsMerge(t *testing.T) {
	l, buf := capture("test", FormatJSON)
	base := l.WithField("line", 1)
	base.WithFields(Fields{"axis": "X", "token": "abc"}).Warn("skipped")

	entry := decode(t, buf)
	if len(entry.Fields) != 3 {
		t.Errorf("expected 3 fields, got %v", entry.Fields)
	}

	buf.Reset()
	base.Info("again")
	if entry := decode(t, buf); len(entry.Fields) != 1 {
		t.Errorf("deriving an entry changed its parent: %v", entry.Fields)
	}
}

func TestCaller(t *testing.T) {
	for _, format := range []OutputFormat{FormatText, FormatJSON} {
		l, buf := capture("test", format)
		l.SetCaller(true)
		l.Info("where")
		l.WithField("k", 1).Info("where")
		for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
			if !strings.Contains(line, "logger_test.go:") {
				t.Errorf("caller should point at the test file: %s", line)
			}
		}
	}
}

func TestWithPrefixSharesOutput(t *testing.T) {
	parent, buf := capture("gcode-anim", FormatText)
	child := parent.WithPrefix("preview")

	child.Info("frame table published")
	if !strings.Contains(buf.String(), "preview: frame table published") {
		t.Errorf("unexpected output %q", buf.String())
	}

	buf.Reset()
	parent.SetLevel(ERROR)
	child.Warn("filtered")
	if buf.Len() != 0 {
		t.Errorf("child should follow the parent level, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"DEBUG":   DEBUG,
		"debug":   DEBUG,
		"Info":    INFO,
		"warn":    WARN,
		"WARNING": WARN,
		"error":   ERROR,
		"verbose": INFO,
		"":        INFO,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if got := LogLevel(42).String(); got != "UNKNOWN" {
		t.Errorf("unexpected name for unknown level: %q", got)
	}
}

func TestParseFormat(t *testing.T) {
	if ParseFormat("JSON") != FormatJSON {
		t.Error("expected JSON")
	}
	if ParseFormat("yaml") != FormatText {
		t.Error("expected text fallback")
	}
}

func TestGetLogger(t *testing.T) {
	root, buf := capture("root", FormatText)
	SetDefaultLogger(root)
	t.Cleanup(func() { SetDefaultLogger(nil) })

	GetLogger("resample").Info("from child")
	if !strings.Contains(buf.String(), "resample: from child") {
		t.Errorf("child of the default logger should share its output, got %q", buf.String())
	}
}

func TestConfigureFromEnv(t *testing.T) {
	t.Setenv("GCODEANIM_LOG_LEVEL", "warn")
	t.Setenv("GCODEANIM_LOG_FORMAT", "json")
	t.Setenv("GCODEANIM_LOG_CALLER", "1")

	l, buf := capture("env", FormatText)
	ConfigureFromEnv(l)

	if l.GetLevel() != WARN {
		t.Errorf("expected WARN, got %v", l.GetLevel())
	}
	l.Info("filtered")
	l.Warn("kept")
	if entry := decode(t, buf); entry.Message != "kept" || entry.Caller == "" {
		t.Errorf("unexpected entry %+v", entry)
	}
}

func TestNoColorOnBuffers(t *testing.T) {
	var buf bytes.Buffer
	if IsTerminal(&buf) {
		t.Error("a buffer is never a terminal")
	}
	l := New("tty")
	l.SetColorize(true)
	l.SetWriter(&buf)
	l.Info("plain")
	if strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("expected no ANSI codes for a buffer, got %q", buf.String())
	}
}

func BenchmarkText(b *testing.B) {
	l, buf := capture("bench", FormatText)
	l.SetLevel(INFO)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		l.Info("sample %d", i)
	}
}

func BenchmarkJSONFields(b *testing.B) {
	l, buf := capture("bench", FormatJSON)
	fields := Fields{"stage": "parse", "line": 42, "samples": 1000}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		l.WithFields(fields).Info("stage complete")
	}
}

func BenchmarkFiltered(b *testing.B) {
	l, _ := capture("bench", FormatText)
	l.SetLevel(ERROR)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.Info("dropped")
	}
}
