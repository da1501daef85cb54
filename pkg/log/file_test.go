// Log file rollover tests
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readString(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestFileWriterAppends(t *testing.T) {
	name := filepath.Join(t.TempDir(), "logs", "run.log")
	if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(name, []byte("earlier\n"), 0644); err != nil {
		t.Fatal(err)
	}

	w, err := OpenFile(FileConfig{Name: name})
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if w.Size() != int64(len("earlier\n")) {
		t.Errorf("size should start at the existing length, got %d", w.Size())
	}
	if _, err := w.Write([]byte("later\n")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if got := readString(t, name); got != "earlier\nlater\n" {
		t.Errorf("file = %q", got)
	}
	if _, err := w.Write([]byte("x")); err == nil {
		t.Error("write after Close should fail")
	}
}

func TestFileWriterCreatesDirectory(t *testing.T) {
	name := filepath.Join(t.TempDir(), "a", "b", "run.log")
	w, err := OpenFile(FileConfig{Name: name})
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer w.Close()
	if _, err := os.Stat(name); err != nil {
		t.Errorf("log file not created: %v", err)
	}
}

func TestFileWriterRollover(t *testing.T) {
	name := filepath.Join(t.TempDir(), "run.log")
	w, err := OpenFile(FileConfig{Name: name, MaxSize: 10, Backups: 2})
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer w.Close()

	for _, line := range []string{"aaaaaa\n", "bbbbbb\n", "cccccc\n", "dddddd\n"} {
		if _, err := w.Write([]byte(line)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	want := map[string]string{
		name:        "dddddd\n",
		name + ".1": "cccccc\n",
		name + ".2": "bbbbbb\n",
	}
	for file, content := range want {
		if got := readString(t, file); got != content {
			t.Errorf("%s = %q, want %q", filepath.Base(file), got, content)
		}
	}
	if _, err := os.Stat(name + ".3"); !os.IsNotExist(err) {
		t.Errorf("only 2 backups should be kept, stat .3: %v", err)
	}
}

func TestFileWriterOversizedWrite(t *testing.T) {
	name := filepath.Join(t.TempDir(), "run.log")
	w, err := OpenFile(FileConfig{Name: name, MaxSize: 4})
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer w.Close()

	if _, err := w.Write([]byte("longer than the limit\n")); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(name + ".1"); !os.IsNotExist(err) {
		t.Error("an empty file should not be rolled over")
	}
}

func TestOpenFileErrors(t *testing.T) {
	if _, err := OpenFile(FileConfig{}); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := OpenFile(FileConfig{Name: filepath.Join(t.TempDir(), "x.log"), MaxSize: -1}); err == nil {
		t.Error("expected error for negative size")
	}
}

func TestLoggerToFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "run.log")
	w, err := OpenFile(FileConfig{Name: name})
	if err != nil {
		t.Fatal(err)
	}
	l := New("pipeline")
	l.SetWriter(w)
	l.Info("parsed program")
	w.Close()

	if got := readString(t, name); !strings.Contains(got, "pipeline: parsed program") || strings.Contains(got, "\x1b[") {
		t.Errorf("unexpected file content %q", got)
	}
}
