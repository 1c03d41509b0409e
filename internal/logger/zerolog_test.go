package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestZerologFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerolog(&buf, zerolog.InfoLevel)

	l.Info("Pipeline", "volume processed", map[string]interface{}{"voxels": 8})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected a JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["component"] != "Pipeline" {
		t.Errorf("Expected component Pipeline, got %v", entry["component"])
	}
	if entry["message"] != "volume processed" {
		t.Errorf("Expected message, got %v", entry["message"])
	}
	if entry["voxels"] != float64(8) {
		t.Errorf("Expected voxels field 8, got %v", entry["voxels"])
	}
}

func TestZerologLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerolog(&buf, zerolog.WarnLevel)

	l.Debug("Test", "hidden", nil)
	l.Info("Test", "hidden", nil)
	if buf.Len() != 0 {
		t.Fatalf("Expected nothing below warn level, got %q", buf.String())
	}

	l.Error("Test", errors.New("boom"), nil)
	if !strings.Contains(buf.String(), "boom") {
		t.Errorf("Expected error text in output, got %q", buf.String())
	}
}

func TestNewWithLogfile(t *testing.T) {
	dir, err := os.MkdirTemp("", "petviz-log-*")
	if err != nil {
		t.Fatalf("Failed to create temporary directory: %v", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "petviz.log")
	l, err := New(Config{Level: "debug", Logfile: path, MaxSize: 1, MaxAge: 1})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	l.Debug("Test", "written to file", nil)
	if err := l.Close(); err != nil {
		t.Fatalf("Failed to close logger: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("Expected log line in file, got %q", data)
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Error("Expected an error for an unknown level")
	}
}

func TestNewZerologKeepsGlobals(t *testing.T) {
	format, durations := zerolog.TimeFieldFormat, zerolog.DurationFieldInteger
	defer func() {
		zerolog.TimeFieldFormat, zerolog.DurationFieldInteger = format, durations
	}()

	zerolog.TimeFieldFormat = "2006-01-02"
	zerolog.DurationFieldInteger = false

	var buf bytes.Buffer
	NewZerolog(&buf, zerolog.InfoLevel)
	if _, err := New(Config{Level: "warn"}); err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	if zerolog.TimeFieldFormat != "2006-01-02" {
		t.Errorf("Expected time format to be left alone, got %q", zerolog.TimeFieldFormat)
	}
	if zerolog.DurationFieldInteger {
		t.Error("Expected duration format to be left alone")
	}
}
