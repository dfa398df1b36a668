package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
)

// TestParseLevel tests level names.
func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    log.Level
		wantErr bool
	}{
		{in: "", want: log.InfoLevel},
		{in: "debug", want: log.DebugLevel},
		{in: "INFO", want: log.InfoLevel},
		{in: "warning", want: log.WarnLevel},
		{in: "warn", want: log.WarnLevel},
		{in: " error ", want: log.ErrorLevel},
		{in: "loud", want: log.InfoLevel, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// TestParseFormatter tests formatter names.
func TestParseFormatter(t *testing.T) {
	for in, want := range map[string]log.Formatter{
		"":       log.TextFormatter,
		"text":   log.TextFormatter,
		"json":   log.JSONFormatter,
		"logfmt": log.LogfmtFormatter,
	} {
		got, err := ParseFormatter(in)
		if err != nil {
			t.Fatalf("ParseFormatter(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseFormatter(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseFormatter("xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

// TestNewRespectsLevel tests that records below the level are dropped.
func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.Level = log.WarnLevel
	opts.ReportTimestamp = false
	logger := New(&buf, opts)

	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("info record written at warn level: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("warn record missing: %q", buf.String())
	}
}

// TestTee tests writing to both the console and a log file.
func TestTee(t *testing.T) {
	t.Run("without a file", func(t *testing.T) {
		var console bytes.Buffer
		logger, closer, err := Tee(afero.NewMemMapFs(), &console, DefaultOptions(), "")
		if err != nil {
			t.Fatal(err)
		}
		logger.Info("hello")
		if err := closer.Close(); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(console.String(), "hello") {
			t.Errorf("console missing record: %q", console.String())
		}
	})

	t.Run("with a file", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		path := "/var/log/borg-summon/run.log"
		if err := afero.WriteFile(fsys, path, []byte("earlier\n"), 0o644); err != nil {
			t.Fatal(err)
		}

		var console bytes.Buffer
		opts := DefaultOptions()
		opts.Formatter = log.LogfmtFormatter
		logger, closer, err := Tee(fsys, &console, opts, path)
		if err != nil {
			t.Fatal(err)
		}
		logger.Info("create", "target", "home,r1", "result", "success")
		if err := closer.Close(); err != nil {
			t.Fatal(err)
		}

		data, err := afero.ReadFile(fsys, path)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(string(data), "earlier\n") {
			t.Errorf("log file was truncated: %q", data)
		}
		if !strings.Contains(string(data), "target=home,r1") {
			t.Errorf("log file missing record: %q", data)
		}
		if !strings.Contains(console.String(), "target=home,r1") {
			t.Errorf("console missing record: %q", console.String())
		}
	})

	t.Run("creates the directory", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		sink, err := OpenFile(fsys, "/a/b/run.log")
		if err != nil {
			t.Fatal(err)
		}
		defer sink.Close()
		if info, err := fsys.Stat("/a/b"); err != nil || !info.IsDir() {
			t.Errorf("log dir not created: %v", err)
		}
		if _, err := fsys.Stat("/a/b/run.log"); err != nil {
			t.Errorf("log file not created: %v", err)
		}
	})

	t.Run("os filesystem by default", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "run.log")
		sink, err := OpenFile(nil, path)
		if err != nil {
			t.Fatal(err)
		}
		defer sink.Close()
		if _, err := os.Stat(path); err != nil {
			t.Errorf("log file not created: %v", err)
		}
	})

	t.Run("empty path", func(t *testing.T) {
		if _, err := OpenFile(afero.NewMemMapFs(), ""); err == nil {
			t.Fatal("expected error")
		}
	})
}
