// Package logging builds the console logger and the optional log file sink.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"github.com/nibzard/borg-summon/internal/config"
)

// TimeFormat is the timestamp layout of every record.
const TimeFormat = "2006-01-02 15:04:05"

// Options holds configuration for the run logger.
type Options struct {
	Level           log.Level
	Formatter       log.Formatter
	ReportTimestamp bool
	Prefix          string
}

// DefaultOptions returns the options used when no flag or env var is set.
func DefaultOptions() Options {
	return Options{
		Level:           log.InfoLevel,
		Formatter:       log.TextFormatter,
		ReportTimestamp: true,
		Prefix:          "borg-summon",
	}
}

// ParseLevel parses a level name. The empty string is info.
func ParseLevel(level string) (log.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel, nil
	case "", "info":
		return log.InfoLevel, nil
	case "warn", "warning":
		return log.WarnLevel, nil
	case "error":
		return log.ErrorLevel, nil
	default:
		return log.InfoLevel, fmt.Errorf("unknown log level %q (expected debug, info, warn or error)", level)
	}
}

// ParseFormatter parses a formatter name. The empty string is text.
func ParseFormatter(format string) (log.Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return log.TextFormatter, nil
	case "json":
		return log.JSONFormatter, nil
	case "logfmt":
		return log.LogfmtFormatter, nil
	default:
		return log.TextFormatter, fmt.Errorf("unknown log format %q (expected text, json or logfmt)", format)
	}
}

// New returns a logger writing to w.
func New(w io.Writer, opts Options) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		Level:           opts.Level,
		Formatter:       opts.Formatter,
		ReportTimestamp: opts.ReportTimestamp,
		TimeFormat:      TimeFormat,
		Prefix:          opts.Prefix,
	})
}

// FileSink is an append-only log file.
type FileSink struct {
	Path string
	file afero.File
}

// OpenFile opens path on fsys for appending, creating it and its directory
// when missing. A leading ~ is expanded. A nil fsys is the OS filesystem.
func OpenFile(fsys afero.Fs, path string) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("log file path is empty")
	}
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	path = config.ExpandPath(path)
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	file, err := fsys.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &FileSink{Path: path, file: file}, nil
}

// Write appends p to the file.
func (s *FileSink) Write(p []byte) (int, error) {
	return s.file.Write(p)
}

// Close closes the log file.
func (s *FileSink) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	return s.file.Close()
}

// Tee returns a logger writing to both console and the log file at path on
// fsys. When path is empty it returns a console logger and a no-op closer.
func Tee(fsys afero.Fs, console io.Writer, opts Options, path string) (*log.Logger, io.Closer, error) {
	if path == "" {
		return New(console, opts), nopCloser{}, nil
	}
	sink, err := OpenFile(fsys, path)
	if err != nil {
		return nil, nil, err
	}
	return New(io.MultiWriter(console, sink), opts), sink, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
