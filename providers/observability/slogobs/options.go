package slogobs

import (
	"io"
	"log/slog"
	"os"
)

// Option configures New.
type Option func(*settings)

type settings struct {
	format Format
	level  slog.Level
	output io.Writer
	logger *slog.Logger
}

func WithFormat(format Format) Option {
	return func(s *settings) { s.format = format }
}

func WithLevel(level slog.Level) Option {
	return func(s *settings) { s.level = level }
}

// WithOutput replaces os.Stderr. Run progress owns stdout.
func WithOutput(w io.Writer) Option {
	return func(s *settings) { s.output = w }
}

// WithLogger records through logger as is; format, level and output are
// ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

func newSettings(opts []Option) settings {
	s := settings{format: FormatCompact, level: slog.LevelInfo, output: os.Stderr}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
