package slogobs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
)

// Handler is a slog.Handler that renders records in one of the [Format]s.
type Handler struct {
	format Format
	level  slog.Level
	output io.Writer
	colors bool
	mu     *sync.Mutex
	attrs  []slog.Attr
	groups []string
}

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	Format Format
	Level  slog.Level
	// Output defaults to os.Stderr so event output on stdout stays clean.
	Output io.Writer
}

// NewHandler creates a new Handler with the given options.
func NewHandler(opts *HandlerOptions) *Handler {
	if opts == nil {
		opts = &HandlerOptions{}
	}
	output := opts.Output
	if output == nil {
		output = os.Stderr
	}
	format := opts.Format
	if format == "" {
		format = FormatCompact
	}

	// Compact and pretty records are colored only on a terminal.
	colors := false
	if f, ok := output.(*os.File); ok && format != FormatJSON {
		colors = isTerminal(f)
	}

	return &Handler{
		format: format,
		level:  opts.Level,
		output: output,
		colors: colors,
		mu:     &sync.Mutex{},
	}
}

// Enabled reports whether the handler handles records at the given level.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle formats and writes a log record.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var buf []byte
	var err error
	switch h.format {
	case FormatPretty:
		buf = h.renderPretty(r)
	case FormatJSON:
		buf, err = h.renderJSON(r)
	default:
		buf = h.renderCompact(r)
	}
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.output.Write(buf)
	return err
}

// WithAttrs returns a Handler that adds attrs to every record.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append([]slog.Attr{}, h.attrs...)
	for _, attr := range attrs {
		clone.attrs = append(clone.attrs, slog.Attr{Key: h.groupKey(attr.Key), Value: attr.Value})
	}
	return &clone
}

// WithGroup returns a Handler that prefixes attribute keys with name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string{}, h.groups...), name)
	return &clone
}

// renderCompact: "2006-01-02 15:04:05  INFO message -> {"key":"value"}"
func (h *Handler) renderCompact(r slog.Record) []byte {
	buf := make([]byte, 0, 256)
	buf = append(buf, r.Time.Format("2006-01-02 15:04:05")...)
	buf = append(buf, ' ')
	buf = h.appendLevel(buf, r.Level, "%5s")
	buf = append(buf, ' ')
	buf = append(buf, r.Message...)

	if attrs := h.collectAttrs(r); len(attrs) > 0 {
		buf = append(buf, " -> "...)
		if data, err := json.Marshal(attrs); err == nil {
			buf = append(buf, data...)
		} else {
			buf = append(buf, "[json-error]"...)
		}
	}
	return append(buf, '\n')
}

// renderPretty prints the message line followed by one sorted attribute per line.
func (h *Handler) renderPretty(r slog.Record) []byte {
	buf := make([]byte, 0, 256)
	buf = append(buf, r.Time.Format("2006-01-02 15:04:05")...)
	buf = append(buf, ' ')
	buf = h.appendLevel(buf, r.Level, "%-5s")
	buf = append(buf, "  "...)
	buf = append(buf, r.Message...)
	buf = append(buf, '\n')

	attrs := h.collectAttrs(r)
	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for i, key := range keys {
		branch := "    |- "
		if i == len(keys)-1 {
			branch = "    `- "
		}
		buf = append(buf, branch...)
		buf = append(buf, key...)
		buf = append(buf, ": "...)
		buf = append(buf, fmt.Sprintf("%v", attrs[key])...)
		buf = append(buf, '\n')
	}
	return buf
}

// renderJSON merges time, level and msg with the record attributes.
func (h *Handler) renderJSON(r slog.Record) ([]byte, error) {
	data := h.collectAttrs(r)
	data["time"] = r.Time.Format("2006-01-02T15:04:05.000Z07:00")
	data["level"] = levelString(r.Level)
	data["msg"] = r.Message

	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return append(encoded, '\n'), nil
}

func (h *Handler) appendLevel(buf []byte, level slog.Level, layout string) []byte {
	label := fmt.Sprintf(layout, levelString(level))
	if !h.colors {
		return append(buf, label...)
	}
	buf = append(buf, colorForLevel(level)...)
	buf = append(buf, label...)
	return append(buf, colorReset...)
}

// collectAttrs flattens handler and record attributes into one map. Handler
// attributes were prefixed when they were added; record attributes take the
// groups active now.
func (h *Handler) collectAttrs(r slog.Record) map[string]any {
	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, attr := range h.attrs {
		attrs[attr.Key] = attrValue(attr)
	}
	r.Attrs(func(attr slog.Attr) bool {
		attrs[h.groupKey(attr.Key)] = attrValue(attr)
		return true
	})
	return attrs
}

func (h *Handler) groupKey(key string) string {
	for i := len(h.groups) - 1; i >= 0; i-- {
		key = h.groups[i] + "." + key
	}
	return key
}

func attrValue(attr slog.Attr) any {
	value := attr.Value.Resolve().Any()
	if err, ok := value.(error); ok {
		return err.Error()
	}
	return value
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGreen  = "\033[32m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
)

func colorForLevel(level slog.Level) string {
	switch {
	case level < slog.LevelDebug:
		return colorGray
	case level < slog.LevelInfo:
		return colorBlue
	case level < slog.LevelWarn:
		return colorGreen
	case level < slog.LevelError:
		return colorYellow
	default:
		return colorRed
	}
}

// isTerminal checks whether the given file is connected to a terminal device.
func isTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fileInfo, err := f.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
