package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

const (
	ansiReset = "\033[0m"
	ansiDim   = "\033[90m"
	ansiBold  = "\033[1m"
)

// levelStyles holds label and color per level, padded so messages line up.
//
//nolint:gochecknoglobals
var levelStyles = map[slog.Level]struct{ label, color string }{
	slog.LevelDebug: {"DBG", "\033[36m"},
	slog.LevelInfo:  {"INF", "\033[32m"},
	slog.LevelWarn:  {"WRN", "\033[33m"},
	slog.LevelError: {"ERR", "\033[31m"},
}

// ConsoleHandler is a slog.Handler rendering one colored line per record,
// followed by the calling function, for reading logs in a terminal.
//
//	12:04:05.123 WRN login rejected | logger=svc.authsvc user.username=alice
//	  at authsvc.(*AuthService).Login (auth_service.go:128)
type ConsoleHandler struct {
	// Output is the destination for rendered records
	Output io.Writer
	// Level is the minimum level for records to be rendered
	Level slog.Leveler

	mu       *sync.Mutex
	prefix   string
	rendered []byte
}

var _ slog.Handler = (*ConsoleHandler)(nil)

// NewConsoleHandler creates a ConsoleHandler writing to output.
func NewConsoleHandler(output io.Writer, level slog.Leveler) *ConsoleHandler {
	return &ConsoleHandler{
		Output: output,
		Level:  level,
		mu:     new(sync.Mutex),
	}
}

// Enabled implements slog.Handler.Enabled.
func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.Level.Level()
}

// Handle implements slog.Handler.Handle.
func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer

	style, ok := levelStyles[r.Level]
	if !ok {
		style.label, style.color = r.Level.String(), ansiBold
	}

	buf.WriteString(ansiDim + r.Time.Format("15:04:05.000") + ansiReset + " ")
	buf.WriteString(style.color + style.label + ansiReset + " ")
	buf.WriteString(r.Message)

	attrs := bytes.Clone(h.rendered)

	r.Attrs(func(attr slog.Attr) bool {
		attrs = appendAttr(attrs, h.prefix, attr)

		return true
	})

	if len(attrs) > 0 {
		buf.WriteString(" " + ansiDim + "|" + ansiReset)
		buf.Write(attrs)
	}

	if r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		buf.WriteString("\n  " + ansiDim + "at " + filepath.Base(frame.Function))
		buf.WriteString(" (" + filepath.Base(frame.File) + ":" + strconv.Itoa(frame.Line) + ")" + ansiReset)
	}

	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()

	_, err := h.Output.Write(buf.Bytes())

	//nolint:wrapcheck
	return err
}

// WithAttrs implements slog.Handler.WithAttrs.
// Attributes are rendered once here under the groups opened so far.
func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) Handler {
	clone := *h
	clone.rendered = bytes.Clone(h.rendered)

	for _, attr := range attrs {
		clone.rendered = appendAttr(clone.rendered, h.prefix, attr)
	}

	return &clone
}

// WithGroup implements slog.Handler.WithGroup.
func (h *ConsoleHandler) WithGroup(name string) Handler {
	if name == "" {
		return h
	}

	clone := *h
	clone.prefix = h.prefix + name + "."

	return &clone
}

func appendAttr(buf []byte, prefix string, attr slog.Attr) []byte {
	attr.Value = attr.Value.Resolve()

	if attr.Value.Kind() == slog.KindGroup {
		if attr.Key != "" {
			prefix += attr.Key + "."
		}

		for _, member := range attr.Value.Group() {
			buf = appendAttr(buf, prefix, member)
		}

		return buf
	}

	if attr.Equal(slog.Attr{}) {
		return buf
	}

	attr = redactAttr(nil, attr)

	value := attr.Value.String()
	if strings.ContainsAny(value, " \t\n\"") {
		value = strconv.Quote(value)
	}

	buf = append(buf, ' ')
	buf = append(buf, prefix...)
	buf = append(buf, attr.Key...)
	buf = append(buf, '=')
	buf = append(buf, ansiDim...)
	buf = append(buf, value...)
	buf = append(buf, ansiReset...)

	return buf
}
