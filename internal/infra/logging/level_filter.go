package logging

import (
	"context"
	"log/slog"
	"strings"
)

// levelFilter maps dotted logger name prefixes to minimum levels,
// parsed from "repo:warn,svc.authsvc:debug".
type levelFilter map[string]Level

func parseLevelFilter(filter string) levelFilter {
	levels := make(levelFilter)

	for _, entry := range strings.Split(filter, ",") {
		name, levelStr, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok || name == "" {
			continue
		}

		levels[name] = parseLogLevel(levelStr, LevelDebug)
	}

	return levels
}

// threshold returns the level of the longest configured prefix of name,
// or fallback if none matches.
func (f levelFilter) threshold(name string, fallback Level) Level {
	for name != "" {
		if level, ok := f[name]; ok {
			return level
		}

		idx := strings.LastIndexByte(name, '.')
		if idx < 0 {
			break
		}

		name = name[:idx]
	}

	return fallback
}

// lowest returns the most verbose level any logger may emit at.
func (f levelFilter) lowest(fallback Level) Level {
	lowest := fallback

	for _, level := range f {
		lowest = min(lowest, level)
	}

	return lowest
}

// filterHandler drops records below the threshold for its logger name.
// The name is picked up from the LoggerNameKey attribute when it is attached.
type filterHandler struct {
	next   slog.Handler
	filter levelFilter
	base   Level
	level  Level
}

var _ slog.Handler = (*filterHandler)(nil)

func newFilterHandler(next slog.Handler, filter levelFilter, base Level) *filterHandler {
	return &filterHandler{
		next:   next,
		filter: filter,
		base:   base,
		level:  base,
	}
}

func (h *filterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level && h.next.Enabled(ctx, level)
}

func (h *filterHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level < h.level {
		return nil
	}

	//nolint:wrapcheck
	return h.next.Handle(ctx, r)
}

func (h *filterHandler) WithAttrs(attrs []slog.Attr) Handler {
	clone := *h
	clone.next = h.next.WithAttrs(attrs)

	for _, attr := range attrs {
		if attr.Key == LoggerNameKey {
			clone.level = h.filter.threshold(attr.Value.String(), h.base)
		}
	}

	return &clone
}

func (h *filterHandler) WithGroup(name string) Handler {
	clone := *h
	clone.next = h.next.WithGroup(name)

	return &clone
}
