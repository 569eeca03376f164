// Package logging builds a per-component slog handler from a RUST_LOG-style
// filter string (per spec.md §6), e.g. "info,serial=debug,can=warn".
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Filter maps component names to minimum log levels, with a default
// level for components not explicitly named.
type Filter struct {
	def        slog.Level
	components map[string]slog.Level
}

// ParseFilter parses a RUST_LOG-style directive string. Each
// comma-separated term is either a bare level ("info", "debug", "warn",
// "error"), setting the default, or "component=level", setting that
// component's level. An empty string yields an all-info default.
func ParseFilter(spec string) Filter {
	f := Filter{def: slog.LevelInfo, components: make(map[string]slog.Level)}
	if spec == "" {
		return f
	}

	for _, term := range strings.Split(spec, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		if name, lvl, ok := strings.Cut(term, "="); ok {
			f.components[name] = parseLevel(lvl)
			continue
		}
		f.def = parseLevel(term)
	}
	return f
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Level returns the minimum level that should be logged for the named
// component, falling back to the filter's default.
func (f Filter) Level(component string) slog.Level {
	if lvl, ok := f.components[component]; ok {
		return lvl
	}
	return f.def
}

// componentHandler wraps an slog.Handler, gating records by the
// "component" attribute against a Filter. Records without a component
// attribute are gated against the filter's default level.
type componentHandler struct {
	slog.Handler
	filter Filter
	comp   string
}

// NewHandler returns an slog.Handler writing text-formatted records to
// os.Stderr, gated per-component by filter. Matches the teacher's
// slog.NewTextHandler(os.Stderr, ...) default.
func NewHandler(filter Filter) slog.Handler {
	return &componentHandler{
		Handler: slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}),
		filter:  filter,
	}
}

func (h *componentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.filter.Level(h.comp)
}

func (h *componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	comp := h.comp
	for _, a := range attrs {
		if a.Key == "component" {
			comp = a.Value.String()
		}
	}
	return &componentHandler{Handler: h.Handler.WithAttrs(attrs), filter: h.filter, comp: comp}
}

func (h *componentHandler) WithGroup(name string) slog.Handler {
	return &componentHandler{Handler: h.Handler.WithGroup(name), filter: h.filter, comp: h.comp}
}
