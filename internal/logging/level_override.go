package logging

import (
	"context"
	"log/slog"
)

// componentLevelHandler applies a global minimum level plus optional
// per-component overrides keyed by the component attribute.
type componentLevelHandler struct {
	next      slog.Handler
	base      slog.Level
	overrides map[string]slog.Level
	component string
}

func newComponentLevelHandler(next slog.Handler, base slog.Level, overrides map[string]string) slog.Handler {
	parsed := make(map[string]slog.Level, len(overrides))
	for component, level := range overrides {
		parsed[component] = parseLevel(level)
	}
	return &componentLevelHandler{next: next, base: base, overrides: parsed}
}

func (h *componentLevelHandler) minLevel() slog.Level {
	if lvl, ok := h.overrides[h.component]; ok && h.component != "" {
		return lvl
	}
	return h.base
}

func (h *componentLevelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level < h.minLevel() {
		return false
	}
	return h.next.Enabled(ctx, level)
}

func (h *componentLevelHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < h.minLevel() {
		return nil
	}
	return h.next.Handle(ctx, record)
}

func (h *componentLevelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.next = h.next.WithAttrs(attrs)
	for _, attr := range attrs {
		if attr.Key == FieldComponent {
			clone.component = attr.Value.String()
		}
	}
	return &clone
}

func (h *componentLevelHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.next = h.next.WithGroup(name)
	return &clone
}

// WithLevelOverride returns a logger that enforces the provided minimum level
// while preserving existing attributes and handler wiring.
func WithLevelOverride(logger *slog.Logger, level slog.Level) *slog.Logger {
	if logger == nil {
		return NewNop()
	}
	return slog.New(&componentLevelHandler{next: logger.Handler(), base: level})
}
