package testutils

import (
	"context"
	"log/slog"
	"sync"
)

// MockHandler records the log records it receives. It implements slog.Handler.
type MockHandler struct {
	IgnoreBelow slog.Level

	mu      sync.Mutex
	records []slog.Record
}

// NewMockHandler returns a new MockHandler.
// levels <= ignoreBelow are not recorded.
func NewMockHandler(ignoreBelow slog.Level) *MockHandler {
	return &MockHandler{IgnoreBelow: ignoreBelow}
}

// GetLevels returns how many records were logged per level.
func (h *MockHandler) GetLevels() map[slog.Level]uint {
	h.mu.Lock()
	defer h.mu.Unlock()

	levels := make(map[slog.Level]uint)
	for _, r := range h.records {
		levels[r.Level]++
	}
	return levels
}

// Enabled implements Handler.Enabled.
func (h *MockHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level > h.IgnoreBelow
}

// Handle implements Handler.Handle.
func (h *MockHandler) Handle(_ context.Context, record slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, record)
	return nil
}

// WithAttrs implements Handler.WithAttrs.
func (h *MockHandler) WithAttrs([]slog.Attr) slog.Handler {
	return h
}

// WithGroup implements Handler.WithGroup.
func (h *MockHandler) WithGroup(string) slog.Handler {
	return h
}
