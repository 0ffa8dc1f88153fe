package metaball

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/Carmen-Shannon/oxy-metaballs/common"
)

// warnCounter counts Warn records by message.
type warnCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (w *warnCounter) Enabled(_ context.Context, l slog.Level) bool { return l >= slog.LevelWarn }

func (w *warnCounter) Handle(_ context.Context, r slog.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.counts[r.Message]++
	return nil
}

func (w *warnCounter) WithAttrs([]slog.Attr) slog.Handler { return w }
func (w *warnCounter) WithGroup(string) slog.Handler      { return w }

func (w *warnCounter) count(msg string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.counts[msg]
}

// captureWarnings installs a counting logger for the rest of the test.
func captureWarnings(t *testing.T) *warnCounter {
	t.Helper()
	w := &warnCounter{counts: make(map[string]int)}
	common.SetLogger(slog.New(w))
	t.Cleanup(func() { common.SetLogger(nil) })
	return w
}
