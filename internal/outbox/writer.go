// Package outbox writes queued protocol lines to the game, one per line.
package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/rbright/dsnbridge/internal/observe"
	"github.com/rbright/dsnbridge/internal/queue"
)

// Writer is the single consumer of an outbound queue.
type Writer struct {
	q       *queue.Queue
	w       io.Writer
	logger  *slog.Logger
	metrics *observe.Metrics
}

func New(q *queue.Queue, w io.Writer, logger *slog.Logger, metrics *observe.Metrics) *Writer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Writer{q: q, w: w, logger: logger, metrics: metrics}
}

// Sanitize trims a line and removes carriage returns so it cannot split or
// corrupt the line framing.
func Sanitize(line string) string {
	return strings.ReplaceAll(strings.TrimSpace(line), "\r", "")
}

// Run writes lines in queue order until the queue's close sentinel. Write
// errors are logged and the line is dropped; Run keeps draining. It
// returns ctx.Err() only if ctx ends first.
func (w *Writer) Run(ctx context.Context) error {
	for {
		line, err := w.q.Take(ctx)
		if errors.Is(err, queue.ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}

		line = Sanitize(line)
		if _, err := io.WriteString(w.w, line+"\n"); err != nil {
			w.logger.Error("write protocol line failed", "line", line, "error", err.Error())
			continue
		}
		w.logger.Debug("protocol line written", "line", line)
		w.metrics.RecordLine(ctx, "out", Kind(line))
	}
}

// Kind returns the command token of a protocol line.
func Kind(line string) string {
	kind, _, _ := strings.Cut(line, "|")
	if kind == "" {
		return "empty"
	}
	return kind
}
