// Package console reads protocol lines from the game's stdin.
package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/rbright/dsnbridge/internal/queue"
)

// Reader copies lines from an input stream into a queue. A blocking read
// cannot be cancelled, so one Reader serves the whole process and outlives
// service reloads; consumers stop by cancelling their Take instead.
type Reader struct {
	in     *bufio.Reader
	q      *queue.Queue
	logger *slog.Logger
}

func NewReader(r io.Reader, q *queue.Queue, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reader{in: bufio.NewReader(r), q: q, logger: logger}
}

// Run reads until end of stream, then closes the queue. A final line
// without a newline is still delivered. EOF returns nil; any other read
// error also closes the queue and is returned.
func (r *Reader) Run() error {
	defer r.q.Close()

	for {
		line, err := r.in.ReadString('\n')
		if line != "" {
			r.q.Put(strings.TrimRight(line, "\r\n"))
		}
		if errors.Is(err, io.EOF) {
			r.logger.Info("input stream closed")
			return nil
		}
		if err != nil {
			r.logger.Error("read input failed", "error", err.Error())
			return fmt.Errorf("read input: %w", err)
		}
	}
}
