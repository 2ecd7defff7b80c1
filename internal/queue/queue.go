// Package queue provides the unbounded FIFO line queue shared by the stdin
// reader, the protocol interpreter and the stdout writer.
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Take once every item queued before Close has been taken.
var ErrClosed = errors.New("queue closed")

// Queue is an unbounded, order-preserving, multi-producer queue. Close
// enqueues an end sentinel rather than discarding pending items, so a
// consumer always drains everything submitted before shutdown.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []string
	closed bool
}

func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put appends line. It never blocks. Lines put after Close are dropped and
// Put reports false.
func (q *Queue) Put(line string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, line)
	q.cond.Signal()
	return true
}

// Close places the end sentinel behind all pending items. It is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Len reports the number of pending items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Take blocks until an item is available, the sentinel is reached
// (ErrClosed) or ctx is done (ctx.Err()). Pending items win over ctx.
func (q *Queue) Take(ctx context.Context) (string, error) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.cond.Broadcast()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		if q.closed {
			return "", ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		q.cond.Wait()
	}

	line := q.items[0]
	q.items[0] = ""
	q.items = q.items[1:]
	return line, nil
}
