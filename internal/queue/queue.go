// Package queue provides the durable work queue between the front end that
// accepts requests and the worker that executes them. Payloads are job ids
// rendered in decimal, so any consumer can pop and resolve a job against the
// relational store.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by Push and Pop after the queue has been closed.
var ErrClosed = errors.New("queue is closed")

// Queue is a FIFO of job ids. Push is non-blocking; Pop blocks up to the
// given timeout and returns (0, false, nil) when nothing arrives in time.
type Queue interface {
	Push(ctx context.Context, jobID int64) error
	Pop(ctx context.Context, timeout time.Duration) (jobID int64, ok bool, err error)
	Ping(ctx context.Context) error
	Close() error
}
