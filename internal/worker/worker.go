// Package worker schedules chat turns fairly across users on a bounded,
// elastic goroutine pool.
package worker

import (
	"context"
	"errors"

	"postflow/internal/dialogue"
)

// ErrDispatcherBusy reports a full inbound queue; callers should retry.
var ErrDispatcherBusy = errors.New("dispatcher queue full")

// Job is one inbound chat message waiting to be handled.
type Job struct {
	Ctx      context.Context
	UserID   int64
	Message  string
	resultCh chan Result
}

// Result carries one handled turn back to the submitting request.
type Result struct {
	Reply *dialogue.Reply
	Err   error
}

// DispatcherConfig sizes the pool and queue.
type DispatcherConfig struct {
	MinWorkers        int
	MaxWorkers        int
	QueueSize         int
	WorkerIdleTimeout int // minutes; zero picks the default
}
