package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EvalTimeout is the hard limit for a single evaluation.
const EvalTimeout = 5 * time.Second

var (
	// ErrTimeout is returned when a script runs past its deadline.
	ErrTimeout = errors.New("engine: evaluation timed out")
	// ErrSuperseded is returned to an evaluation that finished after a
	// newer one had started. Only the newest script may reach the viewer.
	ErrSuperseded = errors.New("engine: evaluation superseded by newer request")
)

type evalResult struct {
	script *Script
	errors []EvalError
	err    error
}

// wait blocks until ch delivers or ctx ends. A result from generation gen
// is dropped if Evaluate has been called again meanwhile. The evaluating
// goroutine is not interrupted on timeout; its result lands in the
// buffered channel and is discarded.
func (e *Engine) wait(ctx context.Context, ch <-chan evalResult, gen uint64) (*Script, []EvalError, error) {
	select {
	case res := <-ch:
		if !e.current(gen) {
			return nil, nil, ErrSuperseded
		}
		return res.script, res.errors, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, nil, fmt.Errorf("%w after %s", ErrTimeout, EvalTimeout)
		}
		return nil, nil, ctx.Err()
	}
}

func (e *Engine) next() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generation++
	return e.generation
}

func (e *Engine) current(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return gen == e.generation
}
