package testsupport

import (
	"context"
	"fmt"
	"sync"
)

// FetchScript plays scripted responses through a fetch function, one step
// per call. When the script runs out, the last step repeats, which keeps
// polling tests simple. The zero value fails every call.
type FetchScript struct {
	mu    sync.Mutex
	steps []func(ctx context.Context) (any, error)
	calls int
}

// NewFetchScript creates an empty script.
func NewFetchScript() *FetchScript {
	return &FetchScript{}
}

// Step appends a raw scripted call.
func (s *FetchScript) Step(fn func(ctx context.Context) (any, error)) *FetchScript {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, fn)
	return s
}

// Return appends a step that succeeds with data.
func (s *FetchScript) Return(data any) *FetchScript {
	return s.Step(func(context.Context) (any, error) {
		return data, nil
	})
}

// Fail appends a step that fails with err.
func (s *FetchScript) Fail(err error) *FetchScript {
	return s.Step(func(context.Context) (any, error) {
		return nil, err
	})
}

// Block appends a step that waits on release before succeeding with data.
// Cancelling the fetch ctx unblocks it with the ctx error, letting tests
// hold a fetch in flight and observe supersession and abandonment.
func (s *FetchScript) Block(release <-chan struct{}, data any) *FetchScript {
	return s.Step(func(ctx context.Context) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
			return data, nil
		}
	})
}

// Fetch runs the next step. It has the fetch function shape the sync engine
// expects, so a script registers directly as a fetcher.
func (s *FetchScript) Fetch(ctx context.Context) (any, error) {
	s.mu.Lock()
	if len(s.steps) == 0 {
		s.calls++
		s.mu.Unlock()
		return nil, fmt.Errorf("fetch script has no steps")
	}
	idx := s.calls
	if idx >= len(s.steps) {
		idx = len(s.steps) - 1
	}
	step := s.steps[idx]
	s.calls++
	s.mu.Unlock()

	return step(ctx)
}

// Calls reports how many times Fetch ran.
func (s *FetchScript) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
