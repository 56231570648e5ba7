package llm

import (
	"context"
	"sync"
)

// scriptedBackend replays canned replies and records every request.
type scriptedBackend struct {
	mu       sync.Mutex
	replies  []string
	errs     []error
	requests []Request
	// block makes Generate wait for ctx cancellation.
	block bool
}

func (b *scriptedBackend) Name() string { return "scripted" }

func (b *scriptedBackend) Generate(ctx context.Context, req Request) (string, error) {
	b.mu.Lock()
	i := len(b.requests)
	b.requests = append(b.requests, req)
	b.mu.Unlock()

	if b.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if i < len(b.errs) && b.errs[i] != nil {
		return "", b.errs[i]
	}
	if i < len(b.replies) {
		return b.replies[i], nil
	}
	return "", nil
}

func (b *scriptedBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}
