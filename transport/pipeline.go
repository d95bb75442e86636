package transport

import (
	"context"
	"sync"

	"github.com/goliatone/go-appshell/core"
)

// RequestInterceptor may rewrite the outgoing request or abort it with an error.
type RequestInterceptor func(ctx context.Context, req *core.Request) (*core.Request, error)

// ErrorInterceptor receives every failure and returns the error to propagate.
// Returning nil is treated as returning the input error.
type ErrorInterceptor func(ctx context.Context, err error) error

// Pipeline runs interceptors in registration order.
type Pipeline struct {
	mu       sync.RWMutex
	requests []RequestInterceptor
	errors   []ErrorInterceptor
}

func NewPipeline() *Pipeline {
	return &Pipeline{}
}

func (p *Pipeline) UseRequest(interceptors ...RequestInterceptor) *Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, interceptor := range interceptors {
		if interceptor != nil {
			p.requests = append(p.requests, interceptor)
		}
	}
	return p
}

func (p *Pipeline) UseError(interceptors ...ErrorInterceptor) *Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, interceptor := range interceptors {
		if interceptor != nil {
			p.errors = append(p.errors, interceptor)
		}
	}
	return p
}

func (p *Pipeline) RunRequest(ctx context.Context, req *core.Request) (*core.Request, error) {
	if p == nil {
		return req, nil
	}
	p.mu.RLock()
	interceptors := append([]RequestInterceptor(nil), p.requests...)
	p.mu.RUnlock()

	current := req
	for _, interceptor := range interceptors {
		next, err := interceptor(ctx, current)
		if err != nil {
			return current, err
		}
		if next != nil {
			current = next
		}
	}
	return current, nil
}

func (p *Pipeline) RunError(ctx context.Context, err error) error {
	if p == nil || err == nil {
		return err
	}
	p.mu.RLock()
	interceptors := append([]ErrorInterceptor(nil), p.errors...)
	p.mu.RUnlock()

	current := err
	for _, interceptor := range interceptors {
		if next := interceptor(ctx, current); next != nil {
			current = next
		}
	}
	return current
}
