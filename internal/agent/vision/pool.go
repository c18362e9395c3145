package vision

import (
	"context"
	"time"

	"github.com/cieplik206/dokumenty/internal/apperr"
)

// Pool bounds the number of in-flight calls to a Client.
type Pool struct {
	client  Client
	slots   chan struct{}
	timeout time.Duration
}

var _ Client = (*Pool)(nil)

func NewPool(client Client, size int, timeout time.Duration) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		client:  client,
		slots:   make(chan struct{}, size),
		timeout: timeout,
	}
}

func (p *Pool) acquire(ctx context.Context) (func(), error) {
	var wait <-chan time.Time
	if p.timeout > 0 {
		timer := time.NewTimer(p.timeout)
		defer timer.Stop()
		wait = timer.C
	}
	select {
	case p.slots <- struct{}{}:
		return func() { <-p.slots }, nil
	case <-wait:
		return nil, apperr.Wrap(apperr.ErrTransient, "vision", "timeout waiting for available client", nil)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) Complete(ctx context.Context, req Request) (*Response, error) {
	release, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return p.client.Complete(ctx, req)
}

func (p *Pool) Stream(ctx context.Context, req Request, onDelta DeltaFunc) (*Response, error) {
	release, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return p.client.Stream(ctx, req, onDelta)
}
