package catalog

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttled limits the request rate against a shared catalog.
type Throttled struct {
	inner   Reader
	limiter *rate.Limiter
}

// NewThrottled allows rps requests per second with the given burst.
// A non-positive rps disables limiting.
func NewThrottled(inner Reader, rps float64, burst int) *Throttled {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttled{inner: inner, limiter: rate.NewLimiter(limit, burst)}
}

func (t *Throttled) ListEntries(ctx context.Context) ([]Entry, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.inner.ListEntries(ctx)
}

func (t *Throttled) GetAnnotation(ctx context.Context, e Entry) (string, bool, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", false, err
	}
	return t.inner.GetAnnotation(ctx, e)
}

// SetAnnotation fails with ErrReadOnly when the wrapped catalog is not a Writer.
func (t *Throttled) SetAnnotation(ctx context.Context, e Entry, text string) error {
	w, ok := t.inner.(Writer)
	if !ok {
		return ErrReadOnly
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return w.SetAnnotation(ctx, e, text)
}
