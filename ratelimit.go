package updater

import (
	"context"
	"log"
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimited spaces out calls to p so that no more than perSecond are made on average.
// The provider may reject requests issued too frequently, and a convergence loop issues several in a row.
// A perSecond of zero or less returns p unchanged.
func RateLimited(p Provider, perSecond float64) Provider {
	if perSecond <= 0 {
		return p
	}
	return &rateLimitedProvider{next: p, limiter: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

type rateLimitedProvider struct {
	next    Provider
	limiter *rate.Limiter
}

func (p *rateLimitedProvider) ListRecords(ctx context.Context) ([]Record, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.next.ListRecords(ctx)
}

func (p *rateLimitedProvider) AddRecord(ctx context.Context, r Record) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	return p.next.AddRecord(ctx, r)
}

func (p *rateLimitedProvider) RemoveRecord(ctx context.Context, r Record) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	return p.next.RemoveRecord(ctx, r)
}

func (p *rateLimitedProvider) SetLogger(l *log.Logger) {
	if s, ok := p.next.(interface{ SetLogger(*log.Logger) }); ok {
		s.SetLogger(l)
	}
}

func (p *rateLimitedProvider) SetHTTPClient(c *http.Client) {
	if s, ok := p.next.(interface{ SetHTTPClient(*http.Client) }); ok {
		s.SetHTTPClient(c)
	}
}
