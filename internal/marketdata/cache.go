package marketdata

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Cache serves quotes from memory while they are younger than its TTL and
// falls through to the underlying Source otherwise.
type Cache struct {
	src    Source
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	quotes map[string]domain.Quote
}

// NewCache wraps src. A zero ttl disables caching for Quote, though
// Refresh still populates the cache.
func NewCache(src Source, ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{
		src:    src,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
		quotes: make(map[string]domain.Quote),
	}
}

// Get returns the cached quote for symbol regardless of age.
func (c *Cache) Get(symbol string) (domain.Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[strings.ToUpper(symbol)]
	return q, ok
}

// Set stores q, stamping it with the current time if it carries none.
func (c *Cache) Set(q domain.Quote) {
	if q.FetchedAt.IsZero() {
		q.FetchedAt = c.now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[strings.ToUpper(q.Symbol)] = q
}

// Quote returns a fresh cached quote or fetches one.
func (c *Cache) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	if q, ok := c.Get(symbol); ok && c.now().Sub(q.FetchedAt) < c.ttl {
		return q, nil
	}

	q, err := c.src.Quote(ctx, symbol)
	if err != nil {
		return domain.Quote{}, err
	}
	if q.Symbol == "" {
		q.Symbol = symbol
	}
	c.Set(q)
	return q, nil
}

// Refresh fetches every symbol with at most concurrency requests in
// flight. Failed symbols keep their previous quote; their errors are
// joined into the result.
func (c *Cache) Refresh(ctx context.Context, symbols []string, concurrency int) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	for _, sym := range symbols {
		sym := sym
		g.Go(func() error {
			q, err := c.src.Quote(ctx, sym)
			if err != nil {
				c.logger.Warn("quote refresh failed",
					slog.String("symbol", sym),
					slog.String("error", err.Error()),
				)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			if q.Symbol == "" {
				q.Symbol = sym
			}
			c.Set(q)
			c.logger.Debug("quote refreshed",
				slog.String("symbol", q.Symbol),
				slog.Float64("bid", q.Bid),
				slog.Float64("ask", q.Ask),
			)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Run refreshes symbols immediately and then every interval until ctx is
// done.
func (c *Cache) Run(ctx context.Context, symbols []string, interval time.Duration, concurrency int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	_ = c.Refresh(ctx, symbols, concurrency)
	for {
		select {
		case <-ticker.C:
			_ = c.Refresh(ctx, symbols, concurrency)
		case <-ctx.Done():
			return
		}
	}
}
