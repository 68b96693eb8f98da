// Package ratelimit throttles calls to an embedding provider client-side.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/exportrag/internal/adapters/driven/embedding"
	"github.com/custodia-labs/exportrag/internal/core/ports/driven"
	"github.com/custodia-labs/exportrag/internal/logger"
)

// Ensure Service implements the interface.
var _ driven.EmbeddingService = (*Service)(nil)

// DefaultBackoff is applied after a 429 without a Retry-After header.
const DefaultBackoff = 5 * time.Second

// Config holds rate limiting configuration.
type Config struct {
	// RequestsPerSecond is the sustained rate. Zero or less disables the bucket.
	RequestsPerSecond float64

	// Burst is the bucket size (default: 1).
	Burst int

	// MaxWait is the longest a call waits before failing as rate limited.
	MaxWait time.Duration
}

// Service wraps an embedding service with a token bucket. It never retries:
// a call that would wait longer than MaxWait fails with
// domain.ErrEmbeddingRateLimited instead.
type Service struct {
	next    driven.EmbeddingService
	limiter *rate.Limiter
	maxWait time.Duration

	mu      sync.Mutex
	retryAt time.Time
	now     func() time.Time
}

// New wraps next.
func New(next driven.EmbeddingService, cfg Config) *Service {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Service{
		next:    next,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		maxWait: cfg.MaxWait,
		now:     time.Now,
	}
}

// Embed waits for a token and embeds text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	v, err := s.next.Embed(ctx, text)
	s.record(err)
	return v, err
}

// EmbedBatch takes one token per call; the wrapped service batches.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	v, err := s.next.EmbedBatch(ctx, texts)
	s.record(err)
	return v, err
}

// Dimensions returns the wrapped service's dimensions.
func (s *Service) Dimensions() int { return s.next.Dimensions() }

// ModelName returns the wrapped service's model.
func (s *Service) ModelName() string { return s.next.ModelName() }

// Ping bypasses the bucket.
func (s *Service) Ping(ctx context.Context) error { return s.next.Ping(ctx) }

// Close closes the wrapped service.
func (s *Service) Close() error { return s.next.Close() }

// wait honours any provider backoff, then the token bucket.
func (s *Service) wait(ctx context.Context) error {
	now := s.now()

	s.mu.Lock()
	retryAt := s.retryAt
	s.mu.Unlock()

	var delay time.Duration
	if now.Before(retryAt) {
		delay = retryAt.Sub(now)
	}

	r := s.limiter.ReserveN(now.Add(delay), 1)
	if !r.OK() {
		return &embedding.RateLimitError{Provider: s.next.ModelName(), Message: "request exceeds limiter burst"}
	}
	delay += r.DelayFrom(now.Add(delay))
	if delay > s.maxWait {
		r.CancelAt(now)
		return &embedding.RateLimitError{
			Provider: s.next.ModelName(),
			RetryAt:  now.Add(delay),
			Message:  fmt.Sprintf("client throttle would wait %s", delay.Round(time.Millisecond)),
		}
	}
	if delay <= 0 {
		return nil
	}

	logger.Debug("embedding throttle: waiting %s", delay)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// record remembers provider throttling so later calls back off.
func (s *Service) record(err error) {
	var rl *embedding.RateLimitError
	if !errors.As(err, &rl) {
		return
	}
	until := rl.RetryAt
	if until.IsZero() {
		until = s.now().Add(DefaultBackoff)
	}

	s.mu.Lock()
	if until.After(s.retryAt) {
		s.retryAt = until
	}
	s.mu.Unlock()
	logger.Debug("embedding throttle: provider backoff until %s", until.Format(time.RFC3339))
}
