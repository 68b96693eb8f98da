// Package router implements driven.ModelBackend over several LLM providers
// with per-provider retry, exponential backoff and ordered failover.
package router

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/exportrag/internal/core/domain"
	"github.com/custodia-labs/exportrag/internal/core/ports/driven"
	"github.com/custodia-labs/exportrag/internal/logger"
)

// Ensure Router implements the interface.
var _ driven.ModelBackend = (*Router)(nil)

// Default configuration values.
const (
	DefaultMaxAttempts = domain.DefaultBackendAttempts
	DefaultBaseDelay   = domain.DefaultRetryBaseDelay
	DefaultMaxDelay    = domain.DefaultRetryMaxDelay
)

// Backend is one named provider.
type Backend struct {
	// ID names the backend in provider preference lists.
	ID string

	// Service is the provider adapter.
	Service driven.LLMService

	// MaxAttempts bounds calls to this backend per request (default: 3).
	MaxAttempts int

	// Timeout bounds a single attempt. Zero leaves only the caller deadline.
	Timeout time.Duration
}

// Config holds router configuration.
type Config struct {
	// Backends in default preference order.
	Backends []Backend

	// BaseDelay is the first backoff delay; it doubles per attempt.
	BaseDelay time.Duration

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration
}

// Router dispatches generation calls across backends.
// It is safe for concurrent use; each call keeps its own state.
type Router struct {
	backends  map[string]Backend
	order     []string
	baseDelay time.Duration
	maxDelay  time.Duration

	// sleep waits for d or until ctx is done.
	sleep func(ctx context.Context, d time.Duration) error
	// jitter returns a value in [0, n].
	jitter func(n int64) int64
}

// CallError is returned when a call fails. It carries the state trace.
type CallError struct {
	Err   error
	Trace []driven.AttemptState
}

// Error implements the error interface.
func (e *CallError) Error() string { return e.Err.Error() }

// Unwrap returns the terminal error.
func (e *CallError) Unwrap() error { return e.Err }

// New creates a router. Backend ids must be unique and non-empty.
func New(cfg Config) (*Router, error) {
	if len(cfg.Backends) == 0 {
		return nil, fmt.Errorf("%w: router: at least one backend is required", domain.ErrInvalidInput)
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}

	r := &Router{
		backends:  make(map[string]Backend, len(cfg.Backends)),
		baseDelay: cfg.BaseDelay,
		maxDelay:  cfg.MaxDelay,
		sleep:     sleepCtx,
		jitter: func(n int64) int64 {
			if n <= 0 {
				return 0
			}
			return rand.Int64N(n + 1)
		},
	}
	for _, b := range cfg.Backends {
		if b.ID == "" || b.Service == nil {
			return nil, fmt.Errorf("%w: router: backend needs an id and a service", domain.ErrInvalidInput)
		}
		if _, dup := r.backends[b.ID]; dup {
			return nil, fmt.Errorf("%w: router: duplicate backend %q", domain.ErrInvalidInput, b.ID)
		}
		if b.MaxAttempts <= 0 {
			b.MaxAttempts = DefaultMaxAttempts
		}
		r.backends[b.ID] = b
		r.order = append(r.order, b.ID)
	}
	return r, nil
}

// Providers lists backend ids in default preference order.
func (r *Router) Providers() []string {
	return append([]string(nil), r.order...)
}

// Generate produces free text.
func (r *Router) Generate(ctx context.Context, req driven.BackendRequest) (*driven.BackendResponse, error) {
	return r.call(ctx, req, func(ctx context.Context, svc driven.LLMService) (string, error) {
		return svc.Generate(ctx, req.Prompt, req.Options)
	})
}

// GenerateStructured produces text intended to satisfy schema.
func (r *Router) GenerateStructured(
	ctx context.Context,
	req driven.BackendRequest,
	schema domain.OutputSchema,
) (*driven.BackendResponse, error) {
	return r.call(ctx, req, func(ctx context.Context, svc driven.LLMService) (string, error) {
		return svc.GenerateStructured(ctx, req.Prompt, schema, req.Options)
	})
}

type attemptFunc func(ctx context.Context, svc driven.LLMService) (string, error)

// call runs the per-call state machine:
//
//	Pending -> Attempting(provider, n) -> Succeeded
//	                                   -> Retrying -> Attempting(provider, n+1)
//	                                   -> Attempting(next provider, 1)
//	                                   -> ProviderExhausted
func (r *Router) call(ctx context.Context, req driven.BackendRequest, fn attemptFunc) (*driven.BackendResponse, error) {
	trace := []driven.AttemptState{{State: driven.StatePending}}
	fail := func(err error) (*driven.BackendResponse, error) {
		return nil, &CallError{Err: err, Trace: trace}
	}

	order, err := r.resolve(req.ProviderPreference)
	if err != nil {
		return fail(err)
	}

	total := 0
	var lastErr error
	for _, id := range order {
		b := r.backends[id]
		for attempt := 1; attempt <= b.MaxAttempts; attempt++ {
			total++
			trace = append(trace, driven.AttemptState{State: driven.StateAttempting, Provider: id, Attempt: attempt})

			text, err := r.attempt(ctx, b, fn)
			if err == nil {
				trace = append(trace, driven.AttemptState{State: driven.StateSucceeded, Provider: id, Attempt: attempt})
				logger.Debug("router: %s succeeded on attempt %d (%d total)", id, attempt, total)
				return &driven.BackendResponse{Text: text, Provider: id, Attempts: total, Trace: trace}, nil
			}

			if cerr := callerErr(ctx); cerr != nil {
				return fail(cerr)
			}
			if !domain.IsRetryable(err) {
				logger.Warn("router: %s rejected the request: %v", id, err)
				return fail(fmt.Errorf("%w: %s: %w", domain.ErrGenerationRequestInvalid, id, err))
			}
			lastErr = err
			if attempt == b.MaxAttempts {
				break
			}

			delay := r.backoff(attempt)
			trace = append(trace, driven.AttemptState{
				State: driven.StateRetrying, Provider: id, Attempt: attempt, Err: err.Error(),
			})
			logger.L().Debug("router: retrying backend",
				zap.String("backend", id), zap.Int("attempt", attempt),
				zap.Duration("backoff", delay), zap.Error(err))
			if err := r.sleep(ctx, delay); err != nil {
				return fail(callerErrOr(ctx, err))
			}
		}
		logger.L().Warn("router: backend exhausted",
			zap.String("backend", id), zap.Int("attempts", b.MaxAttempts), zap.Error(lastErr))
	}

	msg := ""
	if lastErr != nil {
		msg = lastErr.Error()
	}
	trace = append(trace, driven.AttemptState{State: driven.StateProviderExhausted, Err: msg})
	return fail(fmt.Errorf("%w: %d provider(s) exhausted after %d attempt(s): %s",
		domain.ErrGenerationBackendUnavailable, len(order), total, msg))
}

// attempt runs fn under the backend's per-attempt timeout.
func (r *Router) attempt(ctx context.Context, b Backend, fn attemptFunc) (string, error) {
	if b.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}
	text, err := fn(ctx, b.Service)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !domain.IsRetryable(err) {
		// An attempt timeout that the adapter did not classify.
		err = &domain.ProviderError{Provider: b.ID, Code: "timeout", Message: err.Error(), Retryable: true, Cause: err}
	}
	return text, err
}

// resolve returns the backend order for a call. Unknown ids are skipped;
// an explicit preference naming no known backend is invalid.
func (r *Router) resolve(pref []string) ([]string, error) {
	if len(pref) == 0 {
		return r.order, nil
	}
	seen := make(map[string]bool, len(pref))
	order := make([]string, 0, len(pref))
	var unknown []string
	for _, id := range pref {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := r.backends[id]; !ok {
			unknown = append(unknown, id)
			continue
		}
		order = append(order, id)
	}
	if len(unknown) > 0 {
		logger.Warn("router: ignoring unknown backend(s): %s", strings.Join(unknown, ", "))
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("%w: no configured backend in preference %v", domain.ErrGenerationRequestInvalid, pref)
	}
	return order, nil
}

// backoff returns the delay after the given failed attempt:
// base*2^(attempt-1) capped at maxDelay, half fixed and half jittered.
func (r *Router) backoff(attempt int) time.Duration {
	d := r.baseDelay
	for i := 1; i < attempt && d < r.maxDelay; i++ {
		d *= 2
	}
	if d > r.maxDelay {
		d = r.maxDelay
	}
	half := int64(d / 2)
	return time.Duration(half + r.jitter(int64(d)-half))
}

// callerErr reports the caller's own deadline or cancellation.
func callerErr(ctx context.Context) error {
	switch err := ctx.Err(); {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("generation: %w", domain.ErrTimeout)
	default:
		return err
	}
}

func callerErrOr(ctx context.Context, fallback error) error {
	if err := callerErr(ctx); err != nil {
		return err
	}
	return fallback
}

// sleepCtx waits on a timer so cancellation interrupts the backoff.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
