package llm

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"contenthub/backend/internal/logging"
)

// Retrying decorates a TextGenerator with exponential backoff and a per-attempt timeout.
type Retrying struct {
	next       TextGenerator
	maxRetries int
	timeout    time.Duration
	logger     *logging.Logger

	// newBackOff is swapped in tests to avoid real sleeps.
	newBackOff func() backoff.BackOff
}

// NewRetrying wraps next. maxRetries counts retries after the first attempt;
// a zero timeout leaves attempts bounded only by ctx.
func NewRetrying(next TextGenerator, maxRetries int, timeout time.Duration, logger *logging.Logger) *Retrying {
	if logger == nil {
		logger = logging.NewNop()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Retrying{
		next:       next,
		maxRetries: maxRetries,
		timeout:    timeout,
		logger:     logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 8 * time.Second
			return b
		},
	}
}

func (r *Retrying) Generate(ctx context.Context, prompt string) (string, error) {
	var text string
	op := func() error {
		attemptCtx := ctx
		if r.timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}
		out, err := r.next.Generate(attemptCtx, prompt)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrNotConfigured) {
				return backoff.Permanent(err)
			}
			return err
		}
		text = out
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), uint64(r.maxRetries)), ctx)
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("llm call failed, retrying", "model", r.next.Model(), "wait", wait, "error", err)
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return "", err
	}
	return text, nil
}

func (r *Retrying) Model() string { return r.next.Model() }
