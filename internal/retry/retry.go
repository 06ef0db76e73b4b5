package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/athena"
	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
)

const (
	DefaultBaseDelay = time.Second
	DefaultMaxDelay  = 16 * time.Second
)

// CappedExponential doubles the delay after every call to NextBackOff,
// starting at Base and never exceeding Max. It has no jitter so delays
// depend only on the attempt count.
type CappedExponential struct {
	Base time.Duration
	Max  time.Duration

	attempt int
}

var _ backoff.BackOff = (*CappedExponential)(nil)

func (b *CappedExponential) NextBackOff() time.Duration {
	d := b.Max
	if b.attempt < 32 {
		if next := b.Base << uint(b.attempt); next > 0 && next < b.Max {
			d = next
		}
	}
	b.attempt++
	return d
}

func (b *CappedExponential) Reset() {
	b.attempt = 0
}

type Option func(*Policy)

func WithLogger(l *zap.Logger) Option {
	return func(p *Policy) {
		p.logger = l
	}
}

func WithBaseDelay(d time.Duration) Option {
	return func(p *Policy) {
		p.BaseDelay = d
	}
}

func WithMaxDelay(d time.Duration) Option {
	return func(p *Policy) {
		p.MaxDelay = d
	}
}

// WithMaxAttempts bounds the number of retries, 0 means unbounded.
func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		p.MaxAttempts = n
	}
}

// WithRetryable replaces the classification of retryable errors.
func WithRetryable(fn func(error) bool) Option {
	return func(p *Policy) {
		p.retryable = fn
	}
}

// WithNotify registers fn to observe every retry before its wait.
func WithNotify(fn backoff.Notify) Option {
	return func(p *Policy) {
		p.notify = fn
	}
}

// Policy retries throttled calls with a capped exponential backoff.
type Policy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int

	logger    *zap.Logger
	retryable func(error) bool
	notify    backoff.Notify
}

func New(opts ...Option) *Policy {
	p := &Policy{
		BaseDelay: DefaultBaseDelay,
		MaxDelay:  DefaultMaxDelay,
		logger:    zap.NewNop(),
		retryable: IsThrottle,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// BackOff returns a fresh backoff sequence for one call.
func (p *Policy) BackOff() backoff.BackOff {
	b := &CappedExponential{
		Base: p.BaseDelay,
		Max:  p.MaxDelay,
	}
	return backoff.WithMaxRetries(b, uint64(max(p.MaxAttempts, 0)))
}

// Do invokes fn until it succeeds, fails with an error the policy does not
// retry, the attempt budget is spent or ctx is done.
func Do[T any](ctx context.Context, p *Policy, fn func() (T, error)) (T, error) {
	var v T
	op := func() error {
		var err error
		v, err = fn()
		if err != nil && !p.retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	attempt := 1
	notify := func(err error, d time.Duration) {
		attempt++
		p.logger.Warn("throttled, backing off",
			zap.Int("next_attempt", attempt),
			zap.Duration("delay", d),
			zap.Error(err),
		)
		if p.notify != nil {
			p.notify(err, d)
		}
	}

	err := backoff.RetryNotify(op, backoff.WithContext(p.BackOff(), ctx), notify)
	if err != nil && ctx.Err() != nil {
		err = fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return v, err
}

// IsThrottle reports whether err is an AWS rate limiting error.
func IsThrottle(err error) bool {
	if err == nil {
		return false
	}
	if request.IsErrorThrottle(err) {
		return true
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case athena.ErrCodeTooManyRequestsException, "ThrottlingException", "Throttling":
			return true
		}
	}
	return false
}
