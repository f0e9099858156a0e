// Package retry is the retry governor (component C2): it classifies an
// error as retryable or not and retries a retryable operation with
// exponential backoff and jitter, grounded on the classification scheme
// in the teacher's chainadapter.ChainError (error.go).
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/arcsign/evmrpc/rpc"
)

// Classification mirrors chainadapter.ErrorClassification: retryable
// errors are transient (timeouts, congestion), non-retryable ones are
// permanent (bad input, insufficient funds, a reverted call).
type Classification int

const (
	Retryable Classification = iota
	NonRetryable
)

func (c Classification) String() string {
	if c == Retryable {
		return "Retryable"
	}
	return "NonRetryable"
}

// Classifiable is implemented by errors that know their own retry
// classification; Classify consults it before any other rule. No error
// type in package rpc implements it: rpc errors are classified by their
// message and, for RPCError, by LooksLikeRevertData.
type Classifiable interface {
	Classification() Classification
}

// retryableSubstrings are node-reported error message fragments treated
// as transient (§4.2). Matching is substring/case-insensitive since node
// implementations do not agree on exact wording.
var retryableSubstrings = []string{
	"header not found",
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"temporarily unavailable",
	"temporary unavailable",
	"try again",
	"underpriced",
	"rate limit",
	"too many requests",
	"429",
	"internal error",
	"-32603",
	"server busy",
	"overloaded",
	"nonce too low",
	"network congestion",
	"EOF",
}

// nonRetryableSubstrings take precedence over retryableSubstrings: a
// revert or funds/signature problem is never worth retrying even if the
// message also happens to mention a timeout.
var nonRetryableSubstrings = []string{
	"insufficient funds",
	"revert",
	"invalid signature",
	"invalid sender",
	"already known",
	"nonce too high",
	"invalid transaction",
}

// Classify inspects err and decides whether retrying the operation that
// produced it could plausibly succeed (§4.2).
func Classify(err error) Classification {
	if err == nil {
		return NonRetryable
	}
	var c Classifiable
	if errors.As(err, &c) {
		return c.Classification()
	}

	// A node error whose data payload looks like ABI-encoded revert data
	// is never retried, regardless of what its message says (§4.2).
	var rpcErr *rpc.RPCError
	if errors.As(err, &rpcErr) && rpcErr.LooksLikeRevertData() {
		return NonRetryable
	}

	msg := strings.ToLower(err.Error())
	for _, s := range nonRetryableSubstrings {
		if strings.Contains(msg, strings.ToLower(s)) {
			return NonRetryable
		}
	}
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, strings.ToLower(s)) {
			return Retryable
		}
	}
	return NonRetryable
}

// Policy configures backoff (§4.2).
type Policy struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterMin    float64
	JitterMax    float64
}

// DefaultPolicy mirrors the teacher's error-path backoff constants
// (ethereum/adapter.go's 3s poll backoff, doubled to a ceiling) adapted
// to the governor's tighter defaults: 3 attempts, 200ms base, 5s ceiling.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		JitterMin:   0.10,
		JitterMax:   0.25,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 200 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 5 * time.Second
	}
	if p.JitterMax <= 0 {
		p.JitterMin, p.JitterMax = 0.10, 0.25
	}
	return p
}

// delay computes the backoff after failed attempt number attempt
// (1-indexed), i.e. the wait before attempt+1: base*2^(attempt-1)
// capped at MaxDelay, with uniform jitter in [JitterMin, JitterMax] added
// as a fraction of the capped delay.
func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	jitterFrac := p.JitterMin + rand.Float64()*(p.JitterMax-p.JitterMin)
	return d + time.Duration(float64(d)*jitterFrac)
}

// ExhaustedError is returned when every attempt failed, carrying the
// attempt count and every suppressed cause in order (§4.2, §7
// RetryExhausted).
type ExhaustedError struct {
	Attempts int
	Elapsed  time.Duration
	Causes   []error
}

func (e *ExhaustedError) Error() string {
	last := "unknown error"
	if len(e.Causes) > 0 {
		last = e.Causes[len(e.Causes)-1].Error()
	}
	return fmt.Sprintf("retry exhausted after %d attempt(s) in %s: %s", e.Attempts, e.Elapsed, last)
}

func (e *ExhaustedError) Unwrap() error {
	if len(e.Causes) == 0 {
		return nil
	}
	return e.Causes[len(e.Causes)-1]
}

// Do runs op, retrying while Classify(err) == Retryable, up to
// policy.MaxAttempts. Sleeping between attempts honors ctx cancellation
// (§4.2 "interruption during backoff sleep surfaces as ctx.Err(), not as
// a retry-exhausted error").
func Do[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error)) (T, error) {
	policy = policy.withDefaults()
	var zero T
	var causes []error
	start := time.Now()

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		causes = append(causes, err)

		if Classify(err) != Retryable || attempt == policy.MaxAttempts {
			return zero, &ExhaustedError{Attempts: attempt, Elapsed: time.Since(start), Causes: causes}
		}

		select {
		case <-time.After(policy.delay(attempt)):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	return zero, &ExhaustedError{Attempts: policy.MaxAttempts, Elapsed: time.Since(start), Causes: causes}
}
