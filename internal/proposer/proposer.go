// Package proposer obtains candidate actions for incoming log records and
// applies the fail-safe policy when no usable candidate comes back.
package proposer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gzhole/agentlock/internal/action"
	"github.com/gzhole/agentlock/internal/logger"
)

var log = logger.New("proposer")

// ErrUnusable marks a proposer response that could not be turned into a
// valid candidate.
var ErrUnusable = errors.New("proposer returned no usable action")

// DefaultTimeout bounds a single proposer call.
const DefaultTimeout = 10 * time.Second

// LogRecord is a (sanitized) security log as submitted for a decision.
type LogRecord struct {
	ID      string         `json:"id" binding:"required"`
	Source  string         `json:"source" binding:"required"`
	Payload map[string]any `json:"payload"`
}

// Proposer turns a log record into a candidate action.
type Proposer interface {
	Propose(ctx context.Context, rec LogRecord) (*action.Candidate, error)
}

// Outcome is either a proposed candidate or the conservative placeholder
// substituted after a failure, with the reason recorded.
type Outcome struct {
	Candidate      *action.Candidate
	Fallback       bool
	FallbackReason string
}

// Propose calls p under timeout. Errors, timeouts and invalid responses
// never escape: they yield the placeholder candidate, whatever the record
// payload contains.
func Propose(ctx context.Context, p Proposer, rec LogRecord, timeout time.Duration) Outcome {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	proposed, err := call(ctx, p, rec, timeout)
	if err != nil {
		log.WithError(err).WithField("log_id", rec.ID).Warn("proposer call failed")
		return fallback(err)
	}
	return Outcome{Candidate: proposed}
}

func call(ctx context.Context, p Proposer, rec LogRecord, timeout time.Duration) (*action.Candidate, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: no proposer configured", ErrUnusable)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		c   *action.Candidate
		err error
	}
	done := make(chan result, 1)
	go func() {
		c, err := p.Propose(ctx, rec)
		done <- result{c, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		if r.c == nil {
			return nil, fmt.Errorf("%w: empty response", ErrUnusable)
		}
		if err := r.c.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnusable, err)
		}
		return r.c, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("proposer: %w", ctx.Err())
	}
}

func fallback(err error) Outcome {
	return Outcome{
		Candidate:      action.Placeholder(),
		Fallback:       true,
		FallbackReason: err.Error(),
	}
}

// Kinds accepted by New.
const (
	KindStub = "stub"
	KindHTTP = "http"
	KindGRPC = "grpc"
)

// New builds the proposer named by kind. The returned close function
// releases any connection it holds.
func New(kind, endpoint string) (Proposer, func() error, error) {
	noop := func() error { return nil }
	switch kind {
	case KindStub, "":
		return Stub{}, noop, nil
	case KindHTTP:
		if endpoint == "" {
			return nil, nil, fmt.Errorf("http proposer requires an url")
		}
		return NewHTTPClient(endpoint, nil), noop, nil
	case KindGRPC:
		if endpoint == "" {
			return nil, nil, fmt.Errorf("grpc proposer requires an address")
		}
		c, err := NewGRPCClient(endpoint)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown proposer kind %q (valid: stub, http, grpc)", kind)
	}
}
