package policy

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gzhole/agentlock/internal/action"
	"github.com/gzhole/agentlock/internal/burst"
	"github.com/gzhole/agentlock/internal/guardian"
)

// Engine runs the guard pipeline in fixed order and stops at the first
// guard that does not allow. It holds no mutable state of its own; burst
// history lives in the state store behind the detector.
type Engine struct {
	policy *Policy
	guards []Guard
	burst  *burst.Detector
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now for burst accounting.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// EventLog is the event side of the state store used for burst detection.
type EventLog = burst.EventLog

// NewEngine builds the pipeline tier0 → provenance → injection → burst
// from a validated policy.
func NewEngine(p *Policy, st StateView, events EventLog, opts ...Option) (*Engine, error) {
	if p == nil {
		p = DefaultPolicy()
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if st == nil || events == nil {
		return nil, errors.New("policy engine needs a state view and an event log")
	}

	disruptive := newActionSet(p.DisruptiveActions)
	detector := burst.NewDetector(events, p.Thresholds.BurstWindow, p.Thresholds.BurstCount)
	e := &Engine{
		policy: p,
		burst:  detector,
		now:    time.Now,
		guards: []Guard{
			&tier0Guard{disruptive: disruptive, state: st},
			&provenanceGuard{disruptive: disruptive, state: st, threshold: p.Thresholds.Trust},
			&injectionGuard{
				accessControl: newActionSet(p.AccessControlActions),
				scanner:       guardian.NewScanner(p.InjectionMarkers),
			},
			&burstGuard{detector: detector},
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Policy returns the engine's policy (for inspection/testing).
func (e *Engine) Policy() *Policy {
	return e.policy
}

// Guards returns the guard names in evaluation order.
func (e *Engine) Guards() []string {
	names := make([]string, len(e.guards))
	for i, g := range e.guards {
		names[i] = g.Name()
	}
	return names
}

// Evaluate decides one candidate at the engine's current time.
func (e *Engine) Evaluate(ctx context.Context, c *action.Candidate) (Result, error) {
	return e.EvaluateAt(ctx, c, e.now())
}

// EvaluateAt decides one candidate as of now. Every MEDIUM-risk attempt is
// recorded for burst detection before any guard runs, so attempts blocked by
// an earlier guard still count. Guard failures come back as *EvalError and
// never as a verdict.
func (e *Engine) EvaluateAt(ctx context.Context, c *action.Candidate, now time.Time) (Result, error) {
	if c == nil {
		return Result{}, &EvalError{Guard: GuardInput, Err: errNilCandidate}
	}

	e.burst.Record(c.ActionType, c.RiskLevel, now)

	for _, g := range e.guards {
		res, err := g.Check(ctx, c, now)
		if err != nil {
			log.WithError(err).WithField("guard", g.Name()).Error("guard failed")
			return Result{}, &EvalError{Guard: g.Name(), Err: err}
		}
		if res.Verdict != VerdictAllow {
			log.WithFields(logrus.Fields{
				"guard":   g.Name(),
				"verdict": res.Verdict,
				"action":  c.ActionType,
				"target":  c.Target,
			}).Debug(res.Reason)
			return res, nil
		}
	}
	return Result{Verdict: VerdictAllow, Reason: ReasonPassed}, nil
}
