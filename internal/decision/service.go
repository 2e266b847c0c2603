// Package decision runs the request flow around the guardrail pipeline:
// sanitize the log, obtain a candidate from the proposer, evaluate it and
// record the outcome.
package decision

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gzhole/agentlock/internal/action"
	"github.com/gzhole/agentlock/internal/audit"
	"github.com/gzhole/agentlock/internal/ledger"
	"github.com/gzhole/agentlock/internal/logger"
	"github.com/gzhole/agentlock/internal/policy"
	"github.com/gzhole/agentlock/internal/proposer"
	"github.com/gzhole/agentlock/internal/redact"
	"github.com/gzhole/agentlock/internal/trust"
)

var log = logger.New("decision")

// Response is the answer to one decision request. Action is set only when
// the verdict is ALLOW.
type Response struct {
	DecisionID     string            `json:"decision_id"`
	Verdict        policy.Verdict    `json:"verdict"`
	Action         *action.Candidate `json:"action"`
	Reason         string            `json:"reason"`
	Guard          string            `json:"guard,omitempty"`
	Fallback       bool              `json:"fallback,omitempty"`
	FallbackReason string            `json:"fallback_reason,omitempty"`

	// Candidate is the evaluated action regardless of verdict, for local
	// callers such as the review prompt and replay.
	Candidate *action.Candidate `json:"-"`
}

// Recorder persists decisions; implemented by *ledger.Ledger.
type Recorder interface {
	Record(entry ledger.Entry) error
}

// Service wires proposer, engine, learner and the audit trail together.
type Service struct {
	engine   *policy.Engine
	learner  *trust.Learner
	proposer proposer.Proposer
	timeout  time.Duration
	audit    audit.Sink
	ledger   Recorder
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithTimeout bounds each proposer call.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithAudit sends one event per decision to sink.
func WithAudit(sink audit.Sink) Option {
	return func(s *Service) { s.audit = sink }
}

// WithLedger records every decision with r.
func WithLedger(r Recorder) Option {
	return func(s *Service) { s.ledger = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(engine *policy.Engine, learner *trust.Learner, p proposer.Proposer, opts ...Option) *Service {
	s := &Service{
		engine:   engine,
		learner:  learner,
		proposer: p,
		timeout:  proposer.DefaultTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine returns the underlying policy engine.
func (s *Service) Engine() *policy.Engine {
	return s.engine
}

// Sanitize returns a copy of rec with credentials removed from its payload.
func Sanitize(rec proposer.LogRecord) proposer.LogRecord {
	return proposer.LogRecord{
		ID:      rec.ID,
		Source:  rec.Source,
		Payload: redact.Payload(rec.Payload),
	}
}

// Decide produces a verdict for one log record. Proposer trouble degrades to
// the placeholder candidate; a pipeline failure is returned as
// *policy.EvalError together with the decision id it was audited under.
func (s *Service) Decide(ctx context.Context, rec proposer.LogRecord) (Response, error) {
	sanitized := Sanitize(rec)
	out := proposer.Propose(ctx, s.proposer, sanitized, s.timeout)
	return s.decide(ctx, sanitized, out)
}

// DecideCandidate evaluates an already proposed candidate, skipping the
// proposer. Used by the CLI.
func (s *Service) DecideCandidate(ctx context.Context, rec proposer.LogRecord, c *action.Candidate) (Response, error) {
	return s.decide(ctx, Sanitize(rec), proposer.Outcome{Candidate: c})
}

func (s *Service) decide(ctx context.Context, rec proposer.LogRecord, out proposer.Outcome) (Response, error) {
	now := s.now()
	resp := Response{
		DecisionID:     uuid.NewString(),
		Fallback:       out.Fallback,
		FallbackReason: out.FallbackReason,
		Candidate:      out.Candidate,
	}

	res, err := s.engine.EvaluateAt(ctx, out.Candidate, now)
	if err != nil {
		s.record(now, rec, resp, err)
		return resp, err
	}

	resp.Verdict = res.Verdict
	resp.Reason = res.Reason
	resp.Guard = res.Guard
	if res.Verdict == policy.VerdictAllow {
		resp.Action = out.Candidate
	}
	s.record(now, rec, resp, nil)
	return resp, nil
}

// record writes the audit event and ledger row. Failures are logged; the
// decision itself stands.
func (s *Service) record(now time.Time, rec proposer.LogRecord, resp Response, evalErr error) {
	ev := audit.Event{
		Timestamp:      now.UTC().Format(time.RFC3339),
		DecisionID:     resp.DecisionID,
		LogID:          rec.ID,
		LogSource:      rec.Source,
		Verdict:        string(resp.Verdict),
		Guard:          resp.Guard,
		Reason:         resp.Reason,
		Fallback:       resp.Fallback,
		FallbackReason: resp.FallbackReason,
	}
	if c := resp.Candidate; c != nil {
		ev.ActionType = c.ActionType
		ev.Target = c.Target
		ev.RiskLevel = string(c.RiskLevel)
		ev.Justification = c.Justification
	}
	if evalErr != nil {
		ev.Error = evalErr.Error()
		var ee *policy.EvalError
		if errors.As(evalErr, &ee) {
			ev.Guard = ee.Guard
		}
	}

	if s.audit != nil {
		if err := s.audit.Log(ev); err != nil {
			log.WithError(err).Warn("failed to write audit event")
		}
	}

	if s.ledger != nil && evalErr == nil {
		entry := ledger.Entry{
			ID:        resp.DecisionID,
			LogID:     rec.ID,
			LogSource: rec.Source,
			Verdict:   string(resp.Verdict),
			Guard:     resp.Guard,
			Reason:    resp.Reason,
			Fallback:  resp.Fallback,
			CreatedAt: now,
		}
		if resp.Candidate != nil {
			if data, err := json.Marshal(resp.Candidate); err == nil {
				entry.ActionJSON = redact.Redact(string(data))
			}
		}
		if err := s.ledger.Record(entry); err != nil {
			log.WithError(err).Warn("failed to record decision")
		}
	}
}

// Feedback applies an outcome label to the given sources. A nil eta uses the
// policy's learning rate.
func (s *Service) Feedback(sources []string, outcome trust.Outcome, eta *float64) (map[string]float64, error) {
	rate := s.engine.Policy().Thresholds.LearningRate
	if eta != nil {
		rate = *eta
	}
	return s.learner.UpdateFromOutcome(sources, outcome, rate)
}
