package policy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gzhole/agentlock/internal/action"
	"github.com/gzhole/agentlock/internal/burst"
	"github.com/gzhole/agentlock/internal/guardian"
	"github.com/gzhole/agentlock/internal/state"
)

// Guard is one independent check of the pipeline. A guard returns ALLOW when
// it has no objection; an error means the guard could not decide.
type Guard interface {
	Name() string
	Check(ctx context.Context, c *action.Candidate, now time.Time) (Result, error)
}

// StateView is the read side of the state store the guards consult.
type StateView interface {
	LookupAsset(target string) state.Asset
	TrustScore(source string) float64
}

var (
	errNilCandidate    = errors.New("nil action candidate")
	errMissingSource   = errors.New("precondition without source")
	errTrustOutOfRange = errors.New("trust score outside [0,1]")
	errInvalidTier     = errors.New("asset tier is negative")
	errInvalidRisk     = errors.New("invalid risk level")
)

type actionSet map[string]bool

func newActionSet(actions []string) actionSet {
	s := make(actionSet, len(actions))
	for _, a := range actions {
		s[a] = true
	}
	return s
}

// tier0Guard blocks disruptive actions against Tier-0 assets.
type tier0Guard struct {
	disruptive actionSet
	state      StateView
}

func (g *tier0Guard) Name() string { return GuardTier0 }

func (g *tier0Guard) Check(_ context.Context, c *action.Candidate, _ time.Time) (Result, error) {
	if !g.disruptive[c.ActionType] {
		return allow(), nil
	}
	asset := g.state.LookupAsset(c.Target)
	if asset.Tier < 0 {
		return Result{}, fmt.Errorf("%w: %q has tier %d", errInvalidTier, c.Target, asset.Tier)
	}
	if asset.Tier == 0 {
		return Result{
			Verdict: VerdictBlock,
			Reason:  fmt.Sprintf("Tier-0 protection: cannot disrupt Tier-0 asset '%s'", c.Target),
			Guard:   GuardTier0,
		}, nil
	}
	return allow(), nil
}

// provenanceGuard requires evidence from a sufficiently trusted source before
// a disruptive action.
type provenanceGuard struct {
	disruptive actionSet
	state      StateView
	threshold  float64
}

func (g *provenanceGuard) Name() string { return GuardProvenance }

func (g *provenanceGuard) Check(_ context.Context, c *action.Candidate, _ time.Time) (Result, error) {
	if !g.disruptive[c.ActionType] {
		return allow(), nil
	}
	if len(c.Preconditions) == 0 {
		return Result{
			Verdict: VerdictBlock,
			Reason:  "Provenance: no evidence provided",
			Guard:   GuardProvenance,
		}, nil
	}

	maxTrust := 0.0
	for i, pc := range c.Preconditions {
		if pc.Source == "" {
			return Result{}, fmt.Errorf("%w (index %d)", errMissingSource, i)
		}
		t := g.state.TrustScore(pc.Source)
		if math.IsNaN(t) || t < 0 || t > 1 {
			return Result{}, fmt.Errorf("%w: %q = %v", errTrustOutOfRange, pc.Source, t)
		}
		maxTrust = math.Max(maxTrust, t)
	}

	if maxTrust < g.threshold {
		return Result{
			Verdict: VerdictBlock,
			Reason:  fmt.Sprintf("Provenance: trust %.2f < %.2f", maxTrust, g.threshold),
			Guard:   GuardProvenance,
		}, nil
	}
	return allow(), nil
}

// injectionGuard blocks access-control changes whose justification carries
// an instruction marker.
type injectionGuard struct {
	accessControl actionSet
	scanner       *guardian.Scanner
}

func (g *injectionGuard) Name() string { return GuardInjection }

func (g *injectionGuard) Check(_ context.Context, c *action.Candidate, _ time.Time) (Result, error) {
	if !g.accessControl[c.ActionType] {
		return allow(), nil
	}
	rep := g.scanner.Scan(c.Justification)
	if m, ok := rep.Marker(); ok {
		return Result{
			Verdict: VerdictBlock,
			Reason:  fmt.Sprintf("Prompt injection: justification contains instruction marker '%s'", m),
			Guard:   GuardInjection,
		}, nil
	}
	if len(rep.Signals) > 0 {
		log.WithField("signals", rep.SignalIDs()).
			Infof("advisory injection signals on %s", c.ActionType)
	}
	return allow(), nil
}

// burstGuard escalates repeated MEDIUM-risk actions of one kind. The engine
// records each attempt; the guard only counts.
type burstGuard struct {
	detector *burst.Detector
}

func (g *burstGuard) Name() string { return GuardBurst }

func (g *burstGuard) Check(_ context.Context, c *action.Candidate, now time.Time) (Result, error) {
	if !c.RiskLevel.Valid() {
		return Result{}, fmt.Errorf("%w: %q", errInvalidRisk, c.RiskLevel)
	}
	if c.RiskLevel != action.RiskMedium {
		return allow(), nil
	}
	n := g.detector.Count(c.ActionType, now)
	if n >= g.detector.Threshold() {
		return Result{
			Verdict: VerdictEscalate,
			Reason: fmt.Sprintf("Burst: %d MEDIUM-risk '%s' actions within %s; human review required",
				n, c.ActionType, formatWindow(g.detector.Window())),
			Guard: GuardBurst,
		}, nil
	}
	return allow(), nil
}

// formatWindow renders whole-second windows as "60s" rather than "1m0s".
func formatWindow(d time.Duration) string {
	if d%time.Second == 0 {
		return fmt.Sprintf("%ds", int64(d/time.Second))
	}
	return d.String()
}
