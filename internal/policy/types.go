package policy

import (
	"fmt"
	"time"
)

// Verdict is the outcome of evaluating one action candidate.
type Verdict string

const (
	VerdictAllow    Verdict = "ALLOW"
	VerdictBlock    Verdict = "BLOCK"
	VerdictEscalate Verdict = "ESCALATE"
)

// Guard names, in pipeline order.
const (
	GuardTier0      = "tier0"
	GuardProvenance = "provenance"
	GuardInjection  = "injection"
	GuardBurst      = "burst"
)

// GuardInput is reported by EvalError when the candidate itself is unusable
// before any guard runs.
const GuardInput = "input"

// ReasonPassed is the reason attached to an ALLOW from the full pipeline.
const ReasonPassed = "Passed all guardrails."

// Policy is the guardrail configuration loaded from YAML: thresholds plus
// the action sets each guard consults.
type Policy struct {
	Version              string     `yaml:"version"`
	Thresholds           Thresholds `yaml:"thresholds"`
	DisruptiveActions    []string   `yaml:"disruptive_actions"`
	AccessControlActions []string   `yaml:"access_control_actions"`
	InjectionMarkers     []string   `yaml:"injection_markers"`
}

// Thresholds holds the numeric limits of the provenance and burst guards and
// the default trust learning rate.
type Thresholds struct {
	// Trust is the minimum provenance trust for disruptive actions.
	Trust float64 `yaml:"trust"`
	// BurstWindow is the sliding window for burst counting ("60s").
	BurstWindow time.Duration `yaml:"burst_window"`
	// BurstCount is the number of MEDIUM actions of one kind within the
	// window that triggers escalation.
	BurstCount int `yaml:"burst_count"`
	// LearningRate is the default η for trust feedback.
	LearningRate float64 `yaml:"learning_rate"`
}

// Result is the verdict of the pipeline. Guard names the guard that decided;
// it is empty for an ALLOW from the full pipeline.
type Result struct {
	Verdict Verdict `json:"verdict"`
	Reason  string  `json:"reason"`
	Guard   string  `json:"guard,omitempty"`
}

func allow() Result { return Result{Verdict: VerdictAllow} }

// EvalError reports an internal failure inside a guard. It is never turned
// into a verdict. The message names only the guard; Unwrap exposes the cause.
type EvalError struct {
	Guard string
	Err   error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("policy evaluation failed in guard %s", e.Guard)
}

func (e *EvalError) Unwrap() error { return e.Err }
