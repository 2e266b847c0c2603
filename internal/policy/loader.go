package policy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/gzhole/agentlock/internal/logger"
)

var log = logger.New("policy")

// Defaults of the reference deployment.
const (
	DefaultTrustThreshold = 0.8
	DefaultBurstWindow    = 60 * time.Second
	DefaultBurstCount     = 4
	DefaultLearningRate   = 0.2
)

// EnvPrefix is the prefix of environment overrides (AGENTLOCK_TRUST_THRESHOLD, ...).
const EnvPrefix = "agentlock"

// Load reads a policy file. A missing file yields DefaultPolicy. Unset fields
// take their defaults, then environment overrides apply.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debugf("policy file %s not found, using defaults", path)
			p := DefaultPolicy()
			if err := p.ApplyEnv(); err != nil {
				return nil, err
			}
			if err := p.Validate(); err != nil {
				return nil, err
			}
			return p, nil
		}
		return nil, err
	}

	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", path, err)
	}
	if err := p.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("policy %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes policy YAML over DefaultPolicy, so absent fields keep their
// defaults. Unknown fields are rejected so that a typo in a threshold name
// cannot silently fall back to the default.
func Parse(data []byte) (*Policy, error) {
	p := DefaultPolicy()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	p.DisruptiveActions = normalizeActions(p.DisruptiveActions)
	p.AccessControlActions = normalizeActions(p.AccessControlActions)
	return p, nil
}

func normalizeActions(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool)
	for _, a := range in {
		a = strings.ToUpper(strings.TrimSpace(a))
		if a != "" && !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}

// envOverrides holds the environment overrides of the policy thresholds.
// Nil fields were not set.
type envOverrides struct {
	TrustThreshold *float64       `split_words:"true"`
	BurstWindow    *time.Duration `split_words:"true"`
	BurstCount     *int           `split_words:"true"`
	LearningRate   *float64       `split_words:"true"`
}

// ApplyEnv overrides thresholds from AGENTLOCK_* environment variables.
func (p *Policy) ApplyEnv() error {
	var o envOverrides
	if err := envconfig.Process(EnvPrefix, &o); err != nil {
		return fmt.Errorf("policy env overrides: %w", err)
	}
	if o.TrustThreshold != nil {
		p.Thresholds.Trust = *o.TrustThreshold
	}
	if o.BurstWindow != nil {
		p.Thresholds.BurstWindow = *o.BurstWindow
	}
	if o.BurstCount != nil {
		p.Thresholds.BurstCount = *o.BurstCount
	}
	if o.LearningRate != nil {
		p.Thresholds.LearningRate = *o.LearningRate
	}
	return nil
}

// Validate checks threshold ranges and that the action and marker lists are
// not empty.
func (p *Policy) Validate() error {
	var errs []string

	t := p.Thresholds
	if math.IsNaN(t.Trust) || t.Trust < 0 || t.Trust > 1 {
		errs = append(errs, fmt.Sprintf("thresholds.trust must be within [0,1] (got %v)", t.Trust))
	}
	if t.BurstWindow <= 0 {
		errs = append(errs, fmt.Sprintf("thresholds.burst_window must be positive (got %s)", t.BurstWindow))
	}
	if t.BurstCount < 1 {
		errs = append(errs, fmt.Sprintf("thresholds.burst_count must be >= 1 (got %d)", t.BurstCount))
	}
	if math.IsNaN(t.LearningRate) || t.LearningRate <= 0 || t.LearningRate > 1 {
		errs = append(errs, fmt.Sprintf("thresholds.learning_rate must be within (0,1] (got %v)", t.LearningRate))
	}
	if len(p.DisruptiveActions) == 0 {
		errs = append(errs, "disruptive_actions must not be empty")
	}
	if len(p.InjectionMarkers) == 0 {
		errs = append(errs, "injection_markers must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid policy:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func DefaultPolicy() *Policy {
	return &Policy{
		Version: "1",
		Thresholds: Thresholds{
			Trust:        DefaultTrustThreshold,
			BurstWindow:  DefaultBurstWindow,
			BurstCount:   DefaultBurstCount,
			LearningRate: DefaultLearningRate,
		},
		DisruptiveActions: []string{
			"ISOLATE_HOST",
			"SHUTDOWN_HOST",
			"SHUTDOWN",
			"LOCK_ACCOUNT",
			"REVOKE_USER",
			"ADD_FIREWALL_RULE",
			"MODIFY_ACL",
		},
		AccessControlActions: []string{
			"ADD_FIREWALL_RULE",
			"MODIFY_ACL",
		},
		InjectionMarkers: []string{"whitelist", "ignore", "override"},
	}
}
