// Package action defines the candidate action an agent proposes and the
// boundary checks applied before it reaches the guardrail pipeline.
package action

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidCandidate is returned when a proposed action cannot be parsed or
// fails validation.
var ErrInvalidCandidate = errors.New("invalid action candidate")

type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Valid reports whether r is one of the known risk levels.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// ParseRiskLevel converts a case-insensitive string into a RiskLevel.
func ParseRiskLevel(s string) (RiskLevel, error) {
	r := RiskLevel(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown risk level %q (valid: LOW, MEDIUM, HIGH)", s)
	}
	return r, nil
}

// Precondition is a claim of supporting evidence and where it came from.
type Precondition struct {
	Name        string  `json:"name" yaml:"name"`
	Source      string  `json:"source" yaml:"source" validate:"required"`
	ArtifactRef string  `json:"artifact_ref" yaml:"artifact_ref"`
	Confidence  float64 `json:"confidence" yaml:"confidence" validate:"gte=0,lte=1"`
}

// Candidate is a single proposed action. It is built once at the system
// boundary and treated as read-only afterwards.
type Candidate struct {
	ActionType    string         `json:"action_type" yaml:"action_type" validate:"required"`
	Target        string         `json:"target" yaml:"target"`
	Justification string         `json:"justification" yaml:"justification"`
	RiskLevel     RiskLevel      `json:"risk_level" yaml:"risk_level" validate:"required,oneof=LOW MEDIUM HIGH"`
	Preconditions []Precondition `json:"preconditions" yaml:"preconditions" validate:"dive"`
	RollbackPlan  *string        `json:"rollback_plan" yaml:"rollback_plan,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Parse decodes a JSON document into a normalized, validated Candidate.
func Parse(data []byte) (*Candidate, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidCandidate)
	}
	var c Candidate
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCandidate, err)
	}
	c.Normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// FromMap builds a Candidate from a loosely typed mapping, such as a decoded
// JSON object or a protobuf Struct.
func FromMap(m map[string]any) (*Candidate, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil mapping", ErrInvalidCandidate)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCandidate, err)
	}
	return Parse(data)
}

// Normalize canonicalizes case and whitespace of the identifying fields.
func (c *Candidate) Normalize() {
	c.ActionType = strings.ToUpper(strings.TrimSpace(c.ActionType))
	c.Target = strings.TrimSpace(c.Target)
	c.RiskLevel = RiskLevel(strings.ToUpper(strings.TrimSpace(string(c.RiskLevel))))
	for i := range c.Preconditions {
		c.Preconditions[i].Source = strings.TrimSpace(c.Preconditions[i].Source)
	}
	if c.Preconditions == nil {
		c.Preconditions = []Precondition{}
	}
}

// Validate checks the candidate against its struct constraints.
func (c *Candidate) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidCandidate, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidCandidate, strings.Join(msgs, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Namespace())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Namespace(), fe.Param())
	case "gte", "lte":
		return fmt.Sprintf("%s must be within [0,1]", fe.Namespace())
	default:
		return fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag())
	}
}

// Sources returns the provenance sources cited by the candidate's
// preconditions, in order, without duplicates.
func (c *Candidate) Sources() []string {
	seen := make(map[string]bool, len(c.Preconditions))
	var out []string
	for _, pc := range c.Preconditions {
		if seen[pc.Source] {
			continue
		}
		seen[pc.Source] = true
		out = append(out, pc.Source)
	}
	return out
}

// Placeholder returns the maximally conservative candidate substituted when
// the proposer produced nothing usable: non-disruptive, no target, no evidence.
func Placeholder() *Candidate {
	return &Candidate{
		ActionType:    "ADD_TAG",
		Target:        "",
		Justification: "no usable action proposed; conservative placeholder",
		RiskLevel:     RiskLow,
		Preconditions: []Precondition{},
	}
}
