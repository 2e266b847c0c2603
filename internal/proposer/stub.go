package proposer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gzhole/agentlock/internal/action"
)

// Stub is a deterministic proposer that needs no model. It classifies
// Bot-IoT flows by their dataset label and applies a simple IOC heuristic to
// everything else.
type Stub struct{}

var benignLabels = map[string]bool{"benign": true, "normal": true, "": true}

var attackFlags = map[string]bool{"1": true, "true": true, "attack": true, "attacks": true}

var iocEventTypes = map[string]bool{
	"authentication_failure": true,
	"network_connection":     true,
}

// Propose classifies the record. A payload that carries its own action_type
// is a replayed case: its candidate fields replace the classified ones.
func (Stub) Propose(_ context.Context, rec LogRecord) (*action.Candidate, error) {
	payload := rec.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	c := classify(rec, payload)
	if _, ok := payload["action_type"]; ok {
		// evidence of a replayed action comes only from the case itself
		c.Preconditions = []action.Precondition{}
		c.RollbackPlan = nil
		replayed, err := overlay(c, payload)
		if err != nil {
			return nil, fmt.Errorf("%w: replayed action: %v", ErrUnusable, err)
		}
		return replayed, nil
	}
	return c, nil
}

func classify(rec LogRecord, payload map[string]any) *action.Candidate {
	if strings.EqualFold(strings.TrimSpace(rec.Source), "bot_iot") {
		return classifyBotIoT(payload)
	}
	if isIOC(payload) {
		return isolateForIOC(rec.ID, payload)
	}
	return &action.Candidate{
		ActionType:    "TAG_FLOW",
		Target:        flowTarget(payload),
		Justification: "Default low-risk tagging action.",
		RiskLevel:     action.RiskLow,
		Preconditions: []action.Precondition{},
	}
}

func classifyBotIoT(payload map[string]any) *action.Candidate {
	category := strings.ToLower(strings.TrimSpace(stringField(payload, "category")))
	flag := strings.ToLower(strings.TrimSpace(stringField(payload, "attack")))

	c := &action.Candidate{
		Target:        flowTarget(payload),
		Preconditions: []action.Precondition{},
	}
	if attackFlags[flag] || !benignLabels[category] {
		label := category
		if label == "" {
			label = flag
		}
		if label == "" {
			label = "attack"
		}
		c.ActionType = "ISOLATE_HOST"
		c.RiskLevel = action.RiskHigh
		c.Justification = fmt.Sprintf("Bot-IoT attack flow (label=%s)", label)
		return c
	}

	label := category
	if label == "" {
		label = "benign"
	}
	c.ActionType = "TAG_FLOW"
	c.RiskLevel = action.RiskLow
	c.Justification = fmt.Sprintf("Benign Bot-IoT flow (label=%s)", label)
	return c
}

func isIOC(payload map[string]any) bool {
	if !iocEventTypes[stringField(payload, "event_type")] {
		return false
	}
	if stringField(payload, "ioc_label") == "known_c2" {
		return true
	}
	suspicious, _ := payload["suspicious"].(bool)
	return suspicious
}

func isolateForIOC(logID string, payload map[string]any) *action.Candidate {
	target := firstString(payload, "target_host", "dst_ip", "saddr", "src_ip")
	if target == "" {
		target = "unknown_src"
	}
	ref := logID
	if ref == "" {
		ref = "artifact-1"
	}
	rollback := "unisolate_" + target
	return &action.Candidate{
		ActionType:    "ISOLATE_HOST",
		Target:        target,
		Justification: "IOC / suspicious auth activity",
		RiskLevel:     action.RiskHigh,
		Preconditions: []action.Precondition{{
			Name:        "c2_traffic_verified",
			Source:      "EDR_SentinelOne",
			ArtifactRef: ref,
			Confidence:  0.95,
		}},
		RollbackPlan: &rollback,
	}
}

func flowTarget(payload map[string]any) string {
	if t := firstString(payload, "saddr", "src_ip"); t != "" {
		return t
	}
	return "unknown_src"
}

func firstString(payload map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringField(payload, k); s != "" {
			return s
		}
	}
	return ""
}

// stringField renders scalar payload values; datasets store labels as
// strings, numbers or booleans interchangeably.
func stringField(payload map[string]any, key string) string {
	switch v := payload[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strings.TrimSuffix(fmt.Sprintf("%g", v), ".0")
	default:
		return fmt.Sprint(v)
	}
}

var candidateFields = []string{
	"action_type",
	"target",
	"justification",
	"risk_level",
	"preconditions",
	"rollback_plan",
}

// overlay merges the candidate fields present in payload over base.
func overlay(base *action.Candidate, payload map[string]any) (*action.Candidate, error) {
	merged := make(map[string]any)
	if base != nil {
		data, err := json.Marshal(base)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &merged); err != nil {
			return nil, err
		}
	}
	for _, k := range candidateFields {
		if v, ok := payload[k]; ok {
			merged[k] = v
		}
	}
	return action.FromMap(merged)
}
