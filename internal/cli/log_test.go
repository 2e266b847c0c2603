package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/gzhole/agentlock/internal/audit"
)

func sampleEvents() []audit.Event {
	return []audit.Event{
		{Timestamp: "2026-03-01T10:00:00Z", DecisionID: "d1", ActionType: "TAG_FLOW", Verdict: "ALLOW", Reason: "Passed all guardrails."},
		{Timestamp: "2026-03-01T10:00:01Z", DecisionID: "d2", ActionType: "SHUTDOWN", Target: "dc-01", Verdict: "BLOCK", Guard: "tier0", Reason: "Tier-0 protection"},
		{Timestamp: "2026-03-01T10:00:02Z", DecisionID: "d3", ActionType: "ISOLATE_HOST", Target: "app-01", Verdict: "ESCALATE", Guard: "provenance", Fallback: true, FallbackReason: "proposer timed out"},
		{Timestamp: "2026-03-01T10:00:03Z", DecisionID: "d3", ActionType: "ISOLATE_HOST", Verdict: "ESCALATE", Guard: "provenance", Reviewer: "denied"},
		{Timestamp: "2026-03-01T10:00:04Z", DecisionID: "d4", ActionType: "MODIFY_ACL", Guard: "injection", Error: "policy evaluation failed in guard injection"},
		{Timestamp: "2026-03-01T10:00:05Z", DecisionID: "d5", ActionType: "ADD_FIREWALL_RULE", Verdict: "BLOCK", Guard: "injection"},
	}
}

func TestFilterEvents(t *testing.T) {
	events := sampleEvents()

	tests := []struct {
		name string
		f    logFilter
		want []string
	}{
		{"no filter", logFilter{}, []string{"d1", "d2", "d3", "d3", "d4", "d5"}},
		{"verdict", logFilter{verdict: "block"}, []string{"d2", "d5"}},
		{"guard", logFilter{guard: "PROVENANCE"}, []string{"d3", "d3"}},
		{"fallback", logFilter{fallback: true}, []string{"d3"}},
		{"last", logFilter{last: 2}, []string{"d4", "d5"}},
		{"verdict and last", logFilter{verdict: "BLOCK", last: 1}, []string{"d5"}},
		{"last larger than set", logFilter{verdict: "ALLOW", last: 5}, []string{"d1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := filterEvents(events, tt.f)
			var ids []string
			for _, e := range got {
				ids = append(ids, e.DecisionID)
			}
			if strings.Join(ids, ",") != strings.Join(tt.want, ",") {
				t.Errorf("got %v, want %v", ids, tt.want)
			}
		})
	}
}

func TestPrintEvents(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	printEvents(&buf, sampleEvents()[2:5])
	out := buf.String()
	for _, want := range []string{
		"ESCALATE ISOLATE_HOST -> app-01",
		"Fallback: proposer timed out",
		"Review: denied",
		"ERROR MODIFY_ACL -> -",
		"Error: policy evaluation failed in guard injection",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, sampleEvents())
	out := buf.String()
	for _, want := range []string{
		"Total events:    6",
		"ALLOW:           1",
		"BLOCK:           2",
		"ESCALATE:        1",
		"Reviews:         1",
		"Fallbacks:       1",
		"Errors:          1",
		"tier0        1",
		"injection    1",
		"Blocked actions:",
		"SHUTDOWN dc-01",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}
