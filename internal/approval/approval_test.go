package approval

import (
	"bytes"
	"strings"
	"testing"
)

func testPrompt() Prompt {
	return Prompt{
		DecisionID: "d-1",
		ActionType: "LOCK_ACCOUNT",
		Target:     "svc-backup",
		RiskLevel:  "MEDIUM",
		Sources:    []string{"EDR_SentinelOne"},
		Guard:      "burst",
		Reason:     "Burst: 4 MEDIUM-risk 'LOCK_ACCOUNT' actions within 60s; human review required",
	}
}

func TestAsk_Answers(t *testing.T) {
	tests := []struct {
		input    string
		approved bool
		action   string
	}{
		{"a\n", true, "approve"},
		{"YES\n", true, "approve"},
		{"d\n", false, "deny"},
		{"maybe\nn\n", false, "deny"},
		{"y", true, "approve"}, // no trailing newline
		{"", false, "error_reading_input"},
		{"what\n", false, "error_reading_input"},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			r := NewReviewer(strings.NewReader(tt.input), &out, nil)
			got := r.Ask(testPrompt())
			if got.Approved != tt.approved || got.UserAction != tt.action {
				t.Errorf("Ask(%q) = %+v, want approved=%v action=%s", tt.input, got, tt.approved, tt.action)
			}
		})
	}
}

func TestAsk_ShowsContext(t *testing.T) {
	var out bytes.Buffer
	NewReviewer(strings.NewReader("d\n"), &out, nil).Ask(testPrompt())
	text := out.String()
	for _, want := range []string{"LOCK_ACCOUNT", "svc-backup", "EDR_SentinelOne", "Escalated by burst", "d-1"} {
		if !strings.Contains(text, want) {
			t.Errorf("prompt should mention %q:\n%s", want, text)
		}
	}
}

func TestAsk_NonInteractiveDenies(t *testing.T) {
	var out bytes.Buffer
	r := NewReviewer(strings.NewReader("a\n"), &out, func() bool { return false })
	got := r.Ask(testPrompt())
	if got.Approved || got.UserAction != "auto_deny_non_interactive" {
		t.Errorf("expected auto deny, got %+v", got)
	}
	if out.Len() != 0 {
		t.Error("nothing should be printed without a terminal")
	}
}
