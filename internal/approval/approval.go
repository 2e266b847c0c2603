// Package approval asks a human operator to confirm or reject an escalated
// action. Without a terminal the answer is always deny.
package approval

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

type Result struct {
	Approved   bool
	UserAction string
}

// Prompt describes the escalated action shown to the reviewer.
type Prompt struct {
	DecisionID    string
	ActionType    string
	Target        string
	RiskLevel     string
	Justification string
	Sources       []string
	Guard         string
	Reason        string
}

// Reviewer reads answers from in and writes the prompt to out.
type Reviewer struct {
	in          io.Reader
	out         io.Writer
	interactive func() bool
}

// NewReviewer creates a reviewer on the given streams. interactive reports
// whether a human is attached; nil means always.
func NewReviewer(in io.Reader, out io.Writer, interactive func() bool) *Reviewer {
	if interactive == nil {
		interactive = func() bool { return true }
	}
	return &Reviewer{in: in, out: out, interactive: interactive}
}

func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Ask prompts on the process terminal.
func Ask(p Prompt) Result {
	return NewReviewer(os.Stdin, os.Stderr, IsInteractive).Ask(p)
}

func (r *Reviewer) Ask(p Prompt) Result {
	if !r.interactive() {
		return Result{
			Approved:   false,
			UserAction: "auto_deny_non_interactive",
		}
	}

	out := r.out
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(out, "║              ⚠️  HUMAN REVIEW REQUIRED                        ║")
	fmt.Fprintln(out, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(out, "")
	fmt.Fprintf(out, "Action:   %s\n", p.ActionType)
	fmt.Fprintf(out, "Target:   %s\n", orDash(p.Target))
	fmt.Fprintf(out, "Risk:     %s\n", p.RiskLevel)
	if p.Justification != "" {
		fmt.Fprintf(out, "Because:  %s\n", p.Justification)
	}
	if len(p.Sources) > 0 {
		fmt.Fprintf(out, "Evidence: %s\n", strings.Join(p.Sources, ", "))
	}
	fmt.Fprintln(out, "")
	if p.Reason != "" {
		fmt.Fprintf(out, "Escalated by %s: %s\n", p.Guard, p.Reason)
	}
	if p.DecisionID != "" {
		fmt.Fprintf(out, "Decision: %s\n", p.DecisionID)
	}

	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")
	fmt.Fprintln(out, "  [a] Approve - let the agent execute this action")
	fmt.Fprintln(out, "  [d] Deny - keep the action blocked")
	fmt.Fprintln(out, "")

	reader := bufio.NewReader(r.in)

	for {
		fmt.Fprint(out, "Your choice [a/d]: ")
		input, err := reader.ReadString('\n')
		if err != nil && input == "" {
			return Result{
				Approved:   false,
				UserAction: "error_reading_input",
			}
		}

		input = strings.TrimSpace(strings.ToLower(input))

		switch input {
		case "a", "approve", "yes", "y":
			return Result{
				Approved:   true,
				UserAction: "approve",
			}
		case "d", "deny", "no", "n":
			return Result{
				Approved:   false,
				UserAction: "deny",
			}
		default:
			if err != nil {
				return Result{Approved: false, UserAction: "error_reading_input"}
			}
			fmt.Fprintln(out, "Invalid input. Please enter 'a' to approve or 'd' to deny.")
		}
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
