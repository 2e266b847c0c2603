package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gzhole/agentlock/internal/action"
	"github.com/gzhole/agentlock/internal/approval"
	"github.com/gzhole/agentlock/internal/audit"
	"github.com/gzhole/agentlock/internal/decision"
	"github.com/gzhole/agentlock/internal/policy"
	"github.com/gzhole/agentlock/internal/proposer"
)

var (
	evalReview bool
	evalJSON   bool
	evalSource string
	evalID     string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [file]",
	Short: "Decide a single log record or candidate action",
	Long: `Run one input through the guardrail pipeline and print the verdict.

The input (a file, or stdin when omitted or "-") is either a log record
{id, source, payload}, which goes through the configured proposer first, or
a candidate action {action_type, target, risk_level, ...} evaluated as is.

Examples:
  agentlock evaluate record.json
  echo '{"action_type":"SHUTDOWN","target":"dc-01","risk_level":"HIGH"}' | agentlock evaluate
  agentlock evaluate --review candidate.json   # prompt on ESCALATE`,
	Args: cobra.MaximumNArgs(1),
	RunE: evaluateCommand,
}

func init() {
	evaluateCmd.Flags().BoolVar(&evalReview, "review", false, "Ask an operator to approve or deny escalated actions")
	evaluateCmd.Flags().BoolVar(&evalJSON, "json", false, "Print the decision as JSON")
	evaluateCmd.Flags().StringVar(&evalSource, "source", "cli", "Log source recorded for candidate input")
	evaluateCmd.Flags().StringVar(&evalID, "id", "", "Log id recorded for candidate input")
	rootCmd.AddCommand(evaluateCmd)
}

func evaluateCommand(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	rec, cand, err := parseEvaluateInput(data)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := buildRuntime(cfg, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	var resp decision.Response
	if cand != nil {
		rec = proposer.LogRecord{ID: evalID, Source: evalSource}
		resp, err = rt.svc.DecideCandidate(cmd.Context(), rec, cand)
	} else {
		resp, err = rt.svc.Decide(cmd.Context(), rec)
	}
	if err != nil {
		var ee *policy.EvalError
		if errors.As(err, &ee) {
			return fmt.Errorf("%s (decision %s)", ee.Error(), resp.DecisionID)
		}
		return err
	}

	out := cmd.OutOrStdout()
	if evalJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return err
		}
	} else {
		renderDecision(out, resp)
	}

	if evalReview && resp.Verdict == policy.VerdictEscalate {
		result := approval.Ask(reviewPrompt(resp))
		recordReview(rt.audit, rec, resp, result)
		if result.Approved {
			fmt.Fprintf(out, "%s operator approved (%s)\n", verdictIcon("ALLOW"), result.UserAction)
		} else {
			fmt.Fprintf(out, "%s operator denied (%s)\n", verdictIcon("BLOCK"), result.UserAction)
		}
	}
	return nil
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(args[0])
}

// parseEvaluateInput tells a log record from a candidate action. Objects
// with a payload are records; everything else must be a candidate.
func parseEvaluateInput(data []byte) (proposer.LogRecord, *action.Candidate, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(data), &probe); err != nil {
		return proposer.LogRecord{}, nil, fmt.Errorf("input is not a JSON object: %w", err)
	}

	if _, ok := probe["payload"]; ok {
		var rec proposer.LogRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return proposer.LogRecord{}, nil, fmt.Errorf("invalid log record: %w", err)
		}
		if rec.ID == "" || rec.Source == "" {
			return proposer.LogRecord{}, nil, errors.New("invalid log record: id and source are required")
		}
		return rec, nil, nil
	}

	c, err := action.Parse(data)
	if err != nil {
		return proposer.LogRecord{}, nil, err
	}
	return proposer.LogRecord{}, c, nil
}

func renderDecision(w io.Writer, resp decision.Response) {
	what := "-"
	if c := resp.Candidate; c != nil {
		what = c.ActionType
		if c.Target != "" {
			what += " -> " + c.Target
		}
		what += fmt.Sprintf(" [%s]", c.RiskLevel)
	}

	fmt.Fprintf(w, "%s %s  %s\n", verdictIcon(string(resp.Verdict)), verdictLabel(string(resp.Verdict)), what)
	fmt.Fprintf(w, "     Reason: %s\n", resp.Reason)
	if resp.Guard != "" {
		fmt.Fprintf(w, "     Guard: %s\n", resp.Guard)
	}
	if resp.Fallback {
		fmt.Fprintf(w, "     Fallback: %s\n", resp.FallbackReason)
	}
	fmt.Fprintln(w, dimColor.Sprintf("     Decision: %s", resp.DecisionID))
}

func reviewPrompt(resp decision.Response) approval.Prompt {
	p := approval.Prompt{
		DecisionID: resp.DecisionID,
		Guard:      resp.Guard,
		Reason:     resp.Reason,
	}
	if c := resp.Candidate; c != nil {
		p.ActionType = c.ActionType
		p.Target = c.Target
		p.RiskLevel = string(c.RiskLevel)
		p.Justification = c.Justification
		p.Sources = c.Sources()
	}
	return p
}

// recordReview appends the operator's answer to the audit log under the
// same decision id.
func recordReview(sink audit.Sink, rec proposer.LogRecord, resp decision.Response, result approval.Result) {
	if sink == nil {
		return
	}
	ev := audit.Event{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		DecisionID: resp.DecisionID,
		LogID:      rec.ID,
		LogSource:  rec.Source,
		Verdict:    string(resp.Verdict),
		Guard:      resp.Guard,
		Reason:     resp.Reason,
		Reviewer:   result.UserAction,
	}
	if c := resp.Candidate; c != nil {
		ev.ActionType = c.ActionType
		ev.Target = c.Target
		ev.RiskLevel = string(c.RiskLevel)
	}
	if err := sink.Log(ev); err != nil {
		log.WithError(err).Warn("failed to audit review")
	}
}
