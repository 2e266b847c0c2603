package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gzhole/agentlock/internal/audit"
	"github.com/gzhole/agentlock/internal/ledger"
	"github.com/gzhole/agentlock/internal/state"
)

var (
	logFilterVerdict string
	logFilterGuard   string
	logFallbackOnly  bool
	logLast          int
	logSummary       bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View and filter the decision audit log",
	Long: `View the AgentLock audit log with filtering and summary options.

Examples:
  agentlock log                        # Show all entries
  agentlock log --last 20              # Show last 20 entries
  agentlock log --verdict BLOCK        # Show only blocked actions
  agentlock log --guard burst          # Show decisions made by one guard
  agentlock log --fallback             # Show decisions on placeholder actions
  agentlock log --summary              # Show summary stats`,
	RunE: logCommand,
}

func init() {
	logCmd.Flags().StringVar(&logFilterVerdict, "verdict", "", "Filter by verdict (ALLOW, BLOCK, ESCALATE)")
	logCmd.Flags().StringVar(&logFilterGuard, "guard", "", "Filter by deciding guard (tier0, provenance, injection, burst)")
	logCmd.Flags().BoolVar(&logFallbackOnly, "fallback", false, "Show only decisions where the proposer failed")
	logCmd.Flags().IntVar(&logLast, "last", 0, "Show last N entries")
	logCmd.Flags().BoolVar(&logSummary, "summary", false, "Show summary statistics")
	rootCmd.AddCommand(logCmd)
}

type logFilter struct {
	verdict  string
	guard    string
	fallback bool
	last     int
}

func logCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	events, err := audit.Read(cfg.Audit.Path)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(out, "No audit log entries found.")
		return nil
	}

	filtered := filterEvents(events, logFilter{
		verdict:  logFilterVerdict,
		guard:    logFilterGuard,
		fallback: logFallbackOnly,
		last:     logLast,
	})

	if logSummary {
		printSummary(out, events)
		if cfg.Storage.DBPath != "" {
			printLedgerCounts(out, cfg.Storage.DBPath)
		}
		return nil
	}

	printEvents(out, filtered)
	return nil
}

func filterEvents(events []audit.Event, f logFilter) []audit.Event {
	filtered := events
	if f.verdict != "" || f.guard != "" || f.fallback {
		filtered = nil
		for _, e := range events {
			if f.verdict != "" && !strings.EqualFold(e.Verdict, f.verdict) {
				continue
			}
			if f.guard != "" && !strings.EqualFold(e.Guard, f.guard) {
				continue
			}
			if f.fallback && !e.Fallback {
				continue
			}
			filtered = append(filtered, e)
		}
	}
	if f.last > 0 && f.last < len(filtered) {
		filtered = filtered[len(filtered)-f.last:]
	}
	return filtered
}

func printEvents(w io.Writer, events []audit.Event) {
	for _, e := range events {
		ts := formatTimestamp(e.Timestamp)
		target := e.Target
		if target == "" {
			target = "-"
		}

		fmt.Fprintf(w, "%s %s %s %s -> %s\n", verdictIcon(e.Verdict), ts, verdictLabel(e.Verdict), e.ActionType, target)
		if e.Reason != "" {
			fmt.Fprintf(w, "     Reason: %s\n", e.Reason)
		}
		if e.Fallback {
			fmt.Fprintf(w, "     Fallback: %s\n", e.FallbackReason)
		}
		if e.Reviewer != "" {
			fmt.Fprintf(w, "     Review: %s\n", e.Reviewer)
		}
		if e.Error != "" {
			fmt.Fprintf(w, "     Error: %s\n", e.Error)
		}
		fmt.Fprintf(w, "     Log: %s (%s)  Decision: %s\n", e.LogID, e.LogSource, e.DecisionID)
		fmt.Fprintln(w)
	}
}

func printSummary(w io.Writer, all []audit.Event) {
	counts := map[string]int{}
	guards := map[string]int{}
	errorCount, fallbackCount, reviewCount := 0, 0, 0

	for _, e := range all {
		if e.Reviewer != "" {
			reviewCount++
			continue
		}
		if e.Error != "" {
			errorCount++
			continue
		}
		counts[e.Verdict]++
		if e.Guard != "" {
			guards[e.Guard]++
		}
		if e.Fallback {
			fallbackCount++
		}
	}

	fmt.Fprintln(w, "═══════════════════════════════════════════")
	fmt.Fprintln(w, "  AgentLock Audit Summary")
	fmt.Fprintln(w, "═══════════════════════════════════════════")
	fmt.Fprintf(w, "  Total events:    %d\n", len(all))
	fmt.Fprintf(w, "  ALLOW:           %d\n", counts["ALLOW"])
	fmt.Fprintf(w, "  BLOCK:           %d\n", counts["BLOCK"])
	fmt.Fprintf(w, "  ESCALATE:        %d\n", counts["ESCALATE"])
	fmt.Fprintf(w, "  Reviews:         %d\n", reviewCount)
	fmt.Fprintf(w, "  Fallbacks:       %d\n", fallbackCount)
	fmt.Fprintf(w, "  Errors:          %d\n", errorCount)
	fmt.Fprintln(w, "═══════════════════════════════════════════")

	if len(guards) > 0 {
		fmt.Fprintln(w, "  By guard:")
		for _, g := range []string{"tier0", "provenance", "injection", "burst"} {
			if n := guards[g]; n > 0 {
				fmt.Fprintf(w, "    %-12s %d\n", g, n)
			}
		}
	}

	if len(all) > 0 {
		fmt.Fprintf(w, "  First event:     %s\n", formatTimestamp(all[0].Timestamp))
		fmt.Fprintf(w, "  Last event:      %s\n", formatTimestamp(all[len(all)-1].Timestamp))
	}

	blocked := []audit.Event{}
	for _, e := range all {
		if e.Verdict == "BLOCK" {
			blocked = append(blocked, e)
		}
	}
	if len(blocked) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  Blocked actions:")
		limit := len(blocked)
		if limit > 10 {
			limit = 10
		}
		for _, e := range blocked[len(blocked)-limit:] {
			fmt.Fprintf(w, "    %s %s %s\n", formatTimestamp(e.Timestamp), e.ActionType, e.Target)
		}
	}

	fmt.Fprintln(w)
}

// printLedgerCounts adds the verdict totals recorded in the SQLite ledger.
func printLedgerCounts(w io.Writer, dbPath string) {
	db, err := state.OpenSQLite(dbPath)
	if err != nil {
		log.WithError(err).Warn("cannot open decision ledger")
		return
	}
	defer db.Close()

	counts, err := ledger.Counts(db.DB())
	if err != nil {
		log.WithError(err).Warn("cannot read decision ledger")
		return
	}
	fmt.Fprintf(w, "  Ledger (%s): ALLOW %d, BLOCK %d, ESCALATE %d\n\n",
		dbPath, counts["ALLOW"], counts["BLOCK"], counts["ESCALATE"])
}
