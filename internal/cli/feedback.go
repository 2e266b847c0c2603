package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/gzhole/agentlock/internal/trust"
)

var (
	feedbackOutcome string
	feedbackEta     float64
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback --outcome GOOD|BAD <source>...",
	Short: "Report the outcome of an executed action to adjust source trust",
	Long: `Apply an outcome label to the provenance sources that backed an action.

Each source's trust moves toward 1 on GOOD and toward 0 on BAD by the
learning rate. Scores only persist across runs when a database is configured
(--db or storage.db_path).

Examples:
  agentlock feedback --db agentlock.db --outcome BAD degraded_sensor
  agentlock feedback --db agentlock.db --outcome GOOD --eta 0.5 EDR_SentinelOne NDR`,
	Args: cobra.MinimumNArgs(1),
	RunE: feedbackCommand,
}

func init() {
	feedbackCmd.Flags().StringVar(&feedbackOutcome, "outcome", "", "Outcome label: GOOD or BAD")
	feedbackCmd.Flags().Float64Var(&feedbackEta, "eta", 0, "Learning rate in (0,1] (default from policy)")
	feedbackCmd.MarkFlagRequired("outcome")
	rootCmd.AddCommand(feedbackCmd)
}

func feedbackCommand(cmd *cobra.Command, args []string) error {
	outcome, err := trust.ParseOutcome(feedbackOutcome)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := buildRuntime(cfg, runtimeOptions{noAudit: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	if rt.db == nil {
		log.Warn("no database configured; updated scores will not persist")
	}

	var eta *float64
	if cmd.Flags().Changed("eta") {
		eta = &feedbackEta
	}
	scores, err := rt.svc.Feedback(args, outcome, eta)
	if err != nil {
		return err
	}

	sources := make([]string, 0, len(scores))
	for src := range scores {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	out := cmd.OutOrStdout()
	for _, src := range sources {
		fmt.Fprintf(out, "  %-30s %.4f\n", src, scores[src])
	}
	return nil
}
