package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gzhole/agentlock/internal/config"
	"github.com/gzhole/agentlock/internal/logger"
)

var (
	configPath    string
	policyPath    string
	auditPath     string
	inventoryPath string
	dbPath        string
	logLevel      string
	noColor       bool
)

var rootCmd = &cobra.Command{
	Use:   "agentlock",
	Short: "AgentLock - guardrails for autonomous SOC agents",
	Long: `AgentLock sits between an LLM-driven SOC agent and the infrastructure it
acts on. Every proposed action (isolate a host, lock an account, add a
firewall rule) is checked against asset tiers, evidence provenance, prompt
injection markers and burst limits, and comes back ALLOW, BLOCK or ESCALATE
with a reason.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor || !term.IsTerminal(int(os.Stdout.Fd())) {
			color.NoColor = true
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML file (default: ~/.agentlock/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", "", "Path to policy YAML file (default: ~/.agentlock/policy.yaml)")
	rootCmd.PersistentFlags().StringVar(&auditPath, "audit-log", "", "Path to audit log file (default: ~/.agentlock/audit.jsonl)")
	rootCmd.PersistentFlags().StringVar(&inventoryPath, "inventory", "", "Path to asset inventory YAML (default: built-in)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database for trust scores and the decision ledger (default: in-memory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
}

// loadConfig reads .env, the config file and the environment, applies flag
// overrides, validates, and configures logging.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if policyPath != "" {
		cfg.Policy.Path = policyPath
	}
	if auditPath != "" {
		cfg.Audit.Path = auditPath
	}
	if inventoryPath != "" {
		cfg.Inventory.Path = inventoryPath
	}
	if dbPath != "" {
		cfg.Storage.DBPath = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := logger.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Execute() error {
	return rootCmd.Execute()
}
