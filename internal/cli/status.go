package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gzhole/agentlock/internal/config"
	"github.com/gzhole/agentlock/internal/inventory"
	"github.com/gzhole/agentlock/internal/policy"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show AgentLock status: policy, packs, inventory, proposer, storage, audit log",
	Long: `Check how AgentLock is configured: which policy and packs are in effect,
how many assets the inventory holds, which proposer is used, and whether the
ledger database and audit log exist.

  agentlock status`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), cfg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func printStatus(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(w, "  AgentLock Status")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(w)

	binPath, err := os.Executable()
	if err != nil {
		binPath = "unknown"
	}
	fmt.Fprintf(w, "  Binary:    %s (%s)\n", binPath, Version)
	fmt.Fprintf(w, "  Config:    %s\n", cfg.ConfigDir)
	fmt.Fprintf(w, "  Listen:    %s\n", cfg.Server.Addr)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "─── Policy ────────────────────────────────────────────")
	checkFile(w, "Policy file", cfg.Policy.Path)
	pol, err := policy.Load(cfg.Policy.Path)
	if err != nil {
		fmt.Fprintf(w, "  ❌ Policy invalid: %v\n", err)
	} else {
		merged, infos, err := policy.LoadPacks(cfg.Policy.PacksDir, pol)
		switch {
		case err != nil:
			fmt.Fprintf(w, "  ❌ Policy packs: %v\n", err)
		case len(infos) == 0:
			fmt.Fprintln(w, "  ⬚  No policy packs installed")
		default:
			enabled := 0
			for _, info := range infos {
				if info.Enabled && info.Err == nil {
					enabled++
				}
			}
			fmt.Fprintf(w, "  ✅ Policy packs: %d installed, %d enabled\n", len(infos), enabled)
			pol = merged
		}
		t := pol.Thresholds
		fmt.Fprintf(w, "     trust >= %.2f, burst %d in %s, learning rate %.2f\n",
			t.Trust, t.BurstCount, t.BurstWindow, t.LearningRate)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "─── Inventory ─────────────────────────────────────────")
	inv, err := inventory.Load(cfg.Inventory.Path)
	if err != nil {
		fmt.Fprintf(w, "  ❌ Inventory invalid: %v\n", err)
	} else {
		tier0 := 0
		for _, a := range inv.Assets {
			if a.Tier == 0 {
				tier0++
			}
		}
		source := cfg.Inventory.Path
		if source == "" {
			source = "built-in"
		}
		fmt.Fprintf(w, "  ✅ %d assets (%d Tier-0), %d seeded sources from %s\n",
			len(inv.Assets), tier0, len(inv.DefaultTrust), source)
		if cfg.Inventory.Watch {
			fmt.Fprintln(w, "     hot reload enabled")
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "─── Proposer ──────────────────────────────────────────")
	target := cfg.Proposer.URL
	if target == "" {
		target = "deterministic"
	}
	fmt.Fprintf(w, "  %s (%s), timeout %s\n", cfg.Proposer.Kind, target, cfg.Proposer.Timeout)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "─── Storage ───────────────────────────────────────────")
	if cfg.Storage.DBPath == "" || cfg.Storage.DBPath == ":memory:" {
		fmt.Fprintln(w, "  ⬚  In-memory only: trust scores and ledger are not persisted")
	} else {
		checkFile(w, "Ledger database", cfg.Storage.DBPath)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "─── Audit Log ─────────────────────────────────────────")
	checkAuditLog(w, cfg.Audit.Path)
	fmt.Fprintln(w)
}

func checkFile(w io.Writer, name, path string) {
	if path == "" {
		fmt.Fprintf(w, "  ⬚  %s: using built-in defaults\n", name)
		return
	}
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(w, "  ✅ %s: %s\n", name, path)
	} else {
		fmt.Fprintf(w, "  ⬚  %s: %s not found, using built-in defaults\n", name, path)
	}
}

func checkAuditLog(w io.Writer, path string) {
	if path == "" {
		fmt.Fprintln(w, "  ⬚  No audit log path configured")
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		fmt.Fprintf(w, "  ⬚  %s (not yet created, will start on first decision)\n", path)
		return
	}

	sizeKB := info.Size() / 1024
	if sizeKB == 0 {
		fmt.Fprintf(w, "  ✅ %s (<1 KB)\n", path)
	} else {
		fmt.Fprintf(w, "  ✅ %s (%d KB)\n", path, sizeKB)
	}
}
