package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gzhole/agentlock/internal/policy"
)

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Manage policy packs",
	Long: `Manage AgentLock policy packs.

Policy packs are YAML overlays that tighten the base policy: they add
disruptive or access-control action types, add injection markers, or raise
thresholds. Packs live in ~/.agentlock/packs/ and are merged at startup.
A file whose name starts with "_" is installed but disabled.

Examples:
  agentlock pack list                    # List installed packs
  agentlock pack enable cloud-response   # Enable a pack
  agentlock pack disable cloud-response  # Disable a pack
  agentlock pack show cloud-response     # Show pack details`,
}

var packListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed policy packs",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, base, err := packsSetup()
		if err != nil {
			return err
		}
		return packList(cmd.OutOrStdout(), dir, base)
	},
}

var packEnableCmd = &cobra.Command{
	Use:   "enable <pack-name>",
	Short: "Enable a disabled policy pack",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _, err := packsSetup()
		if err != nil {
			return err
		}
		return packEnable(cmd.OutOrStdout(), dir, args[0])
	},
}

var packDisableCmd = &cobra.Command{
	Use:   "disable <pack-name>",
	Short: "Disable a policy pack (prefix with underscore)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _, err := packsSetup()
		if err != nil {
			return err
		}
		return packDisable(cmd.OutOrStdout(), dir, args[0])
	},
}

var packShowCmd = &cobra.Command{
	Use:   "show <pack-name>",
	Short: "Show details of a policy pack",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _, err := packsSetup()
		if err != nil {
			return err
		}
		return packShow(cmd.OutOrStdout(), dir, args[0])
	},
}

func init() {
	packCmd.AddCommand(packListCmd)
	packCmd.AddCommand(packEnableCmd)
	packCmd.AddCommand(packDisableCmd)
	packCmd.AddCommand(packShowCmd)
	rootCmd.AddCommand(packCmd)
}

// packsSetup returns the packs directory, creating it if needed, and the
// base policy packs are merged into.
func packsSetup() (string, *policy.Policy, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return "", nil, err
	}
	dir := cfg.Policy.PacksDir
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", nil, err
	}
	base, err := policy.Load(cfg.Policy.Path)
	if err != nil {
		return "", nil, err
	}
	return dir, base, nil
}

func packList(w io.Writer, dir string, base *policy.Policy) error {
	merged, infos, err := policy.LoadPacks(dir, base)
	if err != nil {
		return fmt.Errorf("failed to load packs: %w", err)
	}

	if len(infos) == 0 {
		fmt.Fprintln(w, "No policy packs installed.")
		fmt.Fprintf(w, "\nTo install packs, copy YAML files to: %s\n", dir)
		return nil
	}

	fmt.Fprintln(w, "Installed Policy Packs:")
	fmt.Fprintln(w, strings.Repeat("─", 60))
	for _, info := range infos {
		status := "✅"
		if !info.Enabled {
			status = "❌"
		}
		if info.Err != nil {
			status = "⚠️ "
		}
		fmt.Fprintf(w, "  %s  %-25s %s\n", status, info.Name, info.Description)
		if info.Err != nil {
			fmt.Fprintf(w, "       invalid: %v\n", info.Err)
			continue
		}
		if info.Version != "" {
			fmt.Fprintf(w, "       v%s by %s  (%d additions)\n", info.Version, info.Author, info.Additions)
		}
	}
	fmt.Fprintln(w, strings.Repeat("─", 60))

	t := merged.Thresholds
	fmt.Fprintf(w, "Effective thresholds: trust %.2f, burst %d in %s\n", t.Trust, t.BurstCount, t.BurstWindow)
	fmt.Fprintf(w, "Disruptive actions:   %s\n", strings.Join(merged.DisruptiveActions, ", "))
	fmt.Fprintf(w, "Access control:       %s\n", strings.Join(merged.AccessControlActions, ", "))
	fmt.Fprintf(w, "Injection markers:    %s\n", strings.Join(merged.InjectionMarkers, ", "))
	fmt.Fprintf(w, "\nPacks directory: %s\n", dir)
	return nil
}

func packEnable(w io.Writer, dir, name string) error {
	disabledPath := filepath.Join(dir, "_"+name+".yaml")
	enabledPath := filepath.Join(dir, name+".yaml")

	if _, err := os.Stat(disabledPath); err == nil {
		if err := os.Rename(disabledPath, enabledPath); err != nil {
			return fmt.Errorf("failed to enable pack: %w", err)
		}
		fmt.Fprintf(w, "✅ Pack '%s' enabled.\n", name)
		return nil
	}

	if _, err := os.Stat(enabledPath); err == nil {
		fmt.Fprintf(w, "Pack '%s' is already enabled.\n", name)
		return nil
	}

	return fmt.Errorf("pack '%s' not found in %s", name, dir)
}

func packDisable(w io.Writer, dir, name string) error {
	enabledPath := filepath.Join(dir, name+".yaml")
	disabledPath := filepath.Join(dir, "_"+name+".yaml")

	if _, err := os.Stat(enabledPath); err == nil {
		if err := os.Rename(enabledPath, disabledPath); err != nil {
			return fmt.Errorf("failed to disable pack: %w", err)
		}
		fmt.Fprintf(w, "❌ Pack '%s' disabled.\n", name)
		return nil
	}

	if _, err := os.Stat(disabledPath); err == nil {
		fmt.Fprintf(w, "Pack '%s' is already disabled.\n", name)
		return nil
	}

	return fmt.Errorf("pack '%s' not found in %s", name, dir)
}

func packShow(w io.Writer, dir, name string) error {
	path := filepath.Join(dir, name+".yaml")
	if _, err := os.Stat(path); err != nil {
		path = filepath.Join(dir, "_"+name+".yaml")
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("pack '%s' not found in %s", name, dir)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, string(data))
	return nil
}
