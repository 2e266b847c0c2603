package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gzhole/agentlock/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the decision API",
	Long: `Run the AgentLock HTTP API.

Routes:
  POST /v1/decide          {id, source, payload} -> {decision_id, verdict, action, reason}
  POST /v1/feedback        {sources, outcome, eta?} -> updated trust scores
  GET  /v1/trust/:source   current trust score of a provenance source
  GET  /v1/assets/:id      tier of an asset (unknown assets are tier 0)
  GET  /v1/state           assets and trust table
  GET  /healthz`,
	RunE: serveCommand,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config, :8000)")
	rootCmd.AddCommand(serveCmd)
}

func serveCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	rt, err := buildRuntime(cfg, runtimeOptions{watch: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(rt.svc, rt.store, cfg.Server.MaxBodyBytes)
	return srv.Run(ctx, cfg.Server.Addr)
}
