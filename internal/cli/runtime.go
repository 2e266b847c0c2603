package cli

import (
	"fmt"

	"github.com/gzhole/agentlock/internal/audit"
	"github.com/gzhole/agentlock/internal/config"
	"github.com/gzhole/agentlock/internal/decision"
	"github.com/gzhole/agentlock/internal/inventory"
	"github.com/gzhole/agentlock/internal/ledger"
	"github.com/gzhole/agentlock/internal/logger"
	"github.com/gzhole/agentlock/internal/policy"
	"github.com/gzhole/agentlock/internal/proposer"
	"github.com/gzhole/agentlock/internal/state"
	"github.com/gzhole/agentlock/internal/trust"
)

var log = logger.New("cli")

// runtime is the fully wired decision stack shared by the commands.
type runtime struct {
	cfg     *config.Config
	policy  *policy.Policy
	packs   []policy.PackInfo
	store   *state.Store
	db      *state.SQLite
	ledger  *ledger.Ledger
	audit   *audit.Logger
	svc     *decision.Service
	watcher *inventory.Watcher
	closers []func() error
}

type runtimeOptions struct {
	// watch starts the inventory watcher when the config asks for it.
	watch bool
	// noAudit skips opening the audit log (read-only commands).
	noAudit bool
}

func buildRuntime(cfg *config.Config, opts runtimeOptions) (rt *runtime, err error) {
	rt = &runtime{cfg: cfg}
	defer func() {
		if err != nil {
			rt.Close()
			rt = nil
		}
	}()

	if err := cfg.EnsureDirs(); err != nil {
		return rt, err
	}

	pol, err := policy.Load(cfg.Policy.Path)
	if err != nil {
		return rt, err
	}
	pol, rt.packs, err = policy.LoadPacks(cfg.Policy.PacksDir, pol)
	if err != nil {
		return rt, fmt.Errorf("failed to load policy packs: %w", err)
	}
	rt.policy = pol

	inv, err := inventory.Load(cfg.Inventory.Path)
	if err != nil {
		return rt, err
	}

	storeOpts := []state.Option{state.WithRetention(pol.Thresholds.BurstWindow)}
	if cfg.Storage.DBPath != "" {
		rt.db, err = state.OpenSQLite(cfg.Storage.DBPath)
		if err != nil {
			return rt, err
		}
		rt.closers = append(rt.closers, rt.db.Close)
		rt.ledger = ledger.New(rt.db.DB())
		storeOpts = append(storeOpts, state.WithPersister(rt.db))
	}
	rt.store, err = inv.NewStore(storeOpts...)
	if err != nil {
		return rt, err
	}

	engine, err := policy.NewEngine(pol, rt.store, rt.store)
	if err != nil {
		return rt, err
	}

	p, closeProposer, err := proposer.New(cfg.Proposer.Kind, cfg.Proposer.URL)
	if err != nil {
		return rt, err
	}
	rt.closers = append(rt.closers, closeProposer)

	svcOpts := []decision.Option{decision.WithTimeout(cfg.Proposer.Timeout)}
	if !opts.noAudit {
		rt.audit, err = audit.New(cfg.Audit.Path)
		if err != nil {
			return rt, fmt.Errorf("failed to open audit log: %w", err)
		}
		rt.closers = append(rt.closers, rt.audit.Close)
		svcOpts = append(svcOpts, decision.WithAudit(rt.audit))
	}
	if rt.ledger != nil {
		svcOpts = append(svcOpts, decision.WithLedger(rt.ledger))
	}
	rt.svc = decision.New(engine, trust.NewLearner(rt.store), p, svcOpts...)

	if opts.watch && cfg.Inventory.Watch {
		rt.watcher, err = inventory.NewWatcher(cfg.Inventory.Path, rt.store)
		if err != nil {
			return rt, err
		}
		if err := rt.watcher.Start(); err != nil {
			return rt, err
		}
		rt.closers = append(rt.closers, rt.watcher.Stop)
	}

	log.WithField("guards", engine.Guards()).Debugf("pipeline ready (%d assets, %d packs)", len(rt.store.Assets()), len(rt.packs))
	return rt, nil
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() error {
	var first error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	rt.closers = nil
	return first
}
