// Package redirtun implements the Coordinator (spec.md §4.5): the top-level
// lifecycle that ties together firewall setup/restore, the tunnel child
// supervisor, and the listener pool, and that owns the single shutdown
// control channel every other component can signal into.
package redirtun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/die-net/redirtun/internal/config"
	"github.com/die-net/redirtun/internal/firewall"
	"github.com/die-net/redirtun/internal/forwarder"
	"github.com/die-net/redirtun/internal/listenpool"
	"github.com/die-net/redirtun/internal/preflight"
	"github.com/die-net/redirtun/internal/socksclient"
	"github.com/die-net/redirtun/internal/tunnel"
)

// Options carries everything the Coordinator needs to run one lifecycle.
type Options struct {
	Config    *config.Config
	Driver    firewall.Driver
	SocksAuth socksclient.Auth
	TunnelCmd string // external binary to supervise; "ssh" in production.
	Logger    *slog.Logger
}

// Run executes the full Coordinator lifecycle of spec.md §4.5 and returns
// the first error observed, if any. Once the setup and restore sequences have
// been planned, it always attempts firewall restore before returning. A
// planning failure returns immediately: no setup or restore command runs.
func Run(ctx context.Context, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	shutdown := newControlChan()

	// Step 1: OS interrupt handler. signal.Notify's own channel already
	// collapses repeated identical signals, so the handler just forwards
	// each delivery onto the control channel, which is itself idempotent.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			logger.Info("interrupt received, shutting down")
			shutdown.signal()
		}
	}()

	// Step 2: compute setup and restore before anything is mutated, so
	// restore is always available even if setup fails partway.
	fwCfg, err := opts.Config.ToFirewallConfig()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFirewallPlan, err)
	}
	setupCmds, err := opts.Driver.PlanSetup(fwCfg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFirewallPlan, err)
	}
	restoreCmds, err := opts.Driver.PlanRestore(fwCfg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFirewallPlan, err)
	}
	logger.Debug("planned firewall setup", "commands", setupCmds)
	logger.Debug("planned firewall restore", "commands", restoreCmds)

	var firstErr error

	// Step 3: run setup. On failure, skip straight to restore with the
	// failure carried; setup may have stopped partway, so restore runs the
	// full precomputed sequence.
	if err := setupCmds.Run(ctx); err != nil {
		firstErr = fmt.Errorf("%w: %w", ErrFirewallExec, err)
	} else if err := runWorkload(ctx, opts, logger, shutdown); err != nil {
		// Steps 4-6 only run if setup succeeded.
		firstErr = err
	}

	// Step 7: restore always runs, on every path.
	if err := restoreCmds.Run(ctx); err != nil {
		restoreErr := fmt.Errorf("%w: %w", ErrFirewallExec, err)
		if firstErr == nil {
			firstErr = restoreErr
		} else {
			logger.Error("firewall restore failed", "error", restoreErr)
		}
	}

	// Step 8.
	return firstErr
}

// runWorkload implements steps 4-6: start the listener pool, then spawn the
// tunnel (if configured), and wait for the first of tunnel-exit, pool-exit,
// or shutdown to collapse the whole lifecycle. The listeners are bound and
// accepting before the tunnel child is started.
func runWorkload(ctx context.Context, opts Options, logger *slog.Logger, shutdown controlChan) error {
	fwd := forwarder.New(opts.Driver, opts.Config.SocksAddr, opts.SocksAuth, logger)

	pool, err := listenpool.New(ctx, opts.Driver, opts.Config.ListenerAddrs(), fwd, logger)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAcceptFatal, err)
	}

	poolDone := make(chan error, 1)
	go func() { poolDone <- pool.Run() }()

	var tunnelDone chan error
	var tunnelShutdown chan struct{}
	if opts.Config.Remote != "" {
		if ip, err := preflight.ResolveRemoteHost(opts.Config.Remote); err != nil {
			logger.Warn("preflight resolution failed, continuing anyway", "remote", opts.Config.Remote, "error", err)
		} else {
			logger.Info("resolved tunnel remote host", "remote", opts.Config.Remote, "ip", ip)
		}

		tunnelDone = make(chan error, 1)
		tunnelShutdown = make(chan struct{})
		sup := tunnel.Supervisor{
			Command:   opts.TunnelCmd,
			SocksAddr: opts.Config.SocksAddr,
			Remote:    opts.Config.Remote,
		}
		go func() { tunnelDone <- tunnel.Run(sup, tunnelShutdown) }()
	}

	var result error
	poolExited, tunnelExited := false, false
	select {
	case err := <-poolDone:
		poolExited = true
		if err != nil {
			result = fmt.Errorf("%w: %w", ErrAcceptFatal, err)
		}
	case err := <-tunnelDone:
		tunnelExited = true
		if err != nil {
			if errors.Is(err, tunnel.ErrSpawn) {
				result = fmt.Errorf("%w: %w", ErrTunnelSpawn, err)
			} else {
				result = fmt.Errorf("%w: %w", ErrTunnelExit, err)
			}
		}
	case <-shutdown:
	}

	// Collapse: kill the tunnel immediately, stop accepting, and let running
	// forwarders finish on their own (spec.md §5's "no aborts on forwarders").
	if tunnelShutdown != nil && !tunnelExited {
		close(tunnelShutdown)
		<-tunnelDone
	}
	if !poolExited {
		pool.Stop()
		<-poolDone
	}

	return result
}
