package redirtun

import "errors"

// Error kinds from spec.md §7's taxonomy. These are sentinels, not types:
// call sites wrap them with fmt.Errorf("...: %w", ErrX) so errors.Is still
// matches after any amount of additional wrapping.
var (
	// ErrFirewallPlan: command-list construction failed. Fatal; Run returns
	// it at once, and neither setup nor restore is run.
	ErrFirewallPlan = errors.New("firewall: command planning failed")

	// ErrFirewallExec: a setup or restore command exited non-zero. Setup
	// failure is fatal and is the returned error; a restore failure is
	// returned when it is the first error, and only logged when a setup or
	// workload error is already being returned.
	ErrFirewallExec = errors.New("firewall: command execution failed")

	// ErrTunnelSpawn: the tunnel child failed to start. Fatal; triggers
	// shutdown.
	ErrTunnelSpawn = errors.New("tunnel: spawn failed")

	// ErrTunnelExit: the tunnel child exited non-zero without a shutdown
	// having been requested. Fatal; triggers shutdown.
	ErrTunnelExit = errors.New("tunnel: exited unexpectedly")

	// ErrAcceptFatal: a listener socket died unexpectedly (Pool -> Coordinator).
	// Fatal.
	ErrAcceptFatal = errors.New("listener: accept failed")
)
