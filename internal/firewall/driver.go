// Package firewall implements the two redirection backends described in
// spec.md §4.1: a NAT (REDIRECT) variant and a transparent-proxy (TPROXY)
// variant. Both satisfy the Driver interface, so the rest of the system
// (the Listener Pool and Connection Forwarder) is written against Driver and
// never branches on which backend is in use.
package firewall

import (
	"context"
	"net"

	"github.com/die-net/redirtun/internal/config"
)

// Driver is the narrow capability shared by both redirection backends.
//
// The variant choice is frozen at startup (config.Family), and a Driver is
// immutable and safe for concurrent use by many Connection Forwarders once
// constructed.
type Driver interface {
	// PlanSetup computes the ordered command sequence that installs
	// redirection for cfg. It performs no I/O beyond building the command
	// list.
	PlanSetup(cfg config.FirewallConfig) (Commands, error)

	// PlanRestore computes the inverse of PlanSetup. It must be computable
	// without PlanSetup or Run having been called, from the same cfg.
	PlanRestore(cfg config.FirewallConfig) (Commands, error)

	// Listen binds addr, applying whatever per-socket kernel options this
	// backend requires to receive redirected traffic (a no-op for NAT; Listen
	// places the socket in transparent mode for TProxy).
	Listen(ctx context.Context, addr config.ListenerAddr) (net.Listener, error)

	// OriginalDst recovers the pre-redirect destination for an accepted
	// connection.
	OriginalDst(c net.Conn) (net.IP, int, error)
}

// New constructs the Driver selected by backend.
func New(backend config.Family) (Driver, error) {
	switch backend {
	case config.NAT:
		return &natDriver{}, nil
	case config.TProxy:
		return &tproxyDriver{}, nil
	default:
		return nil, &unsupportedBackendError{backend: backend}
	}
}

type unsupportedBackendError struct {
	backend config.Family
}

func (e *unsupportedBackendError) Error() string {
	return "firewall: unsupported backend " + string(e.backend)
}
