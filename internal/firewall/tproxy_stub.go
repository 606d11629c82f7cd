//go:build !linux

package firewall

import (
	"context"
	"errors"
	"net"

	"github.com/die-net/redirtun/internal/config"
)

// listenTransparentTCP is not supported on non-Linux platforms: transparent
// mode depends on IP_TRANSPARENT, which is Linux-specific. This is in line
// with spec.md's non-goal of supporting platforms without the kernel
// redirect/recovery primitives.
func listenTransparentTCP(_ context.Context, _ config.ListenerAddr) (net.Listener, error) {
	return nil, errors.New("tproxy backend requires linux")
}
