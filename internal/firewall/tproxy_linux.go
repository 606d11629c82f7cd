//go:build linux

package firewall

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/die-net/redirtun/internal/config"
	"github.com/die-net/redirtun/internal/proxy"
)

// listenTransparentTCP binds addr with IP_TRANSPARENT (and IPV6_TRANSPARENT
// for v6 listeners) set, so the socket can accept connections addressed to
// destinations other than its own bound address — the prerequisite for the
// TPROXY rules planned in PlanSetup.
func listenTransparentTCP(ctx context.Context, addr config.ListenerAddr) (net.Listener, error) {
	lc := net.ListenConfig{Control: func(network, _ string, c syscall.RawConn) error {
		var ctrlErr error
		err := c.Control(func(fd uintptr) {
			if network == "tcp6" {
				ctrlErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_TRANSPARENT, 1)
				return
			}
			ctrlErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TRANSPARENT, 1)
		})
		if err != nil {
			return err
		}
		return ctrlErr
	}}

	ln, err := lc.Listen(ctx, "tcp", addr.String())
	if err != nil {
		return nil, err
	}
	return proxy.Wrap(ln), nil
}
