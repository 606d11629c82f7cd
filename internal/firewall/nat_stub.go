//go:build !linux

package firewall

import (
	"errors"
	"net"
)

func natOriginalDst(_ net.Conn) (net.IP, int, error) {
	return nil, 0, errors.New("nat backend requires linux")
}
