//go:build linux

package firewall

import (
	"errors"
	"net"
	"unsafe"

	"golang.org/x/sys/unix"
)

// soOriginalDst is SO_ORIGINAL_DST, the getsockopt name the kernel's
// netfilter NAT code uses to report a redirected socket's pre-DNAT
// destination. It is the same numeric value (80) at both IPPROTO_IP (for
// IPv4 sockets, via iptables REDIRECT) and IPPROTO_IPV6 (for IPv6 sockets,
// via ip6tables REDIRECT) — selecting the right level is what makes the
// lookup family-aware, mirroring the prototype's distinct OriginalDst vs
// Ip6tOriginalDst getsockopt calls.
const soOriginalDst = 80

// natOriginalDst recovers the pre-redirect destination of an accepted TCP
// connection from the kernel's connection-tracking entry. The lookup path is
// selected by the socket's own address family (SO_DOMAIN), not by any textual
// inspection of an address — so a v6 address that lexically resembles a
// v4-mapped address still takes the v6 path.
func natOriginalDst(c net.Conn) (net.IP, int, error) {
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return nil, 0, errors.New("nat original dst: not a TCP connection")
	}

	rc, err := tc.SyscallConn()
	if err != nil {
		return nil, 0, err
	}

	var ip net.IP
	var port int
	var sockErr error

	ctrlErr := rc.Control(func(fd uintptr) {
		domain, err := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_DOMAIN)
		if err != nil {
			sockErr = err
			return
		}
		if domain == unix.AF_INET6 {
			ip, port, sockErr = getOriginalDst6(fd)
			return
		}
		ip, port, sockErr = getOriginalDst4(fd)
	})
	if ctrlErr != nil {
		return nil, 0, ctrlErr
	}
	if sockErr != nil {
		return nil, 0, sockErr
	}
	return ip, port, nil
}

func getOriginalDst4(fd uintptr) (net.IP, int, error) {
	var raw unix.RawSockaddrInet4
	sz := uint32(unsafe.Sizeof(raw))
	_, _, errno := unix.Syscall6(
		unix.SYS_GETSOCKOPT,
		fd,
		uintptr(unix.IPPROTO_IP),
		uintptr(soOriginalDst),
		uintptr(unsafe.Pointer(&raw)),
		uintptr(unsafe.Pointer(&sz)),
		0,
	)
	if errno != 0 {
		return nil, 0, errno
	}
	port := int(raw.Port>>8) | int(raw.Port&0xff)<<8
	ip := net.IPv4(raw.Addr[0], raw.Addr[1], raw.Addr[2], raw.Addr[3])
	return ip, port, nil
}

func getOriginalDst6(fd uintptr) (net.IP, int, error) {
	var raw unix.RawSockaddrInet6
	sz := uint32(unsafe.Sizeof(raw))
	_, _, errno := unix.Syscall6(
		unix.SYS_GETSOCKOPT,
		fd,
		uintptr(unix.IPPROTO_IPV6),
		uintptr(soOriginalDst),
		uintptr(unsafe.Pointer(&raw)),
		uintptr(unsafe.Pointer(&sz)),
		0,
	)
	if errno != 0 {
		return nil, 0, errno
	}
	port := int(raw.Port>>8) | int(raw.Port&0xff)<<8
	ip := make(net.IP, net.IPv6len)
	copy(ip, raw.Addr[:])
	return ip, port, nil
}
