// Package preflight performs early validation before the tunnel child is
// spawned, so a misconfigured remote host is reported immediately instead of
// surfacing as an opaque ssh failure later.
package preflight

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// defaultTimeout bounds the preflight resolution lookup; it must stay well
// under the tunnel spawn path so a slow or unreachable resolver doesn't stall
// startup.
const defaultTimeout = 3 * time.Second

// ResolveRemoteHost resolves the host portion of a "user@host[:port]" or
// "host[:port]" tunnel target using the system resolver configuration
// (/etc/resolv.conf), returning the first resolved address for logging.
//
// Resolution failures are not fatal to the caller — they're surfaced so the
// Coordinator can log a clearer diagnostic before spawning the tunnel child,
// which would otherwise fail later with a less specific ssh error.
func ResolveRemoteHost(remote string) (net.IP, error) {
	host := remote
	if i := strings.LastIndex(host, "@"); i >= 0 {
		host = host[i+1:]
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")

	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}

	cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(cfg.Servers) == 0 {
		return nil, fmt.Errorf("preflight: no resolver configuration available: %w", err)
	}

	c := &dns.Client{Timeout: defaultTimeout}
	server := net.JoinHostPort(cfg.Servers[0], cfg.Port)

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)

	r, _, err := c.Exchange(m, server)
	if err != nil {
		return nil, fmt.Errorf("preflight: resolve %s: %w", host, err)
	}
	for _, ans := range r.Answer {
		if a, ok := ans.(*dns.A); ok {
			return a.A, nil
		}
	}
	return nil, fmt.Errorf("preflight: no A record for %s", host)
}
