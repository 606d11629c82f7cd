package firewall

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/die-net/redirtun/internal/config"
	"github.com/die-net/redirtun/internal/proxy"
	"github.com/die-net/redirtun/internal/subnet"
)

// natDriver implements the NAT REDIRECT backend: iptables/ip6tables rewrite
// matching destinations to the local listener's port, and the kernel
// remembers the pre-rewrite destination in its connection-tracking table.
type natDriver struct{}

func (d *natDriver) PlanSetup(cfg config.FirewallConfig) (Commands, error) {
	var cmds Commands
	for _, fam := range cfg.Families {
		if !fam.Enable {
			continue
		}
		ipt := iptablesFor(fam.Listener)
		chain := natChainName(fam.Listener)
		port := strconv.Itoa(fam.Listener.Port)

		cmds = append(cmds, Command{ipt, []string{"-w", "-t", "nat", "-N", chain}})
		for _, r := range subnet.Rules(fam.Includes, fam.Excludes) {
			if r.Exclude {
				cmds = append(cmds, Command{ipt, []string{"-w", "-t", "nat", "-A", chain, "-d", r.Net.String(), "-j", "RETURN"}})
				continue
			}
			cmds = append(cmds, Command{ipt, []string{
				"-w", "-t", "nat", "-A", chain, "-p", "tcp", "-d", r.Net.String(),
				"-j", "REDIRECT", "--to-port", port,
			}})
		}
		if cfg.FilterFromUser != "" {
			cmds = append(cmds, Command{ipt, []string{
				"-w", "-t", "nat", "-I", chain, "1", "-m", "owner", "--uid-owner", cfg.FilterFromUser, "-j", "RETURN",
			}})
		}
		cmds = append(cmds, Command{ipt, []string{"-w", "-t", "nat", "-A", "PREROUTING", "-j", chain}})
	}
	return cmds, nil
}

func (d *natDriver) PlanRestore(cfg config.FirewallConfig) (Commands, error) {
	var cmds Commands
	// Reverse listener order so chains created later are torn down first;
	// within a chain, the jump rule is removed before the chain is flushed.
	for i := len(cfg.Families) - 1; i >= 0; i-- {
		fam := cfg.Families[i]
		if !fam.Enable {
			continue
		}
		ipt := iptablesFor(fam.Listener)
		chain := natChainName(fam.Listener)

		cmds = append(cmds, Command{ipt, []string{"-w", "-t", "nat", "-D", "PREROUTING", "-j", chain}})
		cmds = append(cmds, Command{ipt, []string{"-w", "-t", "nat", "-F", chain}})
		cmds = append(cmds, Command{ipt, []string{"-w", "-t", "nat", "-X", chain}})
	}
	return cmds, nil
}

func (d *natDriver) Listen(ctx context.Context, addr config.ListenerAddr) (net.Listener, error) {
	ln, err := proxy.ListenTCP(ctx, string(addr.Proto), addr.String())
	if err != nil {
		return nil, fmt.Errorf("nat listen %s: %w", addr, err)
	}
	return ln, nil
}

func (d *natDriver) OriginalDst(c net.Conn) (net.IP, int, error) {
	return natOriginalDst(c)
}

func natChainName(l config.ListenerAddr) string {
	return fmt.Sprintf("REDIRTUN_%d", l.Port)
}

func iptablesFor(l config.ListenerAddr) string {
	if l.IsIPv6() {
		return "ip6tables"
	}
	return "iptables"
}
