package firewall

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/die-net/redirtun/internal/config"
	"github.com/die-net/redirtun/internal/subnet"
)

const (
	tproxyFwmark = "0x1"
	tproxyTable  = "100"
)

// tproxyDriver implements the transparent-proxy backend: mangle-table TPROXY
// rules mark and redirect matching packets to the local listener without
// rewriting the destination address, and policy routing delivers marked
// packets to the local machine. Because the destination is never rewritten,
// OriginalDst only needs the accepted socket's own local address.
type tproxyDriver struct{}

func (d *tproxyDriver) PlanSetup(cfg config.FirewallConfig) (Commands, error) {
	var cmds Commands
	for _, fam := range cfg.Families {
		if !fam.Enable {
			continue
		}
		ipt := iptablesFor(fam.Listener)
		ipCmd := ipRuleFamily(fam.Listener)
		chain := tproxyChainName(fam.Listener)
		port := strconv.Itoa(fam.Listener.Port)

		cmds = append(cmds, Command{ipt, []string{"-w", "-t", "mangle", "-N", chain}})
		for _, r := range subnet.Rules(fam.Includes, fam.Excludes) {
			if r.Exclude {
				cmds = append(cmds, Command{ipt, []string{"-w", "-t", "mangle", "-A", chain, "-d", r.Net.String(), "-j", "RETURN"}})
				continue
			}
			cmds = append(cmds, Command{ipt, []string{
				"-w", "-t", "mangle", "-A", chain, "-p", "tcp", "-d", r.Net.String(),
				"-j", "TPROXY", "--on-port", port, "--tproxy-mark", tproxyFwmark + "/" + tproxyFwmark,
			}})
		}
		if cfg.FilterFromUser != "" {
			cmds = append(cmds, Command{ipt, []string{
				"-w", "-t", "mangle", "-I", chain, "1", "-m", "owner", "--uid-owner", cfg.FilterFromUser, "-j", "RETURN",
			}})
		}
		cmds = append(cmds, Command{ipt, []string{"-w", "-t", "mangle", "-A", "PREROUTING", "-j", chain}})

		cmds = append(cmds, ipCmd("rule", "add", "fwmark", tproxyFwmark, "table", tproxyTable))
		cmds = append(cmds, ipCmd("route", "add", "local", anyRoute(fam.Listener), "dev", "lo", "table", tproxyTable))
	}
	return cmds, nil
}

func (d *tproxyDriver) PlanRestore(cfg config.FirewallConfig) (Commands, error) {
	var cmds Commands
	for i := len(cfg.Families) - 1; i >= 0; i-- {
		fam := cfg.Families[i]
		if !fam.Enable {
			continue
		}
		ipt := iptablesFor(fam.Listener)
		ipCmd := ipRuleFamily(fam.Listener)
		chain := tproxyChainName(fam.Listener)

		cmds = append(cmds, ipCmd("route", "del", "local", anyRoute(fam.Listener), "table", tproxyTable))
		cmds = append(cmds, ipCmd("rule", "del", "fwmark", tproxyFwmark, "table", tproxyTable))

		cmds = append(cmds, Command{ipt, []string{"-w", "-t", "mangle", "-D", "PREROUTING", "-j", chain}})
		cmds = append(cmds, Command{ipt, []string{"-w", "-t", "mangle", "-F", chain}})
		cmds = append(cmds, Command{ipt, []string{"-w", "-t", "mangle", "-X", chain}})
	}
	return cmds, nil
}

func (d *tproxyDriver) Listen(ctx context.Context, addr config.ListenerAddr) (net.Listener, error) {
	ln, err := listenTransparentTCP(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("tproxy listen %s: %w", addr, err)
	}
	return ln, nil
}

func (d *tproxyDriver) OriginalDst(c net.Conn) (net.IP, int, error) {
	addr, ok := c.LocalAddr().(*net.TCPAddr)
	if !ok {
		return nil, 0, fmt.Errorf("tproxy original dst: not a TCP connection")
	}
	return addr.IP, addr.Port, nil
}

func tproxyChainName(l config.ListenerAddr) string {
	return fmt.Sprintf("REDIRTUN_TP_%d", l.Port)
}

func ipRuleFamily(l config.ListenerAddr) func(args ...string) Command {
	if l.IsIPv6() {
		return func(args ...string) Command { return Command{"ip", append([]string{"-6"}, args...)} }
	}
	return func(args ...string) Command { return Command{"ip", args} }
}

func anyRoute(l config.ListenerAddr) string {
	if l.IsIPv6() {
		return "::/0"
	}
	return "0.0.0.0/0"
}
