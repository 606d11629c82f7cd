package main

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/die-net/redirtun/internal/config"
)

// sharedFlags holds the flag values common to "run" and "rules": both need
// the full configuration, just to different ends (one runs it, the other
// only plans commands from it).
type sharedFlags struct {
	configPath     string
	listen         []string
	includes       []string
	excludes       []string
	socksAddr      string
	remote         string
	firewall       string
	filterFromUser string
}

func registerSharedFlags(cmd *cobra.Command, f *sharedFlags) {
	flags := cmd.Flags()
	flags.StringVar(&f.configPath, "config", "", "Path to a YAML config file")
	flags.StringArrayVar(&f.listen, "listen", nil, "Listen address as proto:ip:port (repeatable), e.g. tcp:127.0.0.1:12345")
	flags.StringArrayVar(&f.includes, "include", nil, "CIDR to redirect (repeatable); overrides the config file's includes if set")
	flags.StringArrayVar(&f.excludes, "exclude", nil, "CIDR to exclude from redirection (repeatable); overrides the config file's excludes if set")
	flags.StringVar(&f.socksAddr, "socks-addr", "", "Local SOCKS5 proxy address the tunnel exposes and the forwarder dials")
	flags.StringVar(&f.remote, "remote", "", "Tunnel target passed to the tunnel child, e.g. user@host")
	flags.StringVar(&f.firewall, "firewall", "", "Firewall backend: nat or tproxy")
	flags.StringVar(&f.filterFromUser, "filter-from-user", "", "Exclude this user's own traffic from redirection, to prevent routing loops")
}

// load builds a config.Config by reading configPath (if set) and applying
// any flags the user actually set on top, following the layering described
// in SPEC_FULL.md's ambient stack section.
func (f *sharedFlags) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("include") {
		cfg.Includes = f.includes
	}
	if flags.Changed("exclude") {
		cfg.Excludes = f.excludes
	}
	if flags.Changed("socks-addr") {
		cfg.SocksAddr = f.socksAddr
	}
	if flags.Changed("remote") {
		cfg.Remote = f.remote
	}
	if flags.Changed("firewall") {
		cfg.Firewall = config.Family(f.firewall)
	}
	if flags.Changed("filter-from-user") {
		cfg.FilterFromUser = f.filterFromUser
	}
	if flags.Changed("listen") {
		entries, err := parseListenFlags(f.listen)
		if err != nil {
			return nil, err
		}
		cfg.Listen = entries
	}

	return cfg, nil
}

// parseListenFlags parses "proto:ip:port" entries, e.g. "tcp:127.0.0.1:12345"
// or "tcp:[::1]:12345" for an IPv6 address.
func parseListenFlags(raw []string) ([]config.ListenEntry, error) {
	entries := make([]config.ListenEntry, 0, len(raw))
	for _, s := range raw {
		proto, rest, ok := strings.Cut(s, ":")
		if !ok {
			return nil, fmt.Errorf("invalid --listen %q: expected proto:ip:port", s)
		}
		ip, portStr, err := net.SplitHostPort(rest)
		if err != nil {
			return nil, fmt.Errorf("invalid --listen %q: %w", s, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid --listen %q: bad port: %w", s, err)
		}
		entries = append(entries, config.ListenEntry{Proto: proto, IP: ip, Port: port})
	}
	return entries, nil
}
