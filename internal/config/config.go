// Package config holds redirtun's configuration data model (spec data
// model, §3) and the YAML/flag loading conventions used to build it.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/die-net/redirtun/internal/subnet"
)

// Protocol is the listener's transport protocol. Only TCP produces a runtime
// listener; UDP is accepted for configuration compatibility and ignored.
type Protocol string

const (
	TCP Protocol = "tcp"
	UDP Protocol = "udp"
)

// Family selects the firewall driver variant applied to a listener.
type Family string

const (
	NAT    Family = "nat"
	TProxy Family = "tproxy"
)

// ListenerAddr is a (protocol, address, port) tuple.
type ListenerAddr struct {
	Proto Protocol
	IP    string
	Port  int
}

func (l ListenerAddr) String() string {
	return net.JoinHostPort(l.IP, strconv.Itoa(l.Port))
}

// IsIPv6 reports whether the listener's bound address is an IPv6 address.
func (l ListenerAddr) IsIPv6() bool {
	ip := net.ParseIP(l.IP)
	return ip != nil && ip.To4() == nil
}

// FamilyConfig is the per-listener firewall configuration: which subnets
// redirect to this listener, and under which address family.
type FamilyConfig struct {
	Listener ListenerAddr
	Includes []*net.IPNet
	Excludes []*net.IPNet
	Enable   bool
}

// FirewallConfig maps each configured listener to its FamilyConfig, plus the
// optional user whose traffic is excluded to prevent routing loops.
type FirewallConfig struct {
	Backend        Family
	Families       []FamilyConfig
	FilterFromUser string
}

// Config is the full redirtun configuration, as loaded from YAML and/or CLI
// flags.
type Config struct {
	Includes       []string      `yaml:"includes"`
	Excludes       []string      `yaml:"excludes"`
	Listen         []ListenEntry `yaml:"listen"`
	SocksAddr      string        `yaml:"socks_addr"`
	Remote         string        `yaml:"remote"`
	Firewall       Family        `yaml:"firewall"`
	FilterFromUser string        `yaml:"filter_from_user"`
}

// ListenEntry is one configured listen address as it appears in YAML or is
// built up from CLI flags before being converted to a typed ListenerAddr.
type ListenEntry struct {
	Proto string `yaml:"proto"`
	IP    string `yaml:"ip"`
	Port  int    `yaml:"port"`
}

// Load reads and parses the YAML config at path. A missing file is not an
// error; an empty Config is returned so CLI flags can fill it in entirely.
func Load(path string) (*Config, error) {
	var c Config
	if path == "" {
		return &c, nil
	}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &c, nil
}

// Validate checks the configuration is complete enough to run, and normalizes
// the firewall backend field.
func (c *Config) Validate() error {
	if len(c.Listen) == 0 {
		return fmt.Errorf("no listen addresses configured")
	}
	if c.SocksAddr == "" {
		return fmt.Errorf("socks_addr is required")
	}
	switch Family(strings.ToLower(string(c.Firewall))) {
	case NAT, TProxy:
		c.Firewall = Family(strings.ToLower(string(c.Firewall)))
	default:
		return fmt.Errorf("firewall must be %q or %q, got %q", NAT, TProxy, c.Firewall)
	}
	for _, l := range c.Listen {
		if l.Proto != "tcp" && l.Proto != "udp" {
			return fmt.Errorf("listen proto must be tcp or udp, got %q", l.Proto)
		}
		if l.Port <= 0 || l.Port > 65535 {
			return fmt.Errorf("invalid listen port: %d", l.Port)
		}
	}
	return nil
}

// ListenerAddrs returns the configured listeners as ListenerAddr values.
func (c *Config) ListenerAddrs() []ListenerAddr {
	out := make([]ListenerAddr, 0, len(c.Listen))
	for _, l := range c.Listen {
		out = append(out, ListenerAddr{Proto: Protocol(l.Proto), IP: l.IP, Port: l.Port})
	}
	return out
}

// ToFirewallConfig builds the FirewallConfig for this configuration: one
// FamilyConfig per listener, tagged by that listener's own address family,
// with includes/excludes filtered to the matching family.
//
// This mirrors the prototype's per-listener FirewallAnyConfig construction
// (each listen address carries its own family, rather than the process
// picking one family globally).
func (c *Config) ToFirewallConfig() (FirewallConfig, error) {
	includes, err := subnet.Parse(c.Includes)
	if err != nil {
		return FirewallConfig{}, fmt.Errorf("parse includes: %w", err)
	}
	excludes, err := subnet.Parse(c.Excludes)
	if err != nil {
		return FirewallConfig{}, fmt.Errorf("parse excludes: %w", err)
	}

	fc := FirewallConfig{
		Backend:        c.Firewall,
		FilterFromUser: c.FilterFromUser,
	}
	for _, l := range c.ListenerAddrs() {
		if l.Proto != TCP {
			continue
		}
		v6 := l.IsIPv6()
		fc.Families = append(fc.Families, FamilyConfig{
			Listener: l,
			Includes: subnet.ByFamily(includes, v6),
			Excludes: subnet.ByFamily(excludes, v6),
			Enable:   true,
		})
	}
	return fc, nil
}
