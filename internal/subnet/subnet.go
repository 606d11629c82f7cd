// Package subnet implements longest-prefix include/exclude matching over
// destination addresses, per family.
package subnet

import (
	"net"
	"sort"
)

// Set is a pair of disjoint CIDR collections: addresses matching Includes are
// candidates for redirection, unless a longer (or equal) prefix in Excludes
// also matches, in which case the exclude wins.
//
// An empty Includes means "nothing matches".
type Set struct {
	Includes []*net.IPNet
	Excludes []*net.IPNet
}

// Parse parses a list of CIDR strings (e.g. "10.0.0.0/8") into a slice of
// *net.IPNet, skipping nothing and erroring on the first malformed entry.
func Parse(cidrs []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			return nil, err
		}
		nets = append(nets, n)
	}
	return nets, nil
}

// Matches reports whether ip should be redirected: it is covered by some
// network in includes, and not by a network in excludes with an
// equal-or-longer prefix.
//
// Ties (an include and an exclude with the same prefix length both covering
// ip) resolve to the exclude, per spec: "excludes wins ties".
func Matches(includes, excludes []*net.IPNet, ip net.IP) bool {
	inLen, ok := longestMatch(includes, ip)
	if !ok {
		return false
	}
	exLen, ok := longestMatch(excludes, ip)
	if ok && exLen >= inLen {
		return false
	}
	return true
}

// longestMatch returns the longest prefix length among nets that contains ip,
// and whether any network matched at all.
func longestMatch(nets []*net.IPNet, ip net.IP) (int, bool) {
	best := -1
	matched := false
	for _, n := range nets {
		if !n.Contains(ip) {
			continue
		}
		ones, _ := n.Mask.Size()
		if !matched || ones > best {
			best = ones
			matched = true
		}
	}
	return best, matched
}

// Rule is one network in the priority order a firewall backend must emit
// its matching rules in: Net, tagged with whether it came from the exclude
// set.
type Rule struct {
	Net     *net.IPNet
	Exclude bool
}

// Rules merges includes and excludes into the single rule list a firewall
// backend should emit, in evaluation order: longest prefix first, since a
// packet-filter chain is evaluated top to bottom and the first matching
// rule governs. Ties (same prefix length) keep excludes ahead of includes,
// so an exclude and an include of equal specificity resolve the same way
// Matches does. This is what makes the emitted rule chain agree with
// Matches: a more specific include inside a broader exclude is placed
// first and wins, exactly as spec.md's "longest-prefix, excludes win ties"
// invariant requires.
func Rules(includes, excludes []*net.IPNet) []Rule {
	rules := make([]Rule, 0, len(includes)+len(excludes))
	for _, n := range excludes {
		rules = append(rules, Rule{Net: n, Exclude: true})
	}
	for _, n := range includes {
		rules = append(rules, Rule{Net: n})
	}
	sort.SliceStable(rules, func(i, j int) bool {
		oi, _ := rules[i].Net.Mask.Size()
		oj, _ := rules[j].Net.Mask.Size()
		return oi > oj
	})
	return rules
}

// ByFamily returns the networks in nets that belong to one IP family: IPv6
// networks when v6 is true, IPv4 networks otherwise.
func ByFamily(nets []*net.IPNet, v6 bool) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(nets))
	for _, n := range nets {
		is6 := n.IP.To4() == nil
		if is6 == v6 {
			out = append(out, n)
		}
	}
	return out
}
