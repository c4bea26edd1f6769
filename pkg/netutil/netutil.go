// Package netutil provides parsing helpers for scan target and port
// specifications.
//
// Target strings follow the scanner's own vocabulary: a comma-separated list
// whose items may be single IPs, hostnames, CIDR blocks, short last-octet
// ranges ("192.168.1.10-20") or full IP ranges ("10.0.0.1-10.0.0.9"). The
// helpers expand such a string into the individual hosts it names, which the
// execution controller needs to average per-host progress across a target.
package netutil

import (
	"bytes"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// expansion cap for CIDR blocks and ranges, to keep a typo like /2 from
// exhausting memory
const maxExpandedHosts = 65536

// incIP increments an IP address in place (IPv4 and IPv6).
func incIP(ip net.IP) {
	for j := len(ip) - 1; j >= 0; j-- {
		ip[j]++
		if ip[j] > 0 {
			break
		}
	}
}

// ExpandTarget expands a target specification into the list of individual
// hosts it names. Hostnames are kept verbatim, no DNS resolution happens
// here; the engine resolves names itself. Unparsable items are kept verbatim
// as well so a single odd entry never silently shrinks the host count.
func ExpandTarget(target string) []string {
	var hosts []string
	seen := make(map[string]struct{})

	add := func(h string) {
		if _, dup := seen[h]; dup {
			return
		}
		seen[h] = struct{}{}
		hosts = append(hosts, h)
	}

	for _, item := range strings.Split(target, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		switch {
		case strings.Contains(item, "/"):
			for _, h := range expandCIDR(item) {
				add(h)
			}
		case strings.Contains(item, "-"):
			for _, h := range expandRange(item) {
				add(h)
			}
		default:
			add(item)
		}
	}
	return hosts
}

// expandCIDR expands a CIDR block into its host addresses. For IPv4 networks
// smaller than /31 the network and broadcast addresses are skipped. An
// unparsable block yields the item itself.
func expandCIDR(item string) []string {
	ip, ipNet, err := net.ParseCIDR(item)
	if err != nil {
		return []string{item}
	}

	var hosts []string
	ones, bits := ipNet.Mask.Size()
	skipEdges := bits == 32 && ones < 31

	cur := ip.Mask(ipNet.Mask)
	for ipNet.Contains(cur) && len(hosts) < maxExpandedHosts {
		candidate := make(net.IP, len(cur))
		copy(candidate, cur)

		edge := false
		if skipEdges {
			network := ipNet.IP.To4()
			broadcast := make(net.IP, net.IPv4len)
			for i := 0; i < net.IPv4len; i++ {
				broadcast[i] = network[i] | ^ipNet.Mask[i]
			}
			edge = candidate.Equal(network) || candidate.Equal(broadcast)
		}
		if !edge {
			hosts = append(hosts, candidate.String())
		}

		if lastInNet(candidate, ipNet) {
			break
		}
		incIP(cur)
	}
	return hosts
}

// lastInNet reports whether ip is the highest address of its IPv4 network.
func lastInNet(ip net.IP, ipNet *net.IPNet) bool {
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	mask := ipNet.Mask
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}
	for i := 0; i < net.IPv4len; i++ {
		if v4[i]|^mask[i] != 0xff {
			return false
		}
	}
	return true
}

// expandRange expands "a.b.c.d-x" (last octet) and "a.b.c.d-e.f.g.h" forms.
func expandRange(item string) []string {
	parts := strings.SplitN(item, "-", 2)
	if len(parts) != 2 {
		return []string{item}
	}
	startStr := strings.TrimSpace(parts[0])
	endStr := strings.TrimSpace(parts[1])

	start := net.ParseIP(startStr)
	if start == nil {
		return []string{item}
	}

	// Short form: the end is a bare final octet.
	if v4 := start.To4(); v4 != nil {
		if endOctet, err := strconv.Atoi(endStr); err == nil {
			if endOctet < int(v4[3]) || endOctet > 255 {
				return []string{item}
			}
			base := fmt.Sprintf("%d.%d.%d", v4[0], v4[1], v4[2])
			hosts := make([]string, 0, endOctet-int(v4[3])+1)
			for i := int(v4[3]); i <= endOctet; i++ {
				hosts = append(hosts, fmt.Sprintf("%s.%d", base, i))
			}
			return hosts
		}
	}

	end := net.ParseIP(endStr)
	if end == nil || (start.To4() == nil) != (end.To4() == nil) {
		return []string{item}
	}
	if start.To4() != nil {
		start = start.To4()
		end = end.To4()
	}
	if bytes.Compare(start, end) > 0 {
		return []string{item}
	}

	var hosts []string
	cur := make(net.IP, len(start))
	copy(cur, start)
	for len(hosts) < maxExpandedHosts {
		hosts = append(hosts, cur.String())
		if cur.Equal(end) {
			break
		}
		incIP(cur)
	}
	return hosts
}

// ValidatePortSpec checks a port specification string ("80,443,1-1024",
// optionally with T:/U: protocol prefixes) for basic syntactic sanity.
// An empty specification is an error: a scan request that resolved no ports
// must be rejected before anything is launched.
func ValidatePortSpec(spec string) error {
	trimmed := strings.TrimSpace(spec)
	if trimmed == "" {
		return fmt.Errorf("empty port specification")
	}

	for _, item := range strings.Split(trimmed, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		// Protocol prefix as understood by the engine.
		if rest, ok := strings.CutPrefix(item, "T:"); ok {
			item = rest
		} else if rest, ok := strings.CutPrefix(item, "U:"); ok {
			item = rest
		}
		if item == "" {
			continue
		}

		lo, hi, isRange := strings.Cut(item, "-")
		if err := validatePort(lo); err != nil {
			return fmt.Errorf("port item %q: %w", item, err)
		}
		if isRange {
			if err := validatePort(hi); err != nil {
				return fmt.Errorf("port item %q: %w", item, err)
			}
			loN, _ := strconv.Atoi(strings.TrimSpace(lo))
			hiN, _ := strconv.Atoi(strings.TrimSpace(hi))
			if loN > hiN {
				return fmt.Errorf("port range %q: start above end", item)
			}
		}
	}
	return nil
}

func validatePort(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("not a number")
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("out of range")
	}
	return nil
}
