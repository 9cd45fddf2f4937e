// Package ipnet holds the small IPv4 helpers used by firewall and
// blocklist maintenance: dash-range expansion and CIDR-to-mask
// conversion.
package ipnet

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"
)

// ExpandRange expands "A.B.C.D-W.X.Y.Z" into every address in the
// inclusive range, one per element. Reversed bounds are tolerated and
// normalized. A bare address expands to itself.
func ExpandRange(r string) ([]string, error) {
	r = strings.TrimSpace(r)
	if r == "" {
		return nil, fmt.Errorf("empty range")
	}

	var startStr, endStr string
	if i := strings.Index(r, "-"); i >= 0 {
		startStr, endStr = r[:i], r[i+1:]
	} else {
		startStr, endStr = r, r
	}

	start, err := parseIPv4(startStr)
	if err != nil {
		return nil, fmt.Errorf("range %q: %w", r, err)
	}
	end, err := parseIPv4(endStr)
	if err != nil {
		return nil, fmt.Errorf("range %q: %w", r, err)
	}
	if start > end {
		start, end = end, start
	}

	ips := make([]string, 0, end-start+1)
	for n := start; ; n++ {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], n)
		ips = append(ips, net.IP(b[:]).String())
		if n == end {
			break
		}
	}
	return ips, nil
}

// ExpandRanges expands multiple comma or whitespace separated ranges.
func ExpandRanges(s string) ([]string, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	if len(parts) == 0 {
		return nil, fmt.Errorf("no ranges given")
	}

	var all []string
	for _, p := range parts {
		ips, err := ExpandRange(p)
		if err != nil {
			return nil, err
		}
		all = append(all, ips...)
	}
	return all, nil
}

// MaskFromCIDR converts a CIDR ("10.0.0.0/24") or a bare prefix length
// ("/24" or "24") to its dotted-quad subnet mask.
func MaskFromCIDR(cidr string) (string, error) {
	cidr = strings.TrimSpace(cidr)

	prefixStr := cidr
	if i := strings.Index(cidr, "/"); i >= 0 {
		if i > 0 {
			if _, err := parseIPv4(cidr[:i]); err != nil {
				return "", fmt.Errorf("cidr %q: %w", cidr, err)
			}
		}
		prefixStr = cidr[i+1:]
	}

	var prefix int
	if _, err := fmt.Sscanf(prefixStr, "%d", &prefix); err != nil {
		return "", fmt.Errorf("cidr %q: bad prefix", cidr)
	}
	if prefix < 0 || prefix > 32 {
		return "", fmt.Errorf("cidr %q: prefix out of range", cidr)
	}

	mask := net.CIDRMask(prefix, 32)
	return net.IP(mask).String(), nil
}

func parseIPv4(s string) (uint32, error) {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return 0, fmt.Errorf("bad address %q", s)
	}
	v4 := ip.To4()
	if v4 == nil {
		return 0, fmt.Errorf("not IPv4: %q", s)
	}
	return binary.BigEndian.Uint32(v4), nil
}
