package direction

import (
	"net"
	"net/netip"
	"strings"

	"github.com/pkg/errors"
)

// Locality decides whether an address belongs to the local network.
type Locality interface {
	IsInternal(ip net.IP) bool
}

// Locality policy names accepted by NewLocality.
const (
	LocalityCIDR   = "cidr"
	LocalityPrefix = "prefix"
)

// NewLocality returns the locality policy with the given name.
func NewLocality(name string) (Locality, error) {
	switch name {
	case "", LocalityCIDR:
		return DefaultCIDRLocality(), nil
	case LocalityPrefix:
		return PrefixLocality{}, nil
	default:
		return nil, errors.Errorf("unknown locality policy %q", name)
	}
}

// legacyPrefixes is matched against the textual address. It is loose on
// purpose: "172.16." misses most of 172.16.0.0/12 and "fd" matches any IPv6
// text starting with those letters.
var legacyPrefixes = []string{"10.", "172.16.", "192.168.", "169.254", "fd", "fe80::"}

// PrefixLocality reproduces the historical string prefix check.
type PrefixLocality struct{}

// IsInternal implements Locality.
func (PrefixLocality) IsInternal(ip net.IP) bool {
	if len(ip) == 0 {
		return false
	}
	s := ip.String()
	for _, p := range legacyPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// CIDRLocality matches addresses against real network prefixes.
type CIDRLocality struct {
	prefixes []netip.Prefix
}

// NewCIDRLocality parses the given CIDR strings.
func NewCIDRLocality(cidrs ...string) (*CIDRLocality, error) {
	l := &CIDRLocality{}
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(c)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid internal network %q", c)
		}
		l.prefixes = append(l.prefixes, p.Masked())
	}
	return l, nil
}

// DefaultCIDRLocality covers RFC 1918, IPv4 link-local, fd00::/8 and IPv6 link-local.
func DefaultCIDRLocality() *CIDRLocality {
	l, err := NewCIDRLocality(
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16",
		"fd00::/8",
		"fe80::/10",
	)
	if err != nil {
		panic(err)
	}
	return l
}

// IsInternal implements Locality.
func (l *CIDRLocality) IsInternal(ip net.IP) bool {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return false
	}
	addr = addr.Unmap()
	for _, p := range l.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
