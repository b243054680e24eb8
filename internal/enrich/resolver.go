package enrich

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
)

// ErrNoPTR is returned when the server answered without a PTR record.
var ErrNoPTR = errors.New("enrich: no PTR record")

// Resolver maps an address to a host name.
type Resolver interface {
	LookupAddr(ctx context.Context, ip net.IP) (string, error)
}

// DNSResolver sends PTR queries to a single DNS server.
type DNSResolver struct {
	client *dns.Client
	server string
}

// NewDNSResolver creates a resolver for server ("host:port"). An empty server
// uses the first nameserver of /etc/resolv.conf.
func NewDNSResolver(server string, timeout time.Duration) (*DNSResolver, error) {
	if server == "" {
		conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
		if err != nil {
			return nil, errors.Wrap(err, "no dns server configured")
		}
		if len(conf.Servers) == 0 {
			return nil, errors.New("no dns server configured")
		}
		server = net.JoinHostPort(conf.Servers[0], conf.Port)
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return &DNSResolver{
		client: &dns.Client{Net: "udp", Timeout: timeout},
		server: server,
	}, nil
}

// Server returns the address queries are sent to.
func (r *DNSResolver) Server() string { return r.server }

// LookupAddr returns the first PTR target for ip without its trailing dot.
func (r *DNSResolver) LookupAddr(ctx context.Context, ip net.IP) (string, error) {
	name, err := dns.ReverseAddr(ip.String())
	if err != nil {
		return "", errors.Wrapf(err, "cannot reverse %s", ip)
	}
	msg := new(dns.Msg)
	msg.SetQuestion(name, dns.TypePTR)

	in, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return "", errors.Wrapf(err, "ptr query for %s", ip)
	}
	if in.Rcode != dns.RcodeSuccess {
		return "", errors.Wrapf(ErrNoPTR, "%s: %s", ip, dns.RcodeToString[in.Rcode])
	}
	for _, rr := range in.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, "."), nil
		}
	}
	return "", errors.Wrapf(ErrNoPTR, "%s", ip)
}
