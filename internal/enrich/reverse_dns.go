// Package enrich annotates packet records before they reach the flow table.
package enrich

import (
	"context"
	"net"
	"time"

	"FlowChains/internal/core/model"
	"FlowChains/internal/engine/direction"
	"FlowChains/internal/logging"
	contract "FlowChains/internal/model"
	"FlowChains/internal/pipeline"
)

// Domain names assigned without a lookup.
const (
	DomainInternal     = "internal"
	DomainMulticastDNS = "multicast_dns"
	DomainNX           = "nxdomain"
)

// DefaultCacheTTL is how long a resolved name is reused.
const DefaultCacheTTL = 10 * time.Minute

var special = map[string]string{
	"224.0.0.251": DomainMulticastDNS,
	"ff02::fb":    DomainMulticastDNS,
}

// ReverseDNS fills SrcDomain and DstDomain of every packet's network layer.
type ReverseDNS struct {
	resolver Resolver
	locality direction.Locality
	cache    *Cache
	logger   logging.Logger
}

// NewReverseDNS creates the enricher. A nil locality uses the default CIDR
// set and a nil cache a default sized one on the wall clock.
func NewReverseDNS(resolver Resolver, locality direction.Locality, cache *Cache, logger logging.Logger) *ReverseDNS {
	if locality == nil {
		locality = direction.DefaultCIDRLocality()
	}
	if cache == nil {
		cache = NewCache(DefaultCacheSize, DefaultCacheTTL, nil)
	}
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	return &ReverseDNS{
		resolver: resolver,
		locality: locality,
		cache:    cache,
		logger:   logger,
	}
}

// Enrich annotates p in place. Packets without a network layer are ignored.
func (r *ReverseDNS) Enrich(ctx context.Context, p *model.PacketRecord) {
	if p == nil || p.Network == nil {
		return
	}
	p.Network.SrcDomain = r.Domain(ctx, p.Network.Src)
	p.Network.DstDomain = r.Domain(ctx, p.Network.Dst)
}

// Domain returns the name for ip: a cached answer, "internal", a special
// multicast name, or the result of a PTR lookup.
func (r *ReverseDNS) Domain(ctx context.Context, ip net.IP) string {
	if len(ip) == 0 {
		return ""
	}
	addr := ip.String()
	if d, ok := r.cache.Get(addr); ok {
		return d
	}

	var domain string
	switch {
	case r.locality.IsInternal(ip):
		domain = DomainInternal
	case special[addr] != "":
		domain = special[addr]
	default:
		domain = r.lookup(ctx, ip)
	}
	r.cache.Set(addr, domain)
	return domain
}

func (r *ReverseDNS) lookup(ctx context.Context, ip net.IP) string {
	if r.resolver == nil {
		return DomainNX
	}
	name, err := r.resolver.LookupAddr(ctx, ip)
	if err != nil || name == "" {
		r.logger.Debug("reverse lookup failed", logging.Fields{"ip": ip.String(), "error": err})
		return DomainNX
	}
	return name
}

// Stage runs e over every packet of in.
func Stage(in pipeline.Stream[*model.PacketRecord], e contract.Enricher) (pipeline.Stream[*model.PacketRecord], error) {
	return pipeline.Tap(in, e.Enrich)
}
