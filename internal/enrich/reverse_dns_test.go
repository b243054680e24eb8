package enrich

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"FlowChains/internal/core/model"
	"FlowChains/internal/engine/direction"
	"FlowChains/internal/logging"
	"FlowChains/internal/pipeline"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	names map[string]string
	calls map[string]int
}

func newFakeResolver(names map[string]string) *fakeResolver {
	return &fakeResolver{names: names, calls: map[string]int{}}
}

func (f *fakeResolver) LookupAddr(_ context.Context, ip net.IP) (string, error) {
	f.calls[ip.String()]++
	if name, ok := f.names[ip.String()]; ok {
		return name, nil
	}
	return "", errors.New("host not found")
}

func packet(src, dst string) *model.PacketRecord {
	return &model.PacketRecord{
		Network: &model.NetworkLayer{Type: model.NetworkIPv4, Src: net.ParseIP(src), Dst: net.ParseIP(dst)},
	}
}

func TestReverseDNSDomains(t *testing.T) {
	resolver := newFakeResolver(map[string]string{"93.184.216.34": "example.com"})
	r := NewReverseDNS(resolver, nil, NewCache(0, time.Minute, clock.NewMock()), logging.NewTestLogger(t))
	ctx := context.Background()

	tests := []struct {
		ip   string
		want string
	}{
		{"192.168.1.10", DomainInternal},
		{"fd00::1", DomainInternal},
		{"224.0.0.251", DomainMulticastDNS},
		{"ff02::fb", DomainMulticastDNS},
		{"93.184.216.34", "example.com"},
		{"203.0.113.9", DomainNX},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.Domain(ctx, net.ParseIP(tt.ip)), tt.ip)
	}
	assert.Empty(t, r.Domain(ctx, nil))
}

func TestReverseDNSCachesUntilTTL(t *testing.T) {
	mock := clock.NewMock()
	resolver := newFakeResolver(map[string]string{"93.184.216.34": "example.com"})
	r := NewReverseDNS(resolver, nil, NewCache(0, time.Minute, mock), nil)
	ctx := context.Background()
	ip := net.ParseIP("93.184.216.34")
	missing := net.ParseIP("203.0.113.9")

	r.Domain(ctx, ip)
	r.Domain(ctx, ip)
	r.Domain(ctx, missing)
	r.Domain(ctx, missing)
	assert.Equal(t, 1, resolver.calls["93.184.216.34"])
	assert.Equal(t, 1, resolver.calls["203.0.113.9"])

	mock.Add(time.Minute)
	r.Domain(ctx, ip)
	assert.Equal(t, 2, resolver.calls["93.184.216.34"])
}

func TestReverseDNSUsesLocality(t *testing.T) {
	locality, err := direction.NewLocality("prefix")
	require.NoError(t, err)
	resolver := newFakeResolver(nil)
	r := NewReverseDNS(resolver, locality, nil, nil)

	// 172.20.0.0 is private but outside the legacy prefixes.
	assert.Equal(t, DomainNX, r.Domain(context.Background(), net.ParseIP("172.20.0.1")))
	assert.Equal(t, 1, resolver.calls["172.20.0.1"])
}

func TestEnrichFillsBothEndpoints(t *testing.T) {
	resolver := newFakeResolver(map[string]string{"93.184.216.34": "example.com"})
	r := NewReverseDNS(resolver, nil, nil, nil)

	p := packet("10.0.0.1", "93.184.216.34")
	r.Enrich(context.Background(), p)
	assert.Equal(t, DomainInternal, p.Network.SrcDomain)
	assert.Equal(t, "example.com", p.Network.DstDomain)

	arp := &model.PacketRecord{}
	r.Enrich(context.Background(), arp)
	assert.Nil(t, arp.Network)
}

func TestStageEnrichesStream(t *testing.T) {
	r := NewReverseDNS(newFakeResolver(nil), nil, nil, nil)
	in := pipeline.FromSlice([]*model.PacketRecord{packet("10.0.0.1", "10.0.0.2"), {}})

	out, err := Stage(in, r)
	require.NoError(t, err)
	records, err := pipeline.Collect(context.Background(), out)
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, DomainInternal, records[0].Network.DstDomain)
}

func TestCachePurge(t *testing.T) {
	mock := clock.NewMock()
	c := NewCache(0, time.Second, mock)
	c.Set("a", "1")
	mock.Add(500 * time.Millisecond)
	c.Set("b", "2")

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	mock.Add(500 * time.Millisecond)
	assert.Equal(t, 1, c.Purge())
	_, ok = c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
}

func TestCacheIsBounded(t *testing.T) {
	mock := clock.NewMock()
	c := NewCache(2, time.Hour, mock)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Get("a")
	c.Set("c", "3")

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("b")
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
}

func TestCacheDropsExpiredEntriesOnSet(t *testing.T) {
	mock := clock.NewMock()
	c := NewCache(0, time.Second, mock)
	for _, k := range []string{"a", "b", "c"} {
		c.Set(k, k)
	}
	mock.Add(time.Second)
	c.Set("d", "d")
	assert.Equal(t, 1, c.Len())
}

func TestReverseDNSMemoryIsBounded(t *testing.T) {
	resolver := newFakeResolver(nil)
	r := NewReverseDNS(resolver, nil, NewCache(16, time.Hour, clock.NewMock()), nil)
	for i := 0; i < 200; i++ {
		r.Domain(context.Background(), net.IPv4(203, 0, byte(i/250), byte(i%250+1)))
	}
	assert.Equal(t, 16, r.cache.Len())
}
