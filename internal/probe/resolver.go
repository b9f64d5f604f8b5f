package probe

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const resolveTTL = 30 * time.Second

type lookupFunc func(ctx context.Context, host string) ([]netip.Addr, error)

// resolver caches name lookups so a worker does not hit DNS on every probe.
// Each worker owns its own resolver.
type resolver struct {
	cache  *ttlcache.Cache[string, []netip.Addr]
	lookup lookupFunc
}

func newResolver(ttl time.Duration) *resolver {
	return &resolver{
		cache: ttlcache.New(
			ttlcache.WithTTL[string, []netip.Addr](ttl),
			ttlcache.WithCapacity[string, []netip.Addr](16),
		),
		lookup: func(ctx context.Context, host string) ([]netip.Addr, error) {
			return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
		},
	}
}

// resolve returns the addresses for host, using the cache when possible.
// IP literals are returned as is.
func (r *resolver) resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{addr}, nil
	}

	if item := r.cache.Get(host); item != nil {
		return item.Value(), nil
	}

	addrs, err := r.lookup(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no addresses found for %s", host)
	}
	r.cache.Set(host, addrs, ttlcache.DefaultTTL)
	return addrs, nil
}
