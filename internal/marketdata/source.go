package marketdata

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwtly10/stratsim/internal/types"
)

// Source is a historical price source. Candles come back in ascending time
// order and may be fewer than the range would hold.
type Source interface {
	FetchCandles(ctx context.Context, symbol string, intervalMinutes int, since time.Time) ([]types.Bar, error)
}

// CachedSource memoises fetches so repeated runs over the same symbol and
// interval only hit the upstream source once per ttl.
type CachedSource struct {
	src   Source
	cache *cache.Cache
}

func NewCachedSource(src Source, ttl time.Duration) *CachedSource {
	return &CachedSource{src: src, cache: cache.New(ttl, 2*ttl)}
}

func (c *CachedSource) FetchCandles(ctx context.Context, symbol string, intervalMinutes int, since time.Time) ([]types.Bar, error) {
	key := fmt.Sprintf("%s|%d|%d", symbol, intervalMinutes, since.Unix())
	if v, ok := c.cache.Get(key); ok {
		return v.([]types.Bar), nil
	}

	bars, err := c.src.FetchCandles(ctx, symbol, intervalMinutes, since)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, bars)
	return bars, nil
}

// normalise sorts bars, drops duplicate timestamps and anything before since.
func normalise(bars []types.Bar, since time.Time) []types.Bar {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })

	out := bars[:0]
	for _, b := range bars {
		if !since.IsZero() && b.Timestamp.Before(since) {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(b.Timestamp) {
			continue
		}
		out = append(out, b)
	}
	return out
}
