package mtf

import (
	"fmt"
	"math"

	"github.com/patrickmn/go-cache"

	"github.com/jwtly10/stratsim/internal/types"
)

// Aggregate buckets ratio consecutive bars into one higher timeframe bar. A
// trailing partial bucket is kept as the still-forming bar.
func Aggregate(bars []types.Bar, ratio int) []types.Bar {
	if ratio <= 1 {
		out := make([]types.Bar, len(bars))
		copy(out, bars)
		return out
	}

	out := make([]types.Bar, 0, (len(bars)+ratio-1)/ratio)
	for start := 0; start < len(bars); start += ratio {
		end := min(start+ratio, len(bars))
		out = append(out, merge(bars[start:end]))
	}
	return out
}

func merge(bucket []types.Bar) types.Bar {
	agg := types.Bar{
		Timestamp: bucket[0].Timestamp,
		Open:      bucket[0].Open,
		High:      bucket[0].High,
		Low:       bucket[0].Low,
		Close:     bucket[len(bucket)-1].Close,
	}
	for _, b := range bucket {
		agg.High = math.Max(agg.High, b.High)
		agg.Low = math.Min(agg.Low, b.Low)
		agg.Volume += b.Volume
	}
	return agg
}

// Aggregator keeps the completed buckets of one base series so that each new
// prefix only merges the bars added since the previous call.
type Aggregator struct {
	ratio     int
	completed []types.Bar
	consumed  int
}

func NewAggregator(ratio int) *Aggregator {
	return &Aggregator{ratio: max(ratio, 1)}
}

// Update aggregates prefix and returns at most limit trailing bars (all of
// them when limit <= 0), the forming bar last. prefix must be the base series
// sliced to the current index; a shorter prefix than last time resets state.
func (a *Aggregator) Update(prefix []types.Bar, limit int) []types.Bar {
	if len(prefix) < a.consumed {
		a.completed = a.completed[:0]
		a.consumed = 0
	}

	for a.consumed+a.ratio <= len(prefix) {
		a.completed = append(a.completed, merge(prefix[a.consumed:a.consumed+a.ratio]))
		a.consumed += a.ratio
	}

	n := len(a.completed)
	forming := a.consumed < len(prefix)
	if forming {
		n++
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]types.Bar, 0, limit)
	keep := limit
	if forming {
		keep--
	}
	out = append(out, a.completed[len(a.completed)-keep:]...)
	if forming {
		out = append(out, merge(prefix[a.consumed:]))
	}
	return out
}

// Cache holds the aggregators of one run, keyed by symbol and timeframe.
type Cache struct {
	items *cache.Cache
}

func NewCache() *Cache {
	return &Cache{items: cache.New(cache.NoExpiration, 0)}
}

func (c *Cache) Aggregator(symbol string, tf types.Timeframe, ratio int) *Aggregator {
	key := fmt.Sprintf("%s|%s", symbol, tf)
	if v, found := c.items.Get(key); found {
		return v.(*Aggregator)
	}

	agg := NewAggregator(ratio)
	c.items.Set(key, agg, cache.NoExpiration)
	return agg
}

func (c *Cache) Len() int {
	return c.items.ItemCount()
}

func (c *Cache) Reset() {
	c.items.Flush()
}
