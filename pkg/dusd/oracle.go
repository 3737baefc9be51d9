package dusd

import (
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// PriceOracle is the valuation dependency of the core components. Prices
// are expressed in the fixed base-currency unit (PriceDecimals). The core
// treats every price as untrusted input read at call time; there is no
// "assume price = 1" fallback anywhere.
type PriceOracle interface {
	// GetAssetPrice returns the current price or fails if no feed is
	// registered or every feed is stale.
	GetAssetPrice(symbol string) (*big.Int, error)

	// GetPriceInfo never fails; alive=false signals staleness/invalidity
	// and the returned price must not be used for valuation.
	GetPriceInfo(symbol string) (price *big.Int, alive bool)
}

// PriceFeed is a single upstream price source for one symbol.
type PriceFeed interface {
	Symbol() string
	Decimals() uint8
	Latest() (price *big.Int, updatedAt time.Time, err error)
}

// FeedOracle aggregates one or more feeds per symbol with a median and a
// staleness cutoff. Feeds whose unit does not match PriceDecimals are
// rejected at registration time.
type FeedOracle struct {
	feeds      map[string][]PriceFeed
	staleAfter time.Duration
	now        func() time.Time
	mu         sync.RWMutex
}

// NewFeedOracle creates an oracle with the given staleness threshold.
func NewFeedOracle(staleAfter time.Duration) *FeedOracle {
	return &FeedOracle{
		feeds:      make(map[string][]PriceFeed),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// RegisterFeed adds a feed for its symbol.
func (o *FeedOracle) RegisterFeed(feed PriceFeed) error {
	if feed.Decimals() != PriceDecimals {
		return &FeedDecimalsError{Symbol: feed.Symbol(), Got: feed.Decimals(), Want: PriceDecimals}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.feeds[feed.Symbol()] = append(o.feeds[feed.Symbol()], feed)
	return nil
}

// GetAssetPrice returns the median of all live feed prices for symbol.
func (o *FeedOracle) GetAssetPrice(symbol string) (*big.Int, error) {
	o.mu.RLock()
	feeds := o.feeds[symbol]
	o.mu.RUnlock()

	if len(feeds) == 0 {
		return nil, &NoPriceError{Symbol: symbol}
	}

	now := o.now()
	live := make([]decimal.Decimal, 0, len(feeds))
	oldest := time.Duration(0)
	for _, f := range feeds {
		price, updatedAt, err := f.Latest()
		if err != nil || isZeroOrNegative(price) {
			continue
		}
		age := now.Sub(updatedAt)
		if age > o.staleAfter {
			if age > oldest {
				oldest = age
			}
			continue
		}
		live = append(live, decimal.NewFromBigInt(price, 0))
	}

	if len(live) == 0 {
		if oldest > 0 {
			return nil, &StalePriceError{Symbol: symbol, Age: oldest.String()}
		}
		return nil, &NoPriceError{Symbol: symbol}
	}

	return medianPrice(live), nil
}

// GetPriceInfo reports the price and whether it is usable.
func (o *FeedOracle) GetPriceInfo(symbol string) (*big.Int, bool) {
	price, err := o.GetAssetPrice(symbol)
	if err != nil {
		return big.NewInt(0), false
	}
	return price, true
}

// medianPrice returns the median of prices; for an even count the two
// middle values are averaged with floor rounding.
func medianPrice(prices []decimal.Decimal) *big.Int {
	sort.Slice(prices, func(i, j int) bool { return prices[i].LessThan(prices[j]) })
	n := len(prices)
	if n%2 == 1 {
		return prices[n/2].BigInt()
	}
	mid := prices[n/2-1].Add(prices[n/2]).Div(decimal.NewFromInt(2))
	return mid.Floor().BigInt()
}

// StaticFeed is a settable feed, used by tests and by the daemon to pin
// administrative prices.
type StaticFeed struct {
	symbol    string
	price     *big.Int
	updatedAt time.Time
	mu        sync.RWMutex
}

// NewStaticFeed creates a feed with an initial price observed now.
func NewStaticFeed(symbol string, price *big.Int) *StaticFeed {
	return &StaticFeed{symbol: symbol, price: new(big.Int).Set(price), updatedAt: time.Now()}
}

func (f *StaticFeed) Symbol() string  { return f.symbol }
func (f *StaticFeed) Decimals() uint8 { return PriceDecimals }

// Set updates the feed price and refreshes its timestamp.
func (f *StaticFeed) Set(price *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price = new(big.Int).Set(price)
	f.updatedAt = time.Now()
}

// SetAt updates the feed with an explicit observation time.
func (f *StaticFeed) SetAt(price *big.Int, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price = new(big.Int).Set(price)
	f.updatedAt = at
}

func (f *StaticFeed) Latest() (*big.Int, time.Time, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return new(big.Int).Set(f.price), f.updatedAt, nil
}
