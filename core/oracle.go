package core

import (
	"context"
	"math/big"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type (
	// PriceData is a USD quote at FEED_DECIMALS fractional digits together
	// with the moment the feed last refreshed it.
	PriceData struct {
		Price     *big.Int  `json:"price"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	// PriceAdapter is the read contract of one asset's oracle. Staleness is
	// the engine's concern, not the adapter's.
	PriceAdapter interface {
		LatestPrice(ctx context.Context) (*PriceData, error)
	}

	// QuoteFeed is a market-data source quoting decimal USD prices, e.g. a
	// market info endpoint. QuoteFeedAdapter turns one of its assets into a
	// PriceAdapter.
	QuoteFeed interface {
		LatestQuote(ctx context.Context, assetId string) (decimal.Decimal, time.Time, error)
	}

	QuoteFeedAdapter struct {
		feed    QuoteFeed
		assetId string
	}
)

func NewQuoteFeedAdapter(feed QuoteFeed, assetId string) *QuoteFeedAdapter {
	return &QuoteFeedAdapter{feed: feed, assetId: assetId}
}

func (q *QuoteFeedAdapter) LatestPrice(ctx context.Context) (*PriceData, error) {
	quote, updatedAt, err := q.feed.LatestQuote(ctx, q.assetId)
	if err != nil {
		return nil, err
	}
	price := quote.Shift(FEED_DECIMALS).Truncate(0).BigInt()
	if price.Sign() <= 0 {
		return nil, errors.Errorf("oracle: non-positive quote %s for asset %s", quote, q.assetId)
	}
	return &PriceData{Price: price, UpdatedAt: updatedAt}, nil
}

// freshPrice reads the asset's oracle and rejects quotes older than the
// configured heartbeat.
func (e *Engine) freshPrice(ctx context.Context, reg *registeredAsset) (*big.Int, error) {
	data, err := reg.oracle.LatestPrice(ctx)
	if err != nil {
		return nil, err
	}
	if age := e.clk.Now().Sub(data.UpdatedAt); age > e.maxPriceAge {
		return nil, errors.Wrapf(StalePriceData, "asset %s: price is %s old", reg.asset.AssetId, age)
	}
	return data.Price, nil
}
