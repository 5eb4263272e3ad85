package inventory

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ReadStore is what the Reader needs from a backend.
type ReadStore interface {
	HistoryStore
	AggregateStore
}

// Reader serves current stock counts, preferring the aggregate.
type Reader struct {
	Store  ReadStore
	Logger *logrus.Logger
}

func NewReader(store ReadStore, logger *logrus.Logger) *Reader {
	return &Reader{Store: store, Logger: orDiscard(logger)}
}

// LatestStock returns the identity's current stock. An aggregate read failure
// is logged and falls through to summing the history; only a failure of that
// fallback is returned.
func (r *Reader) LatestStock(ctx context.Context, id Identity) (decimal.Decimal, error) {
	id = id.Group()
	key := id.AggregateKey()

	agg, err := r.Store.GetAggregate(ctx, key)
	switch {
	case err != nil:
		orDiscard(r.Logger).WithFields(logrus.Fields{
			"identity": id.String(),
			"key":      key,
		}).WithError(err).Warn("aggregate read failed; falling back to history")
	case agg != nil:
		return agg.CurrentStock, nil
	}

	return r.StockFromHistory(ctx, id)
}

// StockFromHistory sums the identity's inventory-kind history directly. Like
// the aggregate, it covers every record of the (name, category) pair.
func (r *Reader) StockFromHistory(ctx context.Context, id Identity) (decimal.Decimal, error) {
	id = id.Group()
	ms, err := r.Store.Query(ctx, InventoryOf(id))
	if err != nil {
		return decimal.Zero, fmt.Errorf("stock for %s: %w", id, err)
	}
	return SumHistory(id, ms), nil
}
