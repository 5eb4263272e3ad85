package inventory

import "context"

// Guard wraps tx so that any read issued after a write fails with
// ErrReadAfterWrite. Backing document stores forbid interleaving reads after
// writes inside one transaction; the guard enforces it for every store.
func Guard(tx Tx) Tx {
	if g, ok := tx.(*guardedTx); ok {
		return g
	}
	return &guardedTx{inner: tx}
}

type guardedTx struct {
	inner Tx
	wrote bool
}

func (g *guardedTx) GetItem(ctx context.Context, id ItemID) (*Item, error) {
	if g.wrote {
		return nil, ErrReadAfterWrite
	}
	return g.inner.GetItem(ctx, id)
}

func (g *guardedTx) GetAggregate(ctx context.Context, key string) (*Aggregate, error) {
	if g.wrote {
		return nil, ErrReadAfterWrite
	}
	return g.inner.GetAggregate(ctx, key)
}

func (g *guardedTx) GetDocument(ctx context.Context, ref DocRef, dst any) (bool, error) {
	if g.wrote {
		return false, ErrReadAfterWrite
	}
	return g.inner.GetDocument(ctx, ref, dst)
}

func (g *guardedTx) PutItem(ctx context.Context, item Item) error {
	g.wrote = true
	return g.inner.PutItem(ctx, item)
}

func (g *guardedTx) AppendMovement(ctx context.Context, m Movement) error {
	g.wrote = true
	return g.inner.AppendMovement(ctx, m)
}

func (g *guardedTx) PutAggregate(ctx context.Context, a Aggregate) error {
	g.wrote = true
	return g.inner.PutAggregate(ctx, a)
}

func (g *guardedTx) PutDocument(ctx context.Context, ref DocRef, v any) error {
	g.wrote = true
	return g.inner.PutDocument(ctx, ref, v)
}

func (g *guardedTx) DeleteDocument(ctx context.Context, ref DocRef) error {
	g.wrote = true
	return g.inner.DeleteDocument(ctx, ref)
}
