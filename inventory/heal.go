/*
heal.go - Reconciliation engine (self-healing)

PURPOSE:
  Recomputes the authoritative balance for one identity by replaying its full
  ordered history, rewrites every record whose stored RunningStock drifted from
  the replay, and republishes the aggregate. One heal = one atomic batch.

ALGORITHM:
  1. Resolve candidates (patched in-memory list, or a fresh store query)
  2. Empty → zero the aggregate if one exists, return 0
  3. Stable-sort by normalized CreatedAt
  4. Walk, accumulating running/inflow/outflow; stage a correction per drift
  5. Commit corrections + aggregate upsert in one batch
  6. Return the current stock

FAILURE SEMANTICS:
  - Read failure: abort before any write
  - Commit failure: nothing is durable; re-run the whole heal
  - Re-running against unchanged history yields zero corrections

CONCURRENCY:
  A heal is not isolated from the Applier. A heal that raced a live movement
  is superseded by the next one. An optional Locker keeps two heals of the
  same identity from overlapping.

SEE ALSO:
  - stock.go: ReplayHistory
  - reader.go: Consumer of the published aggregate
*/
package inventory

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// HealStore is what the Healer needs from a backend.
type HealStore interface {
	HistoryStore
	AggregateStore
	Batcher
}

// Healer is the reconciliation engine.
type Healer struct {
	Store  HealStore
	Locker Locker
	Logger *logrus.Logger
	Now    Clock

	// Concurrency bounds HealAll. Zero means 4.
	Concurrency int
}

func NewHealer(store HealStore, logger *logrus.Logger) *Healer {
	return &Healer{Store: store, Logger: orDiscard(logger), Now: time.Now}
}

// HealInput selects what to heal.
//
// When Candidates is nil the Healer queries the store. When it is non-nil it
// is used as the full history (filtered to the identity's inventory-kind
// records) after applying Patch, which replaces the candidate with the same
// ID or is appended when no candidate matches. Identity.MasterID is ignored:
// a heal always covers the whole (name, category) group.
type HealInput struct {
	Identity   Identity
	Candidates []Movement
	Patch      *Movement
}

// Correction is one RunningStock rewrite staged by a heal.
type Correction struct {
	ID   MovementID
	From decimal.Decimal
	To   decimal.Decimal
}

type HealResult struct {
	Identity     Identity
	Key          string
	Records      int
	CurrentStock decimal.Decimal
	TotalInflow  decimal.Decimal
	TotalOutflow decimal.Decimal
	Corrections  []Correction
	HealedAt     *time.Time
}

// Heal reconciles one identity and returns the result.
func (h *Healer) Heal(ctx context.Context, in HealInput) (*HealResult, error) {
	id := in.Identity.Group()
	if id.Name == "" {
		return nil, fmt.Errorf("heal: %w: name is required", ErrInvalidIdentity)
	}
	key := id.AggregateKey()
	log := h.logger().WithFields(logrus.Fields{"identity": id.String(), "key": key})

	if h.Locker != nil {
		unlock, err := h.Locker.Lock(ctx, key)
		if err != nil {
			log.WithError(err).Warn("heal lock not obtained; proceeding without lock")
		} else {
			defer unlock()
		}
	}

	// Read phase. Nothing is written if this fails.
	movements, err := h.candidates(ctx, id, in)
	if err != nil {
		return nil, fmt.Errorf("heal %s: load history: %w", id, err)
	}

	result := &HealResult{
		Identity:     id,
		Key:          key,
		Records:      len(movements),
		CurrentStock: decimal.Zero,
		TotalInflow:  decimal.Zero,
		TotalOutflow: decimal.Zero,
	}

	if len(movements) == 0 {
		existing, err := h.Store.GetAggregate(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("heal %s: load aggregate: %w", id, err)
		}
		if existing == nil {
			return result, nil
		}
		now := h.now()
		batch := h.Store.NewBatch()
		batch.UpsertAggregate(Aggregate{
			Key:          key,
			Name:         id.Name,
			Category:     id.Category,
			CurrentStock: decimal.Zero,
			TotalInflow:  decimal.Zero,
			TotalOutflow: decimal.Zero,
			LastHealedAt: &now,
		})
		if err := batch.Commit(ctx); err != nil {
			return nil, fmt.Errorf("heal %s: commit: %w", id, err)
		}
		result.HealedAt = &now
		log.Info("heal: empty history, aggregate zeroed")
		return result, nil
	}

	replay := ReplayHistory(movements, h.Now)

	batch := h.Store.NewBatch()
	for i, m := range replay.Ordered {
		want := replay.Running[i]
		if m.RunningStock.Equal(want) {
			continue
		}
		batch.SetRunningStock(m.ID, want)
		result.Corrections = append(result.Corrections, Correction{ID: m.ID, From: m.RunningStock, To: want})
	}

	now := h.now()
	batch.UpsertAggregate(Aggregate{
		Key:          key,
		Name:         id.Name,
		Category:     id.Category,
		CurrentStock: replay.CurrentStock,
		TotalInflow:  replay.TotalInflow,
		TotalOutflow: replay.TotalOutflow,
		LastHealedAt: &now,
	})
	if err := batch.Commit(ctx); err != nil {
		return nil, fmt.Errorf("heal %s: commit: %w", id, err)
	}

	result.CurrentStock = replay.CurrentStock
	result.TotalInflow = replay.TotalInflow
	result.TotalOutflow = replay.TotalOutflow
	result.HealedAt = &now

	log.WithFields(logrus.Fields{
		"records":       result.Records,
		"corrections":   len(result.Corrections),
		"current_stock": result.CurrentStock.String(),
	}).Info("heal: complete")

	return result, nil
}

// HealAll heals every identity present in the history. It stops at the first
// failure; heals already committed stay committed.
func (h *Healer) HealAll(ctx context.Context) ([]*HealResult, error) {
	ids, err := h.Store.Identities(ctx)
	if err != nil {
		return nil, fmt.Errorf("heal all: list identities: %w", err)
	}

	limit := h.Concurrency
	if limit <= 0 {
		limit = 4
	}

	results := make([]*HealResult, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			res, err := h.Heal(gctx, HealInput{Identity: id})
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (h *Healer) candidates(ctx context.Context, id Identity, in HealInput) ([]Movement, error) {
	var source []Movement
	if in.Candidates == nil {
		loaded, err := h.Store.Query(ctx, InventoryOf(id))
		if err != nil {
			return nil, err
		}
		source = loaded
	} else {
		source = applyPatch(in.Candidates, in.Patch)
	}

	f := InventoryOf(id)
	out := make([]Movement, 0, len(source))
	for _, m := range source {
		if f.Accepts(m) {
			out = append(out, m)
		}
	}
	return out, nil
}

func applyPatch(ms []Movement, patch *Movement) []Movement {
	out := make([]Movement, len(ms), len(ms)+1)
	copy(out, ms)
	if patch == nil {
		return out
	}
	for i := range out {
		if out[i].ID == patch.ID {
			out[i] = *patch
			return out
		}
	}
	return append(out, *patch)
}

func (h *Healer) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

func (h *Healer) logger() *logrus.Logger {
	return orDiscard(h.Logger)
}

var discard = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

func orDiscard(l *logrus.Logger) *logrus.Logger {
	if l != nil {
		return l
	}
	return discard
}
