package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"venue-ledger-api/internal/models"
)

// DefaultReplayTTL keeps replayed checkouts long enough for client retry loops.
const DefaultReplayTTL = 10 * time.Minute

// OrderReplay caches committed orders by idempotency key. It only shortcuts
// retries; the unique index in the store decides duplicates.
type OrderReplay struct {
	cache Cache
	ttl   time.Duration
}

func NewOrderReplay(c Cache, ttl time.Duration) *OrderReplay {
	if ttl <= 0 {
		ttl = DefaultReplayTTL
	}
	return &OrderReplay{cache: c, ttl: ttl}
}

func replayKey(idempotencyKey string) string {
	return "order:idem:" + idempotencyKey
}

// Lookup returns the cached order for key, or nil on a miss or cache error.
func (r *OrderReplay) Lookup(ctx context.Context, key string) *models.Order {
	raw, err := r.cache.Get(ctx, replayKey(key))
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			log.WithError(err).WithField("idempotency_key", key).Warn("replay cache lookup failed")
		}
		return nil
	}
	var o models.Order
	if err := json.Unmarshal(raw, &o); err != nil {
		log.WithError(err).WithField("idempotency_key", key).Warn("dropping undecodable replay entry")
		r.Forget(ctx, key)
		return nil
	}
	return &o
}

// Remember stores o under its idempotency key. Orders without one are skipped.
func (r *OrderReplay) Remember(ctx context.Context, o *models.Order) {
	if o.IdempotencyKey == nil {
		return
	}
	raw, err := json.Marshal(o)
	if err == nil {
		err = r.cache.Set(ctx, replayKey(*o.IdempotencyKey), raw, r.ttl)
	}
	if err != nil {
		log.WithError(err).WithField("order_id", o.ID).Warn("replay cache write failed")
	}
}

// Forget drops the entry for key, used when an order is undone.
func (r *OrderReplay) Forget(ctx context.Context, key string) {
	if err := r.cache.Delete(ctx, replayKey(key)); err != nil {
		log.WithError(err).WithField("idempotency_key", key).Warn("replay cache delete failed")
	}
}
