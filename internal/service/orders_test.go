package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venue-ledger-api/internal/common"
	"venue-ledger-api/internal/features"
	"venue-ledger-api/internal/models"
)

func orderFor(venueID string, sessionID *string, key string, lines ...models.OrderItem) models.CreateOrderRequest {
	req := models.CreateOrderRequest{VenueID: venueID, Items: lines, PaymentMethod: models.PaymentWallet, GuestSessionID: sessionID}
	if key != "" {
		req.IdempotencyKey = &key
	}
	return req
}

func line(item *models.InventoryItem, price, qty int64) models.OrderItem {
	id := item.ID
	return models.OrderItem{MenuItemID: "menu-" + item.Name, Name: item.Name, UnitPrice: price, Qty: qty, InventoryItemID: &id}
}

func TestCreateOrder_SettlesEverything(t *testing.T) {
	f := newFixture(t)
	v := f.venue(t)
	beer := f.item(t, v.ID, "Beer", 20, 5)
	guest := f.checkIn(t, v.ID, "tag-1")

	order, err := f.svc.CreateOrder(context.Background(), f.staff, orderFor(v.ID, &guest.Session.ID, "", line(beer, 6, 2)))
	require.NoError(t, err)
	assert.Equal(t, int64(12), order.Total)
	assert.Equal(t, f.staff.UserID, *order.StaffUserID)

	ctx := context.Background()
	item, err := f.db.GetInventoryItem(ctx, v.ID, beer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(18), item.Quantity)

	user, err := f.db.GetUser(ctx, guest.User.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(-12), user.WalletBalance)
	assert.Equal(t, int64(12), user.XP)

	sess, err := f.db.GetSession(ctx, guest.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12), sess.TotalSpend)
	assert.Equal(t, int64(1), sess.InteractionsCount)

	assert.Len(t, f.logsOfType(t, v.ID, models.LogSell), 1)
	assert.Len(t, f.logsOfType(t, v.ID, models.LogOverdraft), 1)
}

func TestCreateOrder_IdempotentReplay(t *testing.T) {
	f := newFixture(t)
	v := f.venue(t)
	beer := f.item(t, v.ID, "Beer", 10, 0)
	guest := f.checkIn(t, v.ID, "")

	req := orderFor(v.ID, &guest.Session.ID, "abc", line(beer, 5, 1))
	first, err := f.svc.CreateOrder(context.Background(), f.staff, req)
	require.NoError(t, err)
	second, err := f.svc.CreateOrder(context.Background(), f.staff, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	item, err := f.db.GetInventoryItem(context.Background(), v.ID, beer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(9), item.Quantity)

	user, err := f.db.GetUser(context.Background(), guest.User.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), user.XP)
	assert.Equal(t, int64(-5), user.WalletBalance)
	assert.Len(t, f.logsOfType(t, v.ID, models.LogSell), 1)
}

func TestCreateOrder_ReplayWithoutCache(t *testing.T) {
	f := newFixture(t)
	f.svc.Features().Disable(features.FeatureReplayCacheEnabled)
	v := f.venue(t)
	beer := f.item(t, v.ID, "Beer", 10, 0)

	req := orderFor(v.ID, nil, "no-cache", line(beer, 5, 1))
	first, err := f.svc.CreateOrder(context.Background(), f.staff, req)
	require.NoError(t, err)
	second, err := f.svc.CreateOrder(context.Background(), f.staff, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	item, err := f.db.GetInventoryItem(context.Background(), v.ID, beer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(9), item.Quantity)
}

func TestCreateOrder_ReplayKeyBoundToVenue(t *testing.T) {
	for _, cached := range []bool{true, false} {
		f := newFixture(t)
		if !cached {
			f.svc.Features().Disable(features.FeatureReplayCacheEnabled)
		}
		v := f.venue(t)
		other := f.venue(t)
		beer := f.item(t, v.ID, "Beer", 10, 0)
		water := f.item(t, other.ID, "Water", 10, 0)
		ctx := context.Background()

		_, err := f.svc.CreateOrder(ctx, f.staff, orderFor(v.ID, nil, "shared", line(beer, 5, 1)))
		require.NoError(t, err)

		_, err = f.svc.CreateOrder(ctx, f.staff, orderFor(other.ID, nil, "shared", line(water, 2, 1)))
		assert.ErrorIs(t, err, common.ErrConflict, "cached=%v", cached)

		item, err := f.db.GetInventoryItem(ctx, other.ID, water.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(10), item.Quantity)
	}
}

func TestCreateOrder_ConcurrentSameKey(t *testing.T) {
	f := newFixture(t)
	v := f.venue(t)
	beer := f.item(t, v.ID, "Beer", 10, 0)
	guest := f.checkIn(t, v.ID, "")
	req := orderFor(v.ID, &guest.Session.ID, "race", line(beer, 4, 1))

	const n = 8
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, err := f.svc.CreateOrder(context.Background(), f.staff, req)
			if assert.NoError(t, err) {
				ids[i] = o.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id)
	}
	item, err := f.db.GetInventoryItem(context.Background(), v.ID, beer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(9), item.Quantity)

	user, err := f.db.GetUser(context.Background(), guest.User.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), user.XP)
	assert.Equal(t, int64(-4), user.WalletBalance)
}

func TestCreateOrder_LowStockBoundary(t *testing.T) {
	f := newFixture(t)
	v := f.venue(t)
	beer := f.item(t, v.ID, "Beer", 6, 5)

	_, err := f.svc.CreateOrder(context.Background(), f.staff, orderFor(v.ID, nil, "", line(beer, 5, 1)))
	require.NoError(t, err)

	low := f.logsOfType(t, v.ID, models.LogLowStock)
	require.Len(t, low, 1)
	assert.JSONEq(t, `{"item":"Beer","qty":5,"low_threshold":5}`, string(low[0].Payload))
}

func TestCreateOrder_NegativeStockAllowedAndFlagged(t *testing.T) {
	f := newFixture(t)
	v := f.venue(t)
	beer := f.item(t, v.ID, "Beer", 1, 0)

	_, err := f.svc.CreateOrder(context.Background(), f.staff, orderFor(v.ID, nil, "", line(beer, 5, 3)))
	require.NoError(t, err)

	item, err := f.db.GetInventoryItem(context.Background(), v.ID, beer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(-2), item.Quantity)
	assert.Len(t, f.logsOfType(t, v.ID, models.LogNegativeStock), 1)
}

func TestCreateOrder_RejectPolicies(t *testing.T) {
	p := DefaultPolicy()
	p.Stock = PolicyReject
	p.Balance = PolicyReject
	f := newFixture(t, WithPolicy(p))
	v := f.venue(t)
	beer := f.item(t, v.ID, "Beer", 1, 0)
	guest := f.checkIn(t, v.ID, "")

	_, err := f.svc.CreateOrder(context.Background(), f.staff, orderFor(v.ID, nil, "", line(beer, 5, 2)))
	assert.ErrorIs(t, err, common.ErrInsufficientStock)

	_, err = f.svc.CreateOrder(context.Background(), f.staff, orderFor(v.ID, &guest.Session.ID, "", line(beer, 5, 1)))
	assert.ErrorIs(t, err, common.ErrInsufficientFunds)

	// Both rejected checkouts rolled back completely.
	item, err := f.db.GetInventoryItem(context.Background(), v.ID, beer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), item.Quantity)
	orders, err := f.svc.ListOrders(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Empty(t, orders)

	_, err = f.svc.TopUp(context.Background(), f.staff, models.TopUpRequest{UserID: &guest.User.ID, Amount: 5})
	require.NoError(t, err)
	_, err = f.svc.CreateOrder(context.Background(), f.staff, orderFor(v.ID, &guest.Session.ID, "", line(beer, 5, 1)))
	require.NoError(t, err)
}

func TestCreateOrder_Validation(t *testing.T) {
	f := newFixture(t)
	v := f.venue(t)
	beer := f.item(t, v.ID, "Beer", 1, 0)
	ctx := context.Background()

	_, err := f.svc.CreateOrder(ctx, f.staff, orderFor(v.ID, nil, ""))
	assert.ErrorIs(t, err, common.ErrInvalidRequest)

	_, err = f.svc.CreateOrder(ctx, f.staff, orderFor(v.ID, nil, "", line(beer, -1, 1)))
	assert.ErrorIs(t, err, common.ErrInvalidRequest)

	other := f.venue(t)
	_, err = f.svc.CreateOrder(ctx, f.staff, orderFor(other.ID, nil, "", line(beer, 1, 1)))
	assert.ErrorIs(t, err, common.ErrNotFound)

	guest := f.checkIn(t, v.ID, "")
	_, err = f.svc.CreateOrder(ctx, f.staff, orderFor(other.ID, &guest.Session.ID, ""))
	assert.ErrorIs(t, err, common.ErrInvalidRequest)
	_, err = f.svc.CreateOrder(ctx, f.staff, orderFor(other.ID, &guest.Session.ID, "", models.OrderItem{Name: "Water", UnitPrice: 2}))
	assert.ErrorIs(t, err, common.ErrInvalidRequest)
	assert.NotErrorIs(t, err, common.ErrNotFound)
}

func TestUndoOrder_RestoresStock(t *testing.T) {
	f := newFixture(t)
	v := f.venue(t)
	beer := f.item(t, v.ID, "Beer", 10, 0)
	guest := f.checkIn(t, v.ID, "")
	ctx := context.Background()

	order, err := f.svc.CreateOrder(ctx, f.staff, orderFor(v.ID, &guest.Session.ID, "u1", line(beer, 5, 3)))
	require.NoError(t, err)

	f.clock.Advance(30 * time.Second)
	require.NoError(t, f.svc.UndoOrder(ctx, f.staff, order.ID))

	item, err := f.db.GetInventoryItem(ctx, v.ID, beer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), item.Quantity)

	_, err = f.svc.GetOrder(ctx, order.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	// Without the refund policy the wallet and xp stay as the checkout left them.
	user, err := f.db.GetUser(ctx, guest.User.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(-15), user.WalletBalance)
	assert.Equal(t, int64(15), user.XP)

	assert.Len(t, f.logsOfType(t, v.ID, models.LogOrderUndo), 1)
	assert.ErrorIs(t, f.svc.UndoOrder(ctx, f.staff, order.ID), common.ErrInvalidRequest)

	// The key is free again once its order is gone.
	again, err := f.svc.CreateOrder(ctx, f.staff, orderFor(v.ID, &guest.Session.ID, "u1", line(beer, 5, 3)))
	require.NoError(t, err)
	assert.NotEqual(t, order.ID, again.ID)
}

func TestUndoOrder_RefundsWhenConfigured(t *testing.T) {
	p := DefaultPolicy()
	p.RefundWalletOnUndo = true
	f := newFixture(t, WithPolicy(p))
	v := f.venue(t)
	beer := f.item(t, v.ID, "Beer", 10, 0)
	guest := f.checkIn(t, v.ID, "")
	ctx := context.Background()

	order, err := f.svc.CreateOrder(ctx, f.staff, orderFor(v.ID, &guest.Session.ID, "", line(beer, 5, 2)))
	require.NoError(t, err)
	require.NoError(t, f.svc.UndoOrder(ctx, f.staff, order.ID))

	user, err := f.db.GetUser(ctx, guest.User.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), user.WalletBalance)

	sess, err := f.db.GetSession(ctx, guest.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sess.TotalSpend)
	assert.Equal(t, int64(0), sess.InteractionsCount)
}

func TestUndoOrder_WindowExpired(t *testing.T) {
	f := newFixture(t)
	v := f.venue(t)
	beer := f.item(t, v.ID, "Beer", 10, 0)
	ctx := context.Background()

	order, err := f.svc.CreateOrder(ctx, f.staff, orderFor(v.ID, nil, "", line(beer, 5, 1)))
	require.NoError(t, err)

	f.clock.Advance(60 * time.Second)
	err = f.svc.UndoOrder(ctx, f.staff, order.ID)
	assert.ErrorIs(t, err, common.ErrUndoExpired)
	assert.ErrorIs(t, err, common.ErrInvalidRequest)

	item, err := f.db.GetInventoryItem(ctx, v.ID, beer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(9), item.Quantity)
}

func TestUndoOrder_Unknown(t *testing.T) {
	f := newFixture(t)
	err := f.svc.UndoOrder(context.Background(), f.staff, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, common.ErrInvalidRequest)
}
