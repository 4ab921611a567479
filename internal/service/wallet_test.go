package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venue-ledger-api/internal/common"
	"venue-ledger-api/internal/models"
)

func TestTopUp_TargetPrecedence(t *testing.T) {
	f := newFixture(t)
	v := f.venue(t)
	a := f.checkIn(t, v.ID, "tag-a")
	b := f.checkIn(t, v.ID, "tag-b")
	ctx := context.Background()

	// Session id wins over a conflicting user id.
	got, err := f.svc.ResolveTarget(ctx, models.TopUpRequest{SessionID: &a.Session.ID, UserID: &b.User.ID})
	require.NoError(t, err)
	assert.Equal(t, a.User.ID, got)

	// Tag wins over user id.
	got, err = f.svc.ResolveTarget(ctx, models.TopUpRequest{UIDTag: ptr("tag-b"), UserID: &a.User.ID})
	require.NoError(t, err)
	assert.Equal(t, b.User.ID, got)

	got, err = f.svc.ResolveTarget(ctx, models.TopUpRequest{UserID: &b.User.ID})
	require.NoError(t, err)
	assert.Equal(t, b.User.ID, got)

	_, err = f.svc.ResolveTarget(ctx, models.TopUpRequest{UIDTag: ptr("unknown")})
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = f.svc.ResolveTarget(ctx, models.TopUpRequest{UIDTag: ptr("  ")})
	assert.ErrorIs(t, err, common.ErrInvalidRequest)
}

func TestTopUp_TagFallsBackToClosedSession(t *testing.T) {
	f := newFixture(t)
	v := f.venue(t)
	g := f.checkIn(t, v.ID, "tag-a")
	_, err := f.svc.CheckOut(context.Background(), g.User.ID)
	require.NoError(t, err)

	res, err := f.svc.TopUp(context.Background(), f.staff, models.TopUpRequest{UIDTag: ptr("tag-a"), Amount: 20})
	require.NoError(t, err)
	assert.Equal(t, g.User.ID, res.UserID)
	assert.Equal(t, g.Session.ID, res.SessionID)
	assert.Equal(t, int64(20), res.WalletBalance)
}

func TestTopUp_CreditsAndLogs(t *testing.T) {
	f := newFixture(t)
	v := f.venue(t)
	g := f.checkIn(t, v.ID, "")
	ctx := context.Background()

	res, err := f.svc.TopUp(ctx, f.staff, models.TopUpRequest{SessionID: &g.Session.ID, Amount: 50})
	require.NoError(t, err)
	assert.Equal(t, int64(50), res.Amount)
	assert.Equal(t, int64(50), res.WalletBalance)

	res, err = f.svc.TopUp(ctx, f.staff, models.TopUpRequest{UserID: &g.User.ID, Amount: 25})
	require.NoError(t, err)
	assert.Equal(t, int64(75), res.WalletBalance)

	logs := f.logsOfType(t, v.ID, models.LogTopUp)
	require.Len(t, logs, 2)
	assert.Contains(t, string(logs[0].Payload), `"new_balance":75`)
}

func TestTopUp_InvalidInput(t *testing.T) {
	f := newFixture(t)
	v := f.venue(t)
	g := f.checkIn(t, v.ID, "")
	ctx := context.Background()

	for _, amount := range []float64{0, -5, 2.5} {
		_, err := f.svc.TopUp(ctx, f.staff, models.TopUpRequest{UserID: &g.User.ID, Amount: amount})
		assert.ErrorIs(t, err, common.ErrInvalidAmount, "amount %v", amount)
	}

	_, err := f.svc.TopUp(ctx, f.staff, models.TopUpRequest{Amount: 10})
	assert.ErrorIs(t, err, common.ErrInvalidRequest)

	_, err = f.svc.TopUp(ctx, f.staff, models.TopUpRequest{UserID: ptr("00000000-0000-0000-0000-000000000000"), Amount: 10})
	assert.ErrorIs(t, err, common.ErrNotFound)

	user, err := f.db.GetUser(ctx, g.User.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), user.WalletBalance)
}
