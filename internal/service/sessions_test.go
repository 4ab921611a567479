package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venue-ledger-api/internal/common"
	"venue-ledger-api/internal/features"
	"venue-ledger-api/internal/models"
)

func TestCheckIn_ReusesTagAndReplacesSession(t *testing.T) {
	f := newFixture(t)
	v := f.venue(t)
	ctx := context.Background()

	first := f.checkIn(t, v.ID, "wristband-7")
	assert.Equal(t, int64(1), first.Occupancy)
	assert.Equal(t, models.RoleGuest, first.User.Role)

	f.clock.Advance(time.Minute)
	second := f.checkIn(t, v.ID, "wristband-7")
	assert.Equal(t, first.User.ID, second.User.ID)
	assert.NotEqual(t, first.Session.ID, second.Session.ID)
	assert.Equal(t, int64(1), second.Occupancy)

	old, err := f.db.GetSession(ctx, first.Session.ID)
	require.NoError(t, err)
	assert.False(t, old.Open())

	other := f.checkIn(t, v.ID, "")
	assert.NotEqual(t, first.User.ID, other.User.ID)
	assert.Equal(t, int64(2), other.Occupancy)

	assert.Len(t, f.logsOfType(t, v.ID, models.LogCheckIn), 3)
}

func TestCheckIn_Rewards(t *testing.T) {
	f := newFixture(t)
	f.svc.Features().Enable(features.FeatureCheckinRewards)
	v := f.venue(t)

	res := f.checkIn(t, v.ID, "")
	assert.Equal(t, int64(50), res.XPAwarded)
	assert.Equal(t, int64(10), res.NCAwarded)
	assert.Equal(t, int64(50), res.User.XP)
	assert.Equal(t, int64(10), res.User.WalletBalance)
}

func TestCheckIn_UnknownVenue(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CheckIn(context.Background(), models.CheckInRequest{VenueID: "00000000-0000-0000-0000-000000000000"})
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = f.svc.CheckIn(context.Background(), models.CheckInRequest{VenueID: "bogus"})
	assert.ErrorIs(t, err, common.ErrInvalidRequest)
}

func TestCheckOut(t *testing.T) {
	f := newFixture(t)
	v := f.venue(t)
	g := f.checkIn(t, v.ID, "")
	ctx := context.Background()

	closed, err := f.svc.CheckOut(ctx, g.User.ID)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.NotNil(t, closed[0].EndedAt)

	_, err = f.svc.CheckOut(ctx, g.User.ID)
	assert.ErrorIs(t, err, common.ErrInvalidRequest)

	hc, err := f.svc.Headcount(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), hc.Occupancy)
	assert.Len(t, f.logsOfType(t, v.ID, models.LogCheckOut), 1)
}

func TestProfile(t *testing.T) {
	f := newFixture(t)
	v := f.venue(t)
	g := f.checkIn(t, v.ID, "")
	ctx := context.Background()

	_, _, err := f.svc.AwardXP(ctx, g.User.ID, 100)
	require.NoError(t, err)

	p, err := f.svc.Profile(ctx, g.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, p.User.Level)
	require.NotNil(t, p.Session)
	assert.Equal(t, g.Session.ID, p.Session.ID)
	assert.Equal(t, models.Progress{Current: 0, Needed: 255}, p.Progress)
	assert.Len(t, p.Visits, 1)

	_, err = f.svc.CheckOut(ctx, g.User.ID)
	require.NoError(t, err)
	p, err = f.svc.Profile(ctx, g.User.ID)
	require.NoError(t, err)
	assert.Nil(t, p.Session)
}

func TestProfile_QuestCompletions(t *testing.T) {
	f := newFixture(t)
	v := f.venue(t)
	g := f.checkIn(t, v.ID, "")
	q := f.quest(t, models.QuestRequest{
		VenueID:  v.ID,
		Title:    ptr("Try the stout"),
		XPReward: ptr(int64(40)),
		NCReward: ptr(int64(3)),
	})
	ctx := context.Background()

	p, err := f.svc.Profile(ctx, g.User.ID)
	require.NoError(t, err)
	assert.NotNil(t, p.QuestCompletions)
	assert.Empty(t, p.QuestCompletions)

	_, err = f.svc.CompleteQuest(ctx, q.ID, g.User.ID)
	require.NoError(t, err)

	p, err = f.svc.Profile(ctx, g.User.ID)
	require.NoError(t, err)
	require.Len(t, p.QuestCompletions, 1)
	done := p.QuestCompletions[0]
	assert.Equal(t, q.ID, done.QuestID)
	assert.Equal(t, "Try the stout", done.Title)
	assert.Equal(t, int64(40), done.XPReward)
	assert.Equal(t, int64(3), done.NCReward)
	assert.True(t, done.CompletedAt.Equal(f.clock.Now()))
}

func TestVisitHistory_Pages(t *testing.T) {
	f := newFixture(t)
	v := f.venue(t)
	ctx := context.Background()

	var sessions []string
	var userID string
	for i := 0; i < historyPageSize+3; i++ {
		res := f.checkIn(t, v.ID, "regular")
		userID = res.User.ID
		sessions = append(sessions, res.Session.ID)
		f.clock.Advance(time.Hour)
	}

	first, err := f.svc.VisitHistory(ctx, userID, 1)
	require.NoError(t, err)
	require.Len(t, first, historyPageSize)
	assert.Equal(t, sessions[len(sessions)-1], first[0].ID)

	second, err := f.svc.VisitHistory(ctx, userID, 2)
	require.NoError(t, err)
	require.Len(t, second, 3)
	assert.Equal(t, sessions[0], second[2].ID)

	empty, err := f.svc.VisitHistory(ctx, userID, 3)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	_, err = f.svc.VisitHistory(ctx, userID, 0)
	assert.ErrorIs(t, err, common.ErrInvalidRequest)
}

func TestHeadcount_Capacity(t *testing.T) {
	f := newFixture(t)
	v, err := f.svc.CreateVenue(context.Background(), models.CreateVenueRequest{Name: "Hive", Capacity: ptr(int64(300))})
	require.NoError(t, err)
	f.checkIn(t, v.ID, "")

	hc, err := f.svc.Headcount(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), hc.Occupancy)
	assert.Equal(t, int64(300), *hc.Capacity)
}
