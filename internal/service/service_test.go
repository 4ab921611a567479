package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venue-ledger-api/internal/common"
	"venue-ledger-api/internal/database"
	"venue-ledger-api/internal/features"
	"venue-ledger-api/internal/models"
)

var testStart = time.Date(2025, 10, 21, 22, 0, 0, 0, time.UTC)

// clock is a settable time source shared with the service under test.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc   *Service
	db    *database.DB
	clock *clock
	staff models.Principal
}

// newFixture builds a service on a fresh database. Check-in rewards are off
// so wallet and xp assertions start from zero.
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	c := &clock{t: testStart}
	flags := features.Defaults()
	flags.Disable(features.FeatureCheckinRewards)

	all := append([]Option{WithClock(c.Now), WithFeatures(flags)}, opts...)
	svc := NewService(db, all...)
	t.Cleanup(func() {
		svc.Close()
		db.Close()
	})
	return &fixture{svc: svc, db: db, clock: c}
}

func (f *fixture) venue(t *testing.T) *models.Venue {
	t.Helper()
	v, err := f.svc.CreateVenue(context.Background(), models.CreateVenueRequest{Name: "Supermarket", Pin: "1234"})
	require.NoError(t, err)
	f.staff = models.Principal{UserID: "staff-1", Role: models.RoleBar, VenueID: v.ID}
	return v
}

func (f *fixture) item(t *testing.T, venueID, name string, qty, threshold int64) *models.InventoryItem {
	t.Helper()
	item, err := f.svc.CreateInventoryItem(context.Background(), venueID, models.CreateInventoryItemRequest{
		Name:         name,
		Quantity:     qty,
		LowThreshold: &threshold,
	})
	require.NoError(t, err)
	return item
}

func (f *fixture) checkIn(t *testing.T, venueID, tag string) *models.CheckInResult {
	t.Helper()
	req := models.CheckInRequest{VenueID: venueID}
	if tag != "" {
		req.UIDTag = &tag
	}
	res, err := f.svc.CheckIn(context.Background(), req)
	require.NoError(t, err)
	return res
}

func (f *fixture) logsOfType(t *testing.T, venueID string, logType models.LogType) []models.LogEvent {
	t.Helper()
	f.svc.Wait()
	logs, err := f.svc.ListLogs(context.Background(), models.LogFilter{VenueID: venueID, Type: &logType})
	require.NoError(t, err)
	return logs
}

func ptr[T any](v T) *T { return &v }

func TestAwardXP_LevelFollowsCurve(t *testing.T) {
	f := newFixture(t)
	v := f.venue(t)
	guest := f.checkIn(t, v.ID, "")

	xp, level, err := f.svc.AwardXP(context.Background(), guest.User.ID, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), xp)
	assert.Equal(t, 2, level)

	xp, level, err = f.svc.AwardXP(context.Background(), guest.User.ID, 255)
	require.NoError(t, err)
	assert.Equal(t, int64(355), xp)
	assert.Equal(t, 3, level)

	_, _, err = f.svc.AwardXP(context.Background(), guest.User.ID, -1)
	assert.ErrorIs(t, err, common.ErrInvalidRequest)
}

func TestAwardXP_UnknownUser(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.AwardXP(context.Background(), "00000000-0000-0000-0000-000000000000", 10)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestCreateUser(t *testing.T) {
	f := newFixture(t)
	v := f.venue(t)

	u, err := f.svc.CreateUser(context.Background(), models.CreateUserRequest{Role: models.RoleBar, VenueID: &v.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, u.Level)

	_, err = f.svc.CreateUser(context.Background(), models.CreateUserRequest{Role: "CHEF"})
	assert.ErrorIs(t, err, common.ErrInvalidRequest)
}

func TestCreateVenue_Defaults(t *testing.T) {
	f := newFixture(t)

	v, err := f.svc.CreateVenue(context.Background(), models.CreateVenueRequest{Name: "  Supermarket ", Capacity: ptr(int64(-3))})
	require.NoError(t, err)
	assert.Equal(t, "Supermarket", v.Name)
	assert.Equal(t, "Zurich", v.City)
	assert.Nil(t, v.Capacity)

	_, err = f.svc.CreateVenue(context.Background(), models.CreateVenueRequest{Name: " "})
	assert.ErrorIs(t, err, common.ErrInvalidRequest)

	venues, err := f.svc.ListVenues(context.Background())
	require.NoError(t, err)
	assert.Len(t, venues, 1)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.svc.Health(context.Background()))
}
