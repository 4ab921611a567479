package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venue-ledger-api/internal/common"
	"venue-ledger-api/internal/database"
	"venue-ledger-api/internal/middleware"
	"venue-ledger-api/internal/models"
	"venue-ledger-api/internal/service"
)

type testEnv struct {
	svc    *service.Service
	router *chi.Mux
	venue  *models.Venue
	bar    models.Principal
	admin  models.Principal
}

func setupTestHandler(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "handler.db"))
	require.NoError(t, err)

	svc := service.NewService(db)
	t.Cleanup(func() {
		svc.Close()
		db.Close()
	})

	r := chi.NewRouter()
	NewHandler(svc).Routes(r, middleware.Authenticate(middleware.TrustedHeaderResolver{}))

	v, err := svc.CreateVenue(context.Background(), models.CreateVenueRequest{Name: "Supermarket"})
	require.NoError(t, err)

	return &testEnv{
		svc:    svc,
		router: r,
		venue:  v,
		bar:    models.Principal{UserID: uuid.NewString(), Role: models.RoleBar, VenueID: v.ID},
		admin:  models.Principal{UserID: uuid.NewString(), Role: models.RoleVenueAdmin, VenueID: v.ID},
	}
}

// do sends a request as p; a nil p sends no credentials.
func (e *testEnv) do(t *testing.T, method, path string, body any, p *models.Principal) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if p != nil {
		req.Header.Set("Authorization", "Bearer test-token")
		req.Header.Set(middleware.HeaderRole, string(p.Role))
		req.Header.Set(middleware.HeaderUser, p.UserID)
		req.Header.Set(middleware.HeaderVenue, p.VenueID)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func (e *testEnv) item(t *testing.T, name string, qty int64) *models.InventoryItem {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/inventory/"+e.venue.ID, map[string]any{"item": name, "qty": qty, "low_threshold": 2}, &e.admin)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return ptrTo(decodeBody[models.InventoryItem](t, rr))
}

func (e *testEnv) checkIn(t *testing.T, tag string) models.CheckInResult {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/guest/checkin", map[string]any{"venue_id": e.venue.ID, "uid_tag": tag}, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decodeBody[models.CheckInResult](t, rr)
}

func guestOf(res models.CheckInResult) *models.Principal {
	return &models.Principal{UserID: res.User.ID, Role: models.RoleGuest}
}

func ptrTo[T any](v T) *T { return &v }

func TestHealthCheck(t *testing.T) {
	e := setupTestHandler(t)
	rr := e.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decodeBody[models.HealthResponse](t, rr)
	assert.Equal(t, "ok", resp.Status)
	assert.Contains(t, resp.Features, "rules_enabled")
}

func TestAuth_RequiresPrincipal(t *testing.T) {
	e := setupTestHandler(t)

	rr := e.do(t, http.MethodGet, "/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = e.do(t, http.MethodPost, "/orders", map[string]any{"venue_id": e.venue.ID}, &models.Principal{UserID: uuid.NewString(), Role: models.RoleGuest})
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestCheckInAndProfile(t *testing.T) {
	e := setupTestHandler(t)
	res := e.checkIn(t, "wristband-1")
	assert.Equal(t, int64(50), res.XPAwarded)
	assert.Equal(t, int64(1), res.Occupancy)

	rr := e.do(t, http.MethodGet, "/me", nil, guestOf(res))
	require.Equal(t, http.StatusOK, rr.Code)
	profile := decodeBody[models.Profile](t, rr)
	assert.Equal(t, res.User.ID, profile.User.ID)
	require.NotNil(t, profile.Session)
	assert.Equal(t, models.Progress{Current: 50, Needed: 100}, profile.Progress)

	rr = e.do(t, http.MethodGet, "/headcount/"+e.venue.ID, nil, guestOf(res))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(1), decodeBody[models.Headcount](t, rr).Occupancy)

	rr = e.do(t, http.MethodPost, "/guest/checkout", nil, guestOf(res))
	require.Equal(t, http.StatusOK, rr.Code)
	rr = e.do(t, http.MethodPost, "/guest/checkout", nil, guestOf(res))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestVisitHistory(t *testing.T) {
	e := setupTestHandler(t)
	e.checkIn(t, "wristband-2")
	res := e.checkIn(t, "wristband-2")

	rr := e.do(t, http.MethodGet, "/me/history", nil, guestOf(res))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	visits := decodeBody[[]models.VenueSession](t, rr)
	assert.Len(t, visits, 2)

	rr = e.do(t, http.MethodGet, "/me/history?page=2", nil, guestOf(res))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rr.Body.String()))

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/me/history?page=abc", nil, guestOf(res)).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/me/history?page=0", nil, guestOf(res)).Code)

	rr = e.do(t, http.MethodGet, "/me/profile", nil, guestOf(res))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decodeBody[models.Profile](t, rr).QuestCompletions)
}

func TestCreateOrder_FlowAndReplay(t *testing.T) {
	e := setupTestHandler(t)
	beer := e.item(t, "Beer", 10)
	guest := e.checkIn(t, "")

	body := map[string]any{
		"venue_id":         e.venue.ID,
		"guest_session_id": guest.Session.ID,
		"payment_method":   "wallet",
		"idempotency_key":  "k-1",
		"items": []map[string]any{
			{"menu_item_id": "m-1", "name": "Beer", "price": 6, "qty": 2, "inventory_item_id": beer.ID},
		},
	}
	rr := e.do(t, http.MethodPost, "/orders", body, &e.bar)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	first := decodeBody[models.Order](t, rr)
	assert.Equal(t, int64(12), first.Total)

	rr = e.do(t, http.MethodPost, "/orders", body, &e.bar)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, first.ID, decodeBody[models.Order](t, rr).ID)

	rr = e.do(t, http.MethodGet, "/orders/"+e.venue.ID, nil, &e.bar)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[[]models.Order](t, rr), 1)

	rr = e.do(t, http.MethodGet, "/inventory/"+e.venue.ID, nil, &e.bar)
	require.Equal(t, http.StatusOK, rr.Code)
	items := decodeBody[[]models.InventoryItem](t, rr)
	require.Len(t, items, 1)
	assert.Equal(t, int64(8), items[0].Quantity)

	rr = e.do(t, http.MethodDelete, "/orders/"+first.ID, nil, &e.bar)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = e.do(t, http.MethodDelete, "/orders/"+first.ID, nil, &e.bar)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateOrder_OtherVenueForbidden(t *testing.T) {
	e := setupTestHandler(t)
	other, err := e.svc.CreateVenue(context.Background(), models.CreateVenueRequest{Name: "Hive"})
	require.NoError(t, err)

	rr := e.do(t, http.MethodPost, "/orders", map[string]any{
		"venue_id": other.ID,
		"items":    []map[string]any{{"name": "Water", "price": 2}},
	}, &e.bar)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestCreateOrder_BadBodies(t *testing.T) {
	e := setupTestHandler(t)

	rr := e.do(t, http.MethodPost, "/orders", "invalid json", &e.bar)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.NotEmpty(t, decodeBody[models.ErrorResponse](t, rr).Error)

	rr = e.do(t, http.MethodPost, "/orders", nil, &e.bar)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = e.do(t, http.MethodPost, "/orders", map[string]any{"venue_id": e.venue.ID}, &e.bar)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTopUp(t *testing.T) {
	e := setupTestHandler(t)
	guest := e.checkIn(t, "tag-9")

	rr := e.do(t, http.MethodPost, "/wallet/topup", map[string]any{"uid_tag": "tag-9", "amount": 40}, &e.bar)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decodeBody[models.TopUpResult](t, rr)
	assert.Equal(t, guest.User.ID, res.UserID)
	assert.Equal(t, int64(50), res.WalletBalance)

	rr = e.do(t, http.MethodPost, "/wallet/topup", map[string]any{"uid_tag": "tag-9", "amount": -1}, &e.bar)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = e.do(t, http.MethodPost, "/wallet/topup", map[string]any{"uid_tag": "tag-9", "amount": 5}, guestOf(guest))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestQuests_CapReturns422(t *testing.T) {
	e := setupTestHandler(t)
	guest := e.checkIn(t, "")

	rr := e.do(t, http.MethodPost, "/quests", map[string]any{
		"venue_id": e.venue.ID, "title": "First Round", "xp_reward": 20, "max_completions": 1,
	}, &e.admin)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	q := decodeBody[models.Quest](t, rr)

	rr = e.do(t, http.MethodGet, "/quests/"+e.venue.ID, nil, guestOf(guest))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[[]models.AvailableQuest](t, rr), 1)

	rr = e.do(t, http.MethodPost, "/quests/"+q.ID+"/complete", nil, guestOf(guest))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, int64(70), decodeBody[models.QuestCompletionResult](t, rr).XP)

	rr = e.do(t, http.MethodPost, "/quests/"+q.ID+"/complete", nil, guestOf(guest))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = e.do(t, http.MethodPut, "/quests/"+q.ID, map[string]any{"active": false}, &e.bar)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRules_AdminOnly(t *testing.T) {
	e := setupTestHandler(t)
	rule := map[string]any{
		"venue_id":     e.venue.ID,
		"name":         "Crowded",
		"trigger_type": "event",
		"conditions":   map[string]any{"min_occupancy": 1},
		"actions":      map[string]any{"notify": map[string]any{"role": "SECURITY", "message": "Door is busy"}},
	}

	rr := e.do(t, http.MethodPost, "/rules", rule, &e.bar)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = e.do(t, http.MethodPost, "/rules", rule, &e.admin)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decodeBody[models.AutomationRule](t, rr)

	rr = e.do(t, http.MethodPost, "/rules/evaluate", map[string]any{
		"venue_id": e.venue.ID, "trigger_type": "event", "context": map[string]any{"occupancy": 5},
	}, &e.admin)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 1, decodeBody[models.EvaluateRulesResponse](t, rr).Matched)

	security := &models.Principal{UserID: uuid.NewString(), Role: models.RoleSecurity, VenueID: e.venue.ID}
	rr = e.do(t, http.MethodGet, "/notifications", nil, security)
	require.Equal(t, http.StatusOK, rr.Code)
	notes := decodeBody[[]models.Notification](t, rr)
	require.Len(t, notes, 1)

	rr = e.do(t, http.MethodPut, "/notifications/"+notes[0].ID+"/read", nil, security)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = e.do(t, http.MethodDelete, "/rules/"+created.ID, nil, &e.admin)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = e.do(t, http.MethodDelete, "/rules/"+created.ID, nil, &e.admin)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestLogs(t *testing.T) {
	e := setupTestHandler(t)
	e.checkIn(t, "")

	rr := e.do(t, http.MethodPost, "/logs", map[string]any{"type": "incident", "payload": map[string]any{"note": "spill"}}, &e.bar)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = e.do(t, http.MethodGet, "/logs/"+e.venue.ID+"?type=incident", nil, &e.bar)
	require.Equal(t, http.StatusOK, rr.Code)
	logs := decodeBody[[]models.LogEvent](t, rr)
	require.Len(t, logs, 1)
	assert.Equal(t, models.LogType("INCIDENT"), logs[0].Type)

	rr = e.do(t, http.MethodGet, "/logs/"+e.venue.ID, nil, &e.bar)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[[]models.LogEvent](t, rr), 2)

	rr = e.do(t, http.MethodGet, "/logs/"+e.venue.ID+"?since=yesterday", nil, &e.bar)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestVenuesAndUsers(t *testing.T) {
	e := setupTestHandler(t)
	root := &models.Principal{UserID: uuid.NewString(), Role: models.RoleMainAdmin}

	rr := e.do(t, http.MethodPost, "/venues", map[string]any{"name": "Hive"}, &e.admin)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr = e.do(t, http.MethodPost, "/venues", map[string]any{"name": "Hive"}, root)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = e.do(t, http.MethodGet, "/venues", nil, &e.admin)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[[]models.Venue](t, rr), 2)

	rr = e.do(t, http.MethodPost, "/users", map[string]any{"role": "BAR", "venue_id": e.venue.ID}, &e.admin)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	rr = e.do(t, http.MethodPost, "/users", map[string]any{"role": "MAIN_ADMIN", "venue_id": e.venue.ID}, &e.admin)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{common.Invalid("bad"), http.StatusBadRequest},
		{common.ErrUndoExpired, http.StatusBadRequest},
		{common.ErrUnauthorized, http.StatusUnauthorized},
		{common.ErrForbidden, http.StatusForbidden},
		{common.NotFound("order"), http.StatusNotFound},
		{common.ErrQuestCapped, http.StatusUnprocessableEntity},
		{common.ErrOnCooldown, http.StatusUnprocessableEntity},
		{common.ErrConflict, http.StatusConflict},
		{fmt.Errorf("%w: Beer", common.ErrInsufficientStock), http.StatusConflict},
		{common.ErrInsufficientFunds, http.StatusConflict},
		{common.ErrTimeout, http.StatusGatewayTimeout},
		{common.ErrUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestInventory_Lifecycle(t *testing.T) {
	e := setupTestHandler(t)
	tonic := e.item(t, "Tonic", 3)
	base := "/inventory/" + e.venue.ID + "/" + tonic.ID

	rr := e.do(t, http.MethodPut, base, map[string]any{"qty": 10}, &e.admin)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, int64(10), decodeBody[models.InventoryItem](t, rr).Quantity)

	rr = e.do(t, http.MethodPost, base+"/restock", map[string]any{"add_qty": 5}, &e.admin)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, int64(15), decodeBody[models.InventoryItem](t, rr).Quantity)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, base+"/restock", map[string]any{"add_qty": 0}, &e.admin).Code)
	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodPut, base, map[string]any{"qty": 1}, &e.bar).Code)

	rr = e.do(t, http.MethodPost, base+"/sell", map[string]any{}, &e.bar)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, int64(14), decodeBody[models.InventoryItem](t, rr).Quantity)

	rr = e.do(t, http.MethodPost, base+"/sell", map[string]any{"qty": 20}, &e.bar)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, int64(-6), decodeBody[models.InventoryItem](t, rr).Quantity)

	rr = e.do(t, http.MethodPost, "/inventory/"+e.venue.ID+"/"+uuid.NewString()+"/sell", map[string]any{"qty": 1}, &e.bar)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = e.do(t, http.MethodGet, "/inventory/"+e.venue.ID, nil, &e.bar)
	require.Equal(t, http.StatusOK, rr.Code)
	items := decodeBody[[]models.InventoryItem](t, rr)
	require.Len(t, items, 1)
	assert.Equal(t, "Tonic", items[0].Name)
}
