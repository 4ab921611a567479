package validation

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venue-ledger-api/internal/common"
	"venue-ledger-api/internal/models"
)

func strPtr(s string) *string { return &s }

func TestValidateOrderRequest(t *testing.T) {
	req := &models.CreateOrderRequest{
		VenueID: uuid.NewString(),
		Items: []models.OrderItem{
			{Name: " Beer ", UnitPrice: 6, Qty: 2},
			{Name: "Water", UnitPrice: 3},
			{Name: "Napkin"},
		},
	}
	items, total, err := ValidateOrderRequest(req)
	require.NoError(t, err)
	assert.Equal(t, int64(15), total)
	assert.Equal(t, "Beer", items[0].Name)
	assert.Equal(t, int64(1), items[1].Qty)
	assert.Equal(t, models.PaymentCash, req.PaymentMethod)
}

func TestValidateOrderRequest_Rejects(t *testing.T) {
	venue := uuid.NewString()
	tests := []struct {
		name string
		req  models.CreateOrderRequest
	}{
		{"no venue", models.CreateOrderRequest{Items: []models.OrderItem{{Qty: 1}}}},
		{"no items", models.CreateOrderRequest{VenueID: venue}},
		{"negative qty", models.CreateOrderRequest{VenueID: venue, Items: []models.OrderItem{{Qty: -1}}}},
		{"negative price", models.CreateOrderRequest{VenueID: venue, Items: []models.OrderItem{{UnitPrice: -1}}}},
		{"bad payment", models.CreateOrderRequest{VenueID: venue, PaymentMethod: "iou", Items: []models.OrderItem{{}}}},
		{"bad inventory id", models.CreateOrderRequest{VenueID: venue, Items: []models.OrderItem{{InventoryItemID: strPtr("beer")}}}},
		{"overflow", models.CreateOrderRequest{VenueID: venue, Items: []models.OrderItem{{UnitPrice: math.MaxInt64, Qty: 2}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ValidateOrderRequest(&tt.req)
			assert.ErrorIs(t, err, common.ErrInvalidRequest)
			var ve *ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}

func TestValidateAmount(t *testing.T) {
	got, err := ValidateAmount(25)
	require.NoError(t, err)
	assert.Equal(t, int64(25), got)

	for _, bad := range []float64{0, -5, 2.5, math.NaN(), math.Inf(1), 1e12} {
		_, err := ValidateAmount(bad)
		assert.ErrorIs(t, err, common.ErrInvalidAmount, "amount %v", bad)
		assert.ErrorIs(t, err, common.ErrInvalidRequest, "amount %v", bad)
	}
}

func TestValidateTopUp_NeedsTarget(t *testing.T) {
	_, err := ValidateTopUp(models.TopUpRequest{Amount: 10, UIDTag: strPtr("  ")})
	assert.ErrorIs(t, err, common.ErrInvalidRequest)

	_, err = ValidateTopUp(models.TopUpRequest{Amount: 10, UIDTag: strPtr("NFC-1")})
	assert.NoError(t, err)
}

func TestNormalizeIdempotencyKey(t *testing.T) {
	k, err := NormalizeIdempotencyKey(strPtr("  "))
	require.NoError(t, err)
	assert.Nil(t, k)

	k, err = NormalizeIdempotencyKey(strPtr(" abc "))
	require.NoError(t, err)
	assert.Equal(t, "abc", *k)
}

func TestValidateQuest_Normalizes(t *testing.T) {
	zero := int64(0)
	q := &models.Quest{Title: " Dance ", MaxCompletions: &zero, CooldownHours: &zero}
	require.NoError(t, ValidateQuest(q))
	assert.Equal(t, "Dance", q.Title)
	assert.Nil(t, q.MaxCompletions)
	assert.Nil(t, q.CooldownHours)

	assert.Error(t, ValidateQuest(&models.Quest{Title: "x", XPReward: -1}))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello", SanitizeString("  hel\x00lo\x07 "))
}
