package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"venue-ledger-api/internal/models"
)

func TestPublish_RunsHandlersAfterCancel(t *testing.T) {
	m := NewManager(true)
	var calls atomic.Int32
	var got RuleTriggerData

	m.Subscribe(EventRuleTrigger, func(ctx context.Context, e Event) error {
		assert.NoError(t, ctx.Err())
		got = e.Data.(RuleTriggerData)
		calls.Add(1)
		return nil
	})
	m.Subscribe(EventRuleTrigger, func(ctx context.Context, e Event) error {
		calls.Add(1)
		return errors.New("ignored")
	})

	ctx, cancel := context.WithCancel(context.Background())
	qty := int64(4)
	m.PublishRuleTrigger(ctx, "venue-1", models.TriggerInventory, models.TriggerContext{Item: "Beer", Qty: &qty})
	cancel()
	m.Wait()

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "venue-1", got.VenueID)
	assert.Equal(t, int64(4), *got.Context.Qty)
}

func TestPublish_Disabled(t *testing.T) {
	m := NewManager(false)
	called := false
	m.Subscribe(EventNotification, func(ctx context.Context, e Event) error {
		called = true
		return nil
	})
	m.PublishNotification(context.Background(), models.Notification{Message: "hi"})
	m.Wait()
	assert.False(t, called)
}

func TestShutdown_DropsHandlers(t *testing.T) {
	m := NewManager(true)
	var calls atomic.Int32
	m.Subscribe(EventNotification, func(ctx context.Context, e Event) error {
		calls.Add(1)
		return nil
	})
	m.Shutdown()
	m.PublishNotification(context.Background(), models.Notification{Message: "late"})
	m.Wait()
	assert.Zero(t, calls.Load())
}

func TestPublish_HandlerPanicIsContained(t *testing.T) {
	m := NewManager(true)
	var calls atomic.Int32
	m.Subscribe(EventRuleTrigger, func(ctx context.Context, e Event) error {
		panic("bad rule")
	})
	m.Subscribe(EventRuleTrigger, func(ctx context.Context, e Event) error {
		calls.Add(1)
		return nil
	})

	m.PublishRuleTrigger(context.Background(), "v1", models.TriggerInventory, models.TriggerContext{})
	m.Wait()
	assert.Equal(t, int32(1), calls.Load())
}
