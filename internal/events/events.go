package events

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"venue-ledger-api/internal/models"
)

// EventType represents the type of event.
type EventType string

const (
	// EventRuleTrigger is emitted after a commit whose effects may match automation rules
	EventRuleTrigger EventType = "rules.trigger"
	// EventNotification is emitted when an engine wants a notification delivered
	EventNotification EventType = "notification.requested"
)

// Event represents an event in the system.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// RuleTriggerData carries a trigger context to the rule evaluator.
type RuleTriggerData struct {
	VenueID string
	Trigger models.TriggerType
	Context models.TriggerContext
}

// NotificationData carries a notification to persist.
type NotificationData struct {
	Notification models.Notification
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Manager manages event handlers and event publishing. Handlers run after
// the publishing operation has committed; their failures never reach it.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	enabled  bool
	inflight sync.WaitGroup
}

// NewManager creates a new event manager.
func NewManager(enabled bool) *Manager {
	return &Manager{
		handlers: make(map[EventType][]Handler),
		enabled:  enabled,
	}
}

// Subscribe subscribes a handler to a specific event type.
func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		return
	}
	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// Publish publishes an event to all subscribed handlers.
func (m *Manager) Publish(ctx context.Context, eventType EventType, data interface{}) {
	m.mu.RLock()
	if !m.enabled {
		m.mu.RUnlock()
		return
	}
	handlers := m.handlers[eventType]
	if len(handlers) > 0 {
		m.inflight.Add(len(handlers))
	}
	m.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	// The request that published may finish before handlers do.
	ctx = context.WithoutCancel(ctx)
	for _, handler := range handlers {
		go m.run(ctx, handler, event)
	}
}

func (m *Manager) run(ctx context.Context, h Handler, event Event) {
	defer m.inflight.Done()
	logger := log.WithField("event", string(event.Type))
	defer func() {
		if rec := recover(); rec != nil {
			logger.WithField("panic", rec).Error("event handler panicked")
		}
	}()
	if err := h(ctx, event); err != nil {
		logger.WithError(err).Warn("event handler failed")
	}
}

// PublishRuleTrigger asks the rule evaluator to run trigger rules at a venue.
func (m *Manager) PublishRuleTrigger(ctx context.Context, venueID string, trigger models.TriggerType, tc models.TriggerContext) {
	m.Publish(ctx, EventRuleTrigger, RuleTriggerData{VenueID: venueID, Trigger: trigger, Context: tc})
}

// PublishNotification asks for n to be stored.
func (m *Manager) PublishNotification(ctx context.Context, n models.Notification) {
	m.Publish(ctx, EventNotification, NotificationData{Notification: n})
}

// Wait blocks until every handler started so far has returned.
func (m *Manager) Wait() {
	m.inflight.Wait()
}

// Shutdown stops accepting events and waits for running handlers.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.enabled = false
	m.handlers = make(map[EventType][]Handler)
	m.mu.Unlock()

	m.inflight.Wait()
}
