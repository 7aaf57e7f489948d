package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"intro-eligibility-api/internal/logging"
	"intro-eligibility-api/internal/models"
)

// EventType represents the type of event.
type EventType string

const (
	// EventEligibilityChecked is emitted after every eligibility resolution
	EventEligibilityChecked EventType = "eligibility.checked"
	// EventProductUpserted is emitted when catalog products are written
	EventProductUpserted EventType = "product.upserted"
	// EventReceiptStored is emitted when a user's receipt blob is stored
	EventReceiptStored EventType = "receipt.stored"
	// EventRedemptionRecorded is emitted when an intro redemption is recorded
	EventRedemptionRecorded EventType = "redemption.recorded"
)

// Event represents an event in the system.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// EligibilityCheckedData contains data for eligibility checked events.
type EligibilityCheckedData struct {
	UserID      string
	Eligibility map[string]models.EligibilityStatus
	CheckedAt   time.Time
}

// ProductUpsertedData contains data for product upserted events.
type ProductUpsertedData struct {
	Products []models.Product
	Count    int
}

// ReceiptStoredData contains data for receipt stored events.
type ReceiptStoredData struct {
	UserID    string
	BlobBytes int
}

// RedemptionRecordedData contains data for redemption recorded events.
type RedemptionRecordedData struct {
	UserID    string
	ProductID string
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Manager manages event handlers and event publishing.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	enabled  bool
	log      zerolog.Logger
}

// NewManager creates a new event manager.
func NewManager(enabled bool) *Manager {
	return &Manager{
		handlers: make(map[EventType][]Handler),
		enabled:  enabled,
		log:      logging.Component("events"),
	}
}

// Subscribe subscribes a handler to a specific event type.
func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	if !m.enabled {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// Publish publishes an event to all subscribed handlers.
func (m *Manager) Publish(ctx context.Context, eventType EventType, data interface{}) {
	if !m.enabled {
		return
	}

	m.mu.RLock()
	handlers := m.handlers[eventType]
	m.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	// Execute handlers asynchronously to avoid blocking
	for _, handler := range handlers {
		go func(h Handler) {
			if err := h(ctx, event); err != nil {
				m.log.Warn().Err(err).Str("event", string(eventType)).Msg("event handler failed")
			}
		}(handler)
	}
}

// PublishEligibilityChecked publishes an eligibility checked event.
func (m *Manager) PublishEligibilityChecked(ctx context.Context, userID string, eligibility map[string]models.EligibilityStatus) {
	m.Publish(ctx, EventEligibilityChecked, EligibilityCheckedData{
		UserID:      userID,
		Eligibility: eligibility,
		CheckedAt:   time.Now(),
	})
}

// PublishProductUpserted publishes a product upserted event.
func (m *Manager) PublishProductUpserted(ctx context.Context, products []models.Product, count int) {
	m.Publish(ctx, EventProductUpserted, ProductUpsertedData{
		Products: products,
		Count:    count,
	})
}

// PublishReceiptStored publishes a receipt stored event.
func (m *Manager) PublishReceiptStored(ctx context.Context, userID string, blobBytes int) {
	m.Publish(ctx, EventReceiptStored, ReceiptStoredData{
		UserID:    userID,
		BlobBytes: blobBytes,
	})
}

// PublishRedemptionRecorded publishes a redemption recorded event.
func (m *Manager) PublishRedemptionRecorded(ctx context.Context, userID, productID string) {
	m.Publish(ctx, EventRedemptionRecorded, RedemptionRecordedData{
		UserID:    userID,
		ProductID: productID,
	})
}

// Shutdown shuts down the event manager.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enabled = false
	m.handlers = make(map[EventType][]Handler)
}
