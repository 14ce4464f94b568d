package events

import (
	"encoding/json"
	"sync"
	"time"

	"slotbook/internal/models"
)

const (
	EventSlotBooked     = "slot_booked"
	EventSlotCancelled  = "slot_cancelled"
	EventSlotBlocked    = "slot_blocked"
	EventSlotUnblocked  = "slot_unblocked"
	EventSlotsGenerated = "slots_generated"
	EventSlotsDeleted   = "slots_deleted"
)

// AppointmentEventPayload is the snapshot handed to event consumers.
// Single-slot events fill the appointment fields, bulk events fill Count
// and AppointmentIDs.
type AppointmentEventPayload struct {
	AppointmentID  int64                    `json:"appointment_id,omitempty"`
	Date           string                   `json:"date"`
	Time           string                   `json:"time,omitempty"`
	Duration       int                      `json:"duration,omitempty"`
	Status         models.AppointmentStatus `json:"status,omitempty"`
	UserID         *int64                   `json:"user_id,omitempty"`
	UserName       string                   `json:"user_name,omitempty"`
	Phone          string                   `json:"phone,omitempty"`
	Email          string                   `json:"email,omitempty"`
	Notes          string                   `json:"notes,omitempty"`
	Count          int                      `json:"count,omitempty"`
	AppointmentIDs []int64                  `json:"appointment_ids,omitempty"`
	ChangedBy      string                   `json:"changed_by,omitempty"`
}

// NewAppointmentPayload fills the payload from an appointment and its user.
func NewAppointmentPayload(appt *models.Appointment, user *models.User, changedBy string) AppointmentEventPayload {
	p := AppointmentEventPayload{
		AppointmentID: appt.ID,
		Date:          models.FormatDate(appt.Date),
		Time:          appt.Time.String(),
		Duration:      appt.Duration,
		Status:        appt.Status,
		UserID:        appt.UserID,
		Notes:         appt.Notes,
		ChangedBy:     changedBy,
	}
	if user != nil {
		p.UserName = user.FullName()
		p.Phone = user.Phone
		p.Email = user.Email
	}
	return p
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the JSON payload into v.
func (e *Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	onError     func(event *Event, err error)
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// OnError sets a callback for handler failures. Failures never reach the publisher.
func (b *EventBus) OnError(fn func(event *Event, err error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = fn
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers one handler for several event types.
func (b *EventBus) SubscribeAll(handler EventHandler, eventTypes ...string) {
	for _, t := range eventTypes {
		b.Subscribe(t, handler)
	}
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	onError := b.onError
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil && onError != nil {
			onError(event, err)
		}
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
