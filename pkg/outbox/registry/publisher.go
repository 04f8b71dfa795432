package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventrsvp-backend/pkg/config"
	"github.com/angelmondragon/eventrsvp-backend/pkg/db/models"
	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
	"github.com/angelmondragon/eventrsvp-backend/pkg/outbox"
	"github.com/angelmondragon/eventrsvp-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate/topic/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

type catalogEntry struct {
	aggregate enums.OutboxAggregateType
	payload   func() any
}

func rsvpPayload() any   { return &payloads.RSVPEvent{} }
func creditPayload() any { return &payloads.CreditEvent{} }

// catalog is every event the outbox may carry with the payload struct the
// publisher validates it against.
var catalog = map[enums.OutboxEventType]catalogEntry{
	enums.EventRSVPConfirmed:       {enums.AggregateRSVP, rsvpPayload},
	enums.EventRSVPWaitlisted:      {enums.AggregateRSVP, rsvpPayload},
	enums.EventRSVPPromoted:        {enums.AggregateRSVP, rsvpPayload},
	enums.EventRSVPPromotionFailed: {enums.AggregateRSVP, rsvpPayload},
	enums.EventRSVPCancelled:       {enums.AggregateRSVP, rsvpPayload},
	enums.EventRSVPCheckedIn:       {enums.AggregateRSVP, func() any { return &payloads.RSVPCheckedInEvent{} }},

	enums.EventEventCancelled:       {enums.AggregateEvent, func() any { return &payloads.EventCancelledEvent{} }},
	enums.EventEventCapacityChanged: {enums.AggregateEvent, func() any { return &payloads.EventCapacityChangedEvent{} }},
	enums.EventEventCompleted:       {enums.AggregateEvent, func() any { return &payloads.EventCompletedEvent{} }},

	enums.EventCreditRefunded: {enums.AggregateCredit, creditPayload},
	enums.EventCreditGranted:  {enums.AggregateCredit, creditPayload},
}

// NewEventRegistry routes every cataloged event to the single domain topic.
// Consumers filter on the event_type message attribute.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.DomainTopic == "" {
		return nil, fmt.Errorf("domain topic is required")
	}
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(catalog))}
	for eventType, entry := range catalog {
		reg.entries[eventType] = EventDescriptor{
			EventType:      eventType,
			AggregateType:  entry.aggregate,
			Topic:          cfg.DomainTopic,
			PayloadFactory: entry.payload,
		}
	}
	return reg, nil
}

// Descriptor returns the registered descriptor for eventType.
func (r *EventRegistry) Descriptor(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	desc, ok := r.entries[eventType]
	return desc, ok
}

// Resolve checks the row against its descriptor and decodes the typed
// payload. Every failure is non-retryable: a malformed row never heals.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	case desc.AggregateType != event.AggregateType:
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}
