package notifications

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/eventrsvp-backend/pkg/db/models"
	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
	"github.com/angelmondragon/eventrsvp-backend/pkg/logger"
	"github.com/angelmondragon/eventrsvp-backend/pkg/money"
	"github.com/angelmondragon/eventrsvp-backend/pkg/outbox"
	"github.com/angelmondragon/eventrsvp-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/eventrsvp-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/eventrsvp-backend/pkg/outbox/registry"
)

const notificationConsumer = "rsvp-notifications"

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

type writer interface {
	CreateBatch(ctx context.Context, notifications []models.Notification) error
}

// Consumer turns domain events from the outbox topic into in-app notifications.
type Consumer struct {
	repo         writer
	subscription receiver
	decoders     *registry.DecoderRegistry
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer builds the notification consumer.
func NewConsumer(repo writer, subscription receiver, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		decoders:     Decoders(),
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Decoders registers the v1 payload decoder for every event that produces a notification.
func Decoders() *registry.DecoderRegistry {
	reg := registry.NewDecoderRegistry()
	for _, eventType := range []enums.OutboxEventType{
		enums.EventRSVPConfirmed,
		enums.EventRSVPWaitlisted,
		enums.EventRSVPPromoted,
		enums.EventRSVPPromotionFailed,
		enums.EventRSVPCancelled,
	} {
		reg.Register(eventType, 1, registry.JSONDecoder[payloads.RSVPEvent]())
	}
	reg.Register(enums.EventEventCancelled, 1, registry.JSONDecoder[payloads.EventCancelledEvent]())
	reg.Register(enums.EventEventCapacityChanged, 1, registry.JSONDecoder[payloads.EventCapacityChangedEvent]())
	reg.Register(enums.EventCreditRefunded, 1, registry.JSONDecoder[payloads.CreditEvent]())
	return reg
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack     bool
	nack    bool
	created int
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": string(eventType),
	})

	if !c.handles(eventType) {
		c.logg.Debug(logCtx, "skipping event without notification")
		return processResult{ack: true}
	}

	envelope, err := outbox.DecodeEnvelope(msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}
	payload, err := c.decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		return processResult{ack: true}
	}

	notifications := build(eventType, payload)
	err = c.idempotency.Guard(ctx, notificationConsumer, eventID, func(ctx context.Context) error {
		return c.repo.CreateBatch(ctx, notifications)
	})
	switch {
	case errors.Is(err, idempotency.ErrAlreadyProcessed):
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	case err != nil:
		c.logg.Error(logCtx, "notification handling failed", err)
		return processResult{nack: true}
	}

	c.logg.Fields(logCtx, map[string]any{"notifications": len(notifications)}).Msg("notifications written")
	return processResult{ack: true, created: len(notifications)}
}

func (c *Consumer) handles(eventType enums.OutboxEventType) bool {
	switch eventType {
	case enums.EventRSVPConfirmed,
		enums.EventRSVPWaitlisted,
		enums.EventRSVPPromoted,
		enums.EventRSVPPromotionFailed,
		enums.EventRSVPCancelled,
		enums.EventEventCancelled,
		enums.EventEventCapacityChanged,
		enums.EventCreditRefunded:
		return true
	}
	return false
}

func build(eventType enums.OutboxEventType, payload any) []models.Notification {
	switch p := payload.(type) {
	case *payloads.RSVPEvent:
		return []models.Notification{rsvpNotification(eventType, p)}
	case *payloads.EventCancelledEvent:
		out := make([]models.Notification, 0, len(p.AffectedUserIDs))
		for _, userID := range p.AffectedUserIDs {
			message := fmt.Sprintf("%s has been cancelled by the organizer.", p.Title)
			out = append(out, notification(userID, p.EventID, enums.NotificationTypeEventCancelled, "Event cancelled", message))
		}
		return out
	case *payloads.EventCapacityChangedEvent:
		message := fmt.Sprintf("%s now has unlimited capacity.", p.Title)
		if p.Capacity != nil {
			message = fmt.Sprintf("%s capacity changed to %d.", p.Title, *p.Capacity)
		}
		out := make([]models.Notification, 0, len(p.AttendeeUserIDs))
		for _, userID := range p.AttendeeUserIDs {
			out = append(out, notification(userID, p.EventID, enums.NotificationTypeEventUpdated, "Event updated", message))
		}
		return out
	case *payloads.CreditEvent:
		message := fmt.Sprintf("%s credits were returned to your balance.", money.FormatCents(p.AmountCents))
		if p.Note != "" {
			message = fmt.Sprintf("%s credits were returned to your balance (%s).", money.FormatCents(p.AmountCents), p.Note)
		}
		var eventID uuid.UUID
		if p.EventID != nil {
			eventID = *p.EventID
		}
		return []models.Notification{notification(p.UserID, eventID, enums.NotificationTypeCreditRefunded, "Credits refunded", message)}
	}
	return nil
}

func rsvpNotification(eventType enums.OutboxEventType, p *payloads.RSVPEvent) models.Notification {
	switch eventType {
	case enums.EventRSVPConfirmed:
		return notification(p.UserID, p.EventID, enums.NotificationTypeRSVPConfirmation, "You're going",
			fmt.Sprintf("Your spot at %s is confirmed.", p.EventTitle))
	case enums.EventRSVPWaitlisted:
		return notification(p.UserID, p.EventID, enums.NotificationTypeRSVPWaitlisted, "You're on the waitlist",
			fmt.Sprintf("%s is full. We'll let you know if a spot opens up.", p.EventTitle))
	case enums.EventRSVPPromoted:
		return notification(p.UserID, p.EventID, enums.NotificationTypeWaitlistPromotion, "A spot opened up",
			fmt.Sprintf("You've been moved off the waitlist for %s.", p.EventTitle))
	case enums.EventRSVPPromotionFailed:
		return notification(p.UserID, p.EventID, enums.NotificationTypeWaitlistPromotion, "Waitlist update",
			fmt.Sprintf("A spot opened up for %s but we could not admit you (%s). You're still on the waitlist.", p.EventTitle, p.Reason))
	default:
		return notification(p.UserID, p.EventID, enums.NotificationTypeRSVPCancelled, "RSVP cancelled",
			fmt.Sprintf("Your RSVP for %s was cancelled.", p.EventTitle))
	}
}

func notification(userID, eventID uuid.UUID, kind enums.NotificationType, title, message string) models.Notification {
	n := models.Notification{
		UserID:  userID,
		Type:    kind,
		Title:   title,
		Message: message,
	}
	if eventID != uuid.Nil {
		id := eventID
		link := "/events/" + eventID.String()
		n.EventID = &id
		n.Link = &link
	}
	return n
}
