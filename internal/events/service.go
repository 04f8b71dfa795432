package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrsvp-backend/internal/credits"
	"github.com/angelmondragon/eventrsvp-backend/internal/waitlist"
	"github.com/angelmondragon/eventrsvp-backend/pkg/db/models"
	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventrsvp-backend/pkg/errors"
	"github.com/angelmondragon/eventrsvp-backend/pkg/logger"
	"github.com/angelmondragon/eventrsvp-backend/pkg/outbox"
	"github.com/angelmondragon/eventrsvp-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type seatGuard interface {
	LockEvent(ctx context.Context, tx *gorm.DB, eventID uuid.UUID) (*models.Event, error)
	Headcount(ctx context.Context, tx *gorm.DB, eventID uuid.UUID) (int, error)
}

type creditLedger interface {
	Credit(ctx context.Context, tx *gorm.DB, kind enums.CreditTransactionType, userID uuid.UUID, amountCents int64, ref credits.Reference) (int64, error)
}

type promoter interface {
	PromoteNext(ctx context.Context, tx *gorm.DB, event *models.Event) (*waitlist.Result, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service manages the event lifecycle and its aggregate views.
type Service interface {
	Create(ctx context.Context, input CreateEventInput) (*EventView, error)
	Get(ctx context.Context, id uuid.UUID) (*EventView, error)
	Stats(ctx context.Context, id uuid.UUID) (*Stats, error)
	UpdateCapacity(ctx context.Context, input UpdateCapacityInput) (*CapacityResult, error)
	Cancel(ctx context.Context, input CancelEventInput) (*CancelEventResult, error)
	CompleteDue(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

type ServiceParams struct {
	Tx       txRunner
	Repo     Repository
	Guard    seatGuard
	Ledger   creditLedger
	Waitlist promoter
	Outbox   outboxPublisher
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	tx       txRunner
	repo     Repository
	guard    seatGuard
	ledger   creditLedger
	waitlist promoter
	outbox   outboxPublisher
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("events repository required")
	case params.Guard == nil:
		return nil, fmt.Errorf("capacity guard required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("credit ledger required")
	case params.Waitlist == nil:
		return nil, fmt.Errorf("waitlist promoter required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &service{
		tx:       params.Tx,
		repo:     params.Repo,
		guard:    params.Guard,
		ledger:   params.Ledger,
		waitlist: params.Waitlist,
		outbox:   params.Outbox,
		logg:     params.Logger,
		now:      params.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateEventInput) (*EventView, error) {
	if input.OrganizerRole != enums.UserRoleOrganizer && input.OrganizerRole != enums.UserRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "organizer role required")
	}
	if err := s.validateCreate(input); err != nil {
		return nil, err
	}

	event := &models.Event{
		OrganizerID:      input.OrganizerID,
		Title:            strings.TrimSpace(input.Title),
		Description:      strings.TrimSpace(input.Description),
		Location:         strings.TrimSpace(input.Location),
		StartAt:          input.StartAt.UTC(),
		EndAt:            utcPtr(input.EndAt),
		Capacity:         input.Capacity,
		PriceCents:       input.PriceCents,
		WaitlistEnabled:  input.WaitlistEnabled,
		AllowPlusOnes:    input.AllowPlusOnes,
		MaxGuestsPerRSVP: input.MaxGuestsPerRSVP,
		RSVPDeadline:     utcPtr(input.RSVPDeadline),
		Status:           enums.EventStatusActive,
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create event")
	}

	logCtx := s.logg.WithEventID(ctx, event.ID.String())
	s.logg.Info(logCtx, "event created")
	view := NewEventView(*event)
	return &view, nil
}

func (s *service) validateCreate(input CreateEventInput) error {
	now := s.now().UTC()
	switch {
	case input.OrganizerID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "organizer id required")
	case strings.TrimSpace(input.Title) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "title required")
	case input.StartAt.IsZero() || !input.StartAt.After(now):
		return pkgerrors.New(pkgerrors.CodeValidation, "start time must be in the future")
	case input.EndAt != nil && !input.EndAt.After(input.StartAt):
		return pkgerrors.New(pkgerrors.CodeValidation, "end time must be after start time")
	case input.Capacity != nil && *input.Capacity < 1:
		return pkgerrors.New(pkgerrors.CodeValidation, "capacity must be at least 1")
	case input.PriceCents < 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "price cannot be negative")
	case input.MaxGuestsPerRSVP != nil && *input.MaxGuestsPerRSVP < 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "max guests cannot be negative")
	case input.RSVPDeadline != nil && input.RSVPDeadline.After(input.StartAt):
		return pkgerrors.New(pkgerrors.CodeValidation, "rsvp deadline must not be after the start time")
	}
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*EventView, error) {
	event, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	view := NewEventView(*event)
	return &view, nil
}

func (s *service) Stats(ctx context.Context, id uuid.UUID) (*Stats, error) {
	event, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		counts    map[enums.RSVPStatus]int64
		checkedIn int64
		headcount int
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		if counts, err = repo.CountByStatus(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count rsvps")
		}
		if checkedIn, err = repo.CountCheckedIn(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count check-ins")
		}
		headcount, err = s.guard.Headcount(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, pkgerrors.Ensure(err, pkgerrors.CodeDependency, "event stats")
	}

	stats := &Stats{
		EventID:    id,
		Accepted:   counts[enums.RSVPStatusAccepted],
		Maybe:      counts[enums.RSVPStatusMaybe],
		Declined:   counts[enums.RSVPStatusDeclined],
		Waitlisted: counts[enums.RSVPStatusWaitlisted],
		Headcount:  headcount,
		Capacity:   event.Capacity,
		CheckedIn:  checkedIn,
	}
	if event.Capacity != nil {
		spots := *event.Capacity - headcount
		if spots < 0 {
			spots = 0
		}
		stats.AvailableSpots = &spots
	}
	if headcount != event.AdmittedHeadcount {
		logCtx := s.logg.WithEventID(ctx, id.String())
		s.logg.Fields(logCtx, map[string]any{
			"materialized": event.AdmittedHeadcount,
			"actual":       headcount,
		}).Msg("admitted headcount drift")
	}
	return stats, nil
}

// UpdateCapacity changes the seat ceiling. It can never drop below the seats
// already admitted; raising it promotes from the waitlist in the same transaction.
func (s *service) UpdateCapacity(ctx context.Context, input UpdateCapacityInput) (*CapacityResult, error) {
	if input.Capacity != nil && *input.Capacity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "capacity must be at least 1")
	}

	var result *CapacityResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		event, err := s.guard.LockEvent(ctx, tx, input.EventID)
		if err != nil {
			return err
		}
		if !event.ManagedBy(input.ActorID, input.ActorRole) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the organizer can change capacity")
		}
		if event.Status != enums.EventStatusActive {
			return pkgerrors.New(pkgerrors.CodeEventUnavailable, "event is not active")
		}
		if input.Capacity != nil && *input.Capacity < event.AdmittedHeadcount {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "capacity is below the admitted headcount").WithDetails(map[string]any{
				"admitted_headcount": event.AdmittedHeadcount,
				"requested_capacity": *input.Capacity,
			})
		}

		repo := s.repo.WithTx(tx)
		previous := event.Capacity
		if err := repo.UpdateCapacity(ctx, event.ID, input.Capacity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update capacity")
		}
		event.Capacity = input.Capacity

		result = &CapacityResult{}
		if grew(previous, input.Capacity) {
			promoted, err := s.waitlist.PromoteNext(ctx, tx, event)
			if err != nil {
				return err
			}
			result.Promoted = promoted.PromotedIDs()
		}

		attendees, err := repo.AcceptedUserIDs(ctx, event.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list attendees")
		}
		if err := s.emit(ctx, tx, enums.EventEventCapacityChanged, event, input.ActorID, payloads.EventCapacityChangedEvent{
			EventID:          event.ID,
			Title:            event.Title,
			PreviousCapacity: previous,
			Capacity:         input.Capacity,
			PromotedRSVPIDs:  result.Promoted,
			AttendeeUserIDs:  attendees,
		}); err != nil {
			return err
		}
		result.Event = NewEventView(*event)
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Ensure(err, pkgerrors.CodeDependency, "update capacity")
	}

	logCtx := s.logg.WithEventID(ctx, input.EventID.String())
	s.logg.Fields(logCtx, map[string]any{"promoted": len(result.Promoted)}).Msg("event capacity updated")
	return result, nil
}

// Cancel closes the event for good and refunds every credit payment. RSVP
// statuses are kept as the record of who was coming.
func (s *service) Cancel(ctx context.Context, input CancelEventInput) (*CancelEventResult, error) {
	var result *CancelEventResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		event, err := s.guard.LockEvent(ctx, tx, input.EventID)
		if err != nil {
			return err
		}
		if !event.ManagedBy(input.ActorID, input.ActorRole) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the organizer can cancel the event")
		}
		switch event.Status {
		case enums.EventStatusCancelled:
			result = &CancelEventResult{Event: NewEventView(*event)}
			return nil
		case enums.EventStatusCompleted:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "event already completed")
		}

		repo := s.repo.WithTx(tx)
		if err := repo.UpdateStatus(ctx, event.ID, enums.EventStatusCancelled); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel event")
		}
		event.Status = enums.EventStatusCancelled

		responders, err := repo.ListResponders(ctx, event.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list responders")
		}
		result = &CancelEventResult{Affected: len(responders)}
		affected := make([]uuid.UUID, 0, len(responders))
		for _, row := range responders {
			affected = append(affected, row.UserID)
			if !row.PaidWithCredit() {
				continue
			}
			if _, err := s.ledger.Credit(ctx, tx, enums.CreditTransactionRefund, row.UserID, row.PaymentAmountCents, credits.Reference{
				RSVPID:  &row.ID,
				EventID: &event.ID,
				ActorID: &input.ActorID,
				Note:    "event cancelled: " + event.Title,
			}); err != nil {
				return err
			}
			if err := repo.MarkRefunded(ctx, row.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark refunded")
			}
			result.Refunded++
			result.RefundedCents += row.PaymentAmountCents
		}

		if err := s.emit(ctx, tx, enums.EventEventCancelled, event, input.ActorID, payloads.EventCancelledEvent{
			EventID:         event.ID,
			Title:           event.Title,
			AffectedUserIDs: affected,
			RefundedCents:   result.RefundedCents,
			CancelledAt:     s.now().UTC(),
		}); err != nil {
			return err
		}
		result.Event = NewEventView(*event)
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Ensure(err, pkgerrors.CodeDependency, "cancel event")
	}

	logCtx := s.logg.WithEventID(ctx, input.EventID.String())
	s.logg.Fields(logCtx, map[string]any{
		"affected":       result.Affected,
		"refunded":       result.Refunded,
		"refunded_cents": result.RefundedCents,
		"reason":         input.Reason,
	}).Msg("event cancelled")
	return result, nil
}

// CompleteDue marks past events completed, one transaction per event.
func (s *service) CompleteDue(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := s.repo.ListDueForCompletion(ctx, cutoff.UTC(), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list due events")
	}

	completed := 0
	for _, id := range ids {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			event, err := s.guard.LockEvent(ctx, tx, id)
			if err != nil {
				return err
			}
			if event.Status != enums.EventStatusActive {
				return nil
			}
			repo := s.repo.WithTx(tx)
			if err := repo.UpdateStatus(ctx, id, enums.EventStatusCompleted); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete event")
			}
			checkedIn, err := repo.CountCheckedIn(ctx, id)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count check-ins")
			}
			completed++
			return s.emit(ctx, tx, enums.EventEventCompleted, event, uuid.Nil, payloads.EventCompletedEvent{
				EventID:     id,
				Title:       event.Title,
				CheckedIn:   checkedIn,
				CompletedAt: s.now().UTC(),
			})
		})
		if err != nil {
			return completed, err
		}
	}
	return completed, nil
}

func (s *service) find(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	event, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load event")
	}
	return event, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, event *models.Event, actorID uuid.UUID, data any) error {
	var actor *outbox.ActorRef
	if actorID != uuid.Nil {
		actor = &outbox.ActorRef{UserID: actorID}
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateEvent,
		AggregateID:   event.ID,
		Actor:         actor,
		Data:          data,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit event")
	}
	return nil
}

// grew reports whether next admits more people than previous. nil is unlimited.
func grew(previous, next *int) bool {
	switch {
	case next == nil:
		return previous != nil
	case previous == nil:
		return false
	}
	return *next > *previous
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
