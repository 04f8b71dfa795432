package rsvps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrsvp-backend/internal/credits"
	"github.com/angelmondragon/eventrsvp-backend/internal/waitlist"
	"github.com/angelmondragon/eventrsvp-backend/pkg/db"
	"github.com/angelmondragon/eventrsvp-backend/pkg/db/models"
	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventrsvp-backend/pkg/errors"
	"github.com/angelmondragon/eventrsvp-backend/pkg/logger"
	"github.com/angelmondragon/eventrsvp-backend/pkg/metrics"
	"github.com/angelmondragon/eventrsvp-backend/pkg/outbox"
	"github.com/angelmondragon/eventrsvp-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/eventrsvp-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type seatGuard interface {
	LockEvent(ctx context.Context, tx *gorm.DB, eventID uuid.UUID) (*models.Event, error)
	Reserve(ctx context.Context, tx *gorm.DB, event *models.Event, delta int) error
	Release(ctx context.Context, tx *gorm.DB, event *models.Event, seats int) error
}

type creditLedger interface {
	Debit(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amountCents int64, ref credits.Reference) (int64, error)
	Credit(ctx context.Context, tx *gorm.DB, kind enums.CreditTransactionType, userID uuid.UUID, amountCents int64, ref credits.Reference) (int64, error)
}

type tokenAssigner interface {
	Assign(ctx context.Context, tx *gorm.DB, rsvpID uuid.UUID) (string, error)
}

type promoter interface {
	PromoteNext(ctx context.Context, tx *gorm.DB, event *models.Event) (*waitlist.Result, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the RSVP state machine.
type Service interface {
	Respond(ctx context.Context, input RespondInput) (*RSVPResult, error)
	Cancel(ctx context.Context, input CancelInput) (*RSVPResult, error)
	Get(ctx context.Context, eventID, userID uuid.UUID) (*RSVPView, error)
	ListForEvent(ctx context.Context, input ListForEventInput) (*ListResult, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]RSVPView, error)
}

type ServiceParams struct {
	Tx       txRunner
	Repo     Repository
	Guard    seatGuard
	Ledger   creditLedger
	Tokens   tokenAssigner
	Waitlist promoter
	Outbox   outboxPublisher
	Metrics  *metrics.AdmissionMetrics
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	tx       txRunner
	repo     Repository
	guard    seatGuard
	ledger   creditLedger
	tokens   tokenAssigner
	waitlist promoter
	outbox   outboxPublisher
	metrics  *metrics.AdmissionMetrics
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("rsvp repository required")
	case params.Guard == nil:
		return nil, fmt.Errorf("capacity guard required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("credit ledger required")
	case params.Tokens == nil:
		return nil, fmt.Errorf("token issuer required")
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
		tokens:   params.Tokens,
		waitlist: params.Waitlist,
		outbox:   params.Outbox,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      params.Now,
	}, nil
}

// transition carries the state of one respond or cancel inside its transaction.
type transition struct {
	tx     *gorm.DB
	event  *models.Event
	rsvp   *models.RSVP
	prev   models.RSVP
	isNew  bool
	input  RespondInput
	result *RSVPResult
}

func (s *service) Respond(ctx context.Context, input RespondInput) (*RSVPResult, error) {
	if err := validateRespond(input); err != nil {
		s.metrics.ObserveResponse(string(input.Status), string(pkgerrors.CodeOf(err)))
		return nil, err
	}

	started := s.now()
	var result *RSVPResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		event, err := s.guard.LockEvent(ctx, tx, input.EventID)
		if err != nil {
			return err
		}
		if err := s.checkOpen(event); err != nil {
			return err
		}
		if input.Status == enums.RSVPStatusDeclined {
			input.GuestCount = 0
		}
		if err := checkGuests(event, input.GuestCount); err != nil {
			return err
		}

		tr, err := s.load(ctx, tx, event, input)
		if err != nil {
			return err
		}
		if input.Status == enums.RSVPStatusAccepted {
			err = s.accept(ctx, tr)
		} else {
			err = s.respondWithout(ctx, tr)
		}
		if err != nil {
			return err
		}
		result = tr.result
		return nil
	})
	s.metrics.ObserveTx("respond", s.now().Sub(started))

	if err != nil {
		s.metrics.ObserveResponse(string(input.Status), string(pkgerrors.CodeOf(err)))
		return nil, db.Classify(err, "record rsvp")
	}
	s.metrics.ObserveResponse(string(input.Status), string(result.Outcome))

	logCtx := s.logg.WithEventID(ctx, input.EventID.String())
	logCtx = s.logg.WithRSVPID(logCtx, result.RSVP.ID.String())
	s.logg.Fields(logCtx, map[string]any{
		"requested": string(input.Status),
		"outcome":   string(result.Outcome),
		"guests":    input.GuestCount,
		"promoted":  len(result.Promoted),
	}).Msg("rsvp recorded")
	return result, nil
}

func (s *service) load(ctx context.Context, tx *gorm.DB, event *models.Event, input RespondInput) (*transition, error) {
	row, err := s.repo.WithTx(tx).FindByEventAndUser(ctx, event.ID, input.UserID)
	isNew := false
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		isNew = true
		row = &models.RSVP{
			ID:            uuid.New(),
			EventID:       event.ID,
			UserID:        input.UserID,
			PaymentStatus: enums.PaymentStatusPending,
		}
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load rsvp")
	}
	return &transition{
		tx:     tx,
		event:  event,
		rsvp:   row,
		prev:   *row,
		isNew:  isNew,
		input:  input,
		result: &RSVPResult{},
	}, nil
}

// accept claims seats, collects payment and issues the admission token. When the
// event is full and keeps a waitlist, the attendee is queued instead.
func (s *service) accept(ctx context.Context, tr *transition) error {
	wasAccepted := tr.prev.Status == enums.RSVPStatusAccepted
	delta := 1 + tr.input.GuestCount - tr.prev.Headcount()

	if err := s.guard.Reserve(ctx, tr.tx, tr.event, delta); err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeCapacityExceeded) && tr.event.WaitlistEnabled && !wasAccepted {
			return s.enqueue(ctx, tr)
		}
		return err
	}

	if err := s.collectPayment(ctx, tr, wasAccepted); err != nil {
		return err
	}

	tr.rsvp.Status = enums.RSVPStatusAccepted
	tr.rsvp.GuestCount = tr.input.GuestCount
	tr.rsvp.WaitlistedAt = nil
	if err := s.persist(ctx, tr); err != nil {
		return err
	}

	if tr.rsvp.AdmissionToken == nil {
		token, err := s.tokens.Assign(ctx, tr.tx, tr.rsvp.ID)
		if err != nil {
			return err
		}
		tr.rsvp.AdmissionToken = &token
	}

	if delta < 0 {
		if err := s.promote(ctx, tr); err != nil {
			return err
		}
	}
	if !wasAccepted {
		if err := s.emit(ctx, tr, enums.EventRSVPConfirmed, ""); err != nil {
			return err
		}
	}

	tr.result.Outcome = OutcomeAccepted
	tr.result.RSVP = NewRSVPView(*tr.rsvp, true)
	return nil
}

func (s *service) collectPayment(ctx context.Context, tr *transition, wasAccepted bool) error {
	if wasAccepted && tr.prev.PaymentStatus == enums.PaymentStatusPaid {
		return nil
	}
	if tr.event.IsFree() {
		method := enums.PaymentMethodFree
		tr.rsvp.PaymentMethod = &method
		tr.rsvp.PaymentStatus = enums.PaymentStatusPaid
		tr.rsvp.PaymentAmountCents = 0
		return nil
	}

	switch tr.input.PaymentMethod {
	case "":
		return pkgerrors.New(pkgerrors.CodeValidation, "payment method required").WithDetails(map[string]any{
			"reason":      "PaymentRequired",
			"price_cents": tr.event.PriceCents,
		})
	case enums.PaymentMethodCredit:
	default:
		return pkgerrors.Newf(pkgerrors.CodeValidation, "payment method %q not accepted for a paid event", tr.input.PaymentMethod)
	}

	balance, err := s.ledger.Debit(ctx, tr.tx, tr.rsvp.UserID, tr.event.PriceCents, credits.Reference{
		RSVPID:  &tr.rsvp.ID,
		EventID: &tr.event.ID,
		ActorID: &tr.rsvp.UserID,
		Note:    "admission: " + tr.event.Title,
	})
	if err != nil {
		return err
	}
	method := enums.PaymentMethodCredit
	tr.rsvp.PaymentMethod = &method
	tr.rsvp.PaymentStatus = enums.PaymentStatusPaid
	tr.rsvp.PaymentAmountCents = tr.event.PriceCents
	tr.result.ChargedCents = tr.event.PriceCents
	tr.result.BalanceCents = &balance
	return nil
}

// enqueue stores the row as waitlisted. A row already waiting keeps its place.
func (s *service) enqueue(ctx context.Context, tr *transition) error {
	if tr.prev.Status != enums.RSVPStatusWaitlisted || tr.rsvp.WaitlistedAt == nil {
		queuedAt := s.now().UTC()
		tr.rsvp.WaitlistedAt = &queuedAt
	}
	tr.rsvp.Status = enums.RSVPStatusWaitlisted
	tr.rsvp.GuestCount = tr.input.GuestCount
	tr.rsvp.AdmissionToken = nil
	tr.rsvp.PaymentStatus = enums.PaymentStatusPending
	tr.rsvp.PaymentAmountCents = 0
	tr.rsvp.PaymentMethod = nil

	method := tr.input.PaymentMethod
	if method == "" && !tr.event.IsFree() {
		method = enums.PaymentMethodCredit
	}
	if method != "" {
		tr.rsvp.PaymentMethod = &method
	}

	if err := s.persist(ctx, tr); err != nil {
		return err
	}
	if tr.prev.Status != enums.RSVPStatusWaitlisted {
		if err := s.emit(ctx, tr, enums.EventRSVPWaitlisted, ""); err != nil {
			return err
		}
	}
	tr.result.Outcome = OutcomeWaitlisted
	tr.result.RSVP = NewRSVPView(*tr.rsvp, true)
	return nil
}

// respondWithout handles maybe, declined and explicit waitlist requests.
func (s *service) respondWithout(ctx context.Context, tr *transition) error {
	if tr.input.Status == enums.RSVPStatusWaitlisted {
		switch {
		case !tr.event.WaitlistEnabled:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "event does not keep a waitlist")
		case tr.prev.Status == enums.RSVPStatusAccepted:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "accepted rsvps cannot join the waitlist")
		case tr.prev.Status != enums.RSVPStatusWaitlisted && tr.event.Fits(1+tr.input.GuestCount):
			return pkgerrors.New(pkgerrors.CodeStateConflict, "seats are available; respond accepted instead")
		}
		return s.enqueue(ctx, tr)
	}

	released, err := s.vacate(ctx, tr, false)
	if err != nil {
		return err
	}
	tr.rsvp.Status = tr.input.Status
	tr.rsvp.GuestCount = tr.input.GuestCount
	if err := s.persist(ctx, tr); err != nil {
		return err
	}
	if released > 0 {
		if err := s.promote(ctx, tr); err != nil {
			return err
		}
	}
	tr.result.Outcome = OutcomeUpdated
	tr.result.RSVP = NewRSVPView(*tr.rsvp, true)
	return nil
}

// vacate gives back the seats and credit payment a row holds and clears its
// admission state. organizer marks the payment refunded instead of resetting it.
func (s *service) vacate(ctx context.Context, tr *transition, organizer bool) (int, error) {
	released := tr.prev.Headcount()
	if err := s.guard.Release(ctx, tr.tx, tr.event, released); err != nil {
		return 0, err
	}

	refunded := false
	if tr.prev.PaidWithCredit() {
		balance, err := s.ledger.Credit(ctx, tr.tx, enums.CreditTransactionRefund, tr.rsvp.UserID, tr.prev.PaymentAmountCents, credits.Reference{
			RSVPID:  &tr.rsvp.ID,
			EventID: &tr.event.ID,
			Note:    "refund: " + tr.event.Title,
		})
		if err != nil {
			return 0, err
		}
		refunded = true
		tr.result.RefundedCents = tr.prev.PaymentAmountCents
		tr.result.BalanceCents = &balance
	}

	tr.rsvp.AdmissionToken = nil
	tr.rsvp.WaitlistedAt = nil
	if organizer && refunded {
		tr.rsvp.PaymentStatus = enums.PaymentStatusRefunded
		return released, nil
	}
	tr.rsvp.PaymentStatus = enums.PaymentStatusPending
	tr.rsvp.PaymentAmountCents = 0
	tr.rsvp.PaymentMethod = nil
	return released, nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*RSVPResult, error) {
	if input.EventID == uuid.Nil || input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id and user id required")
	}

	started := s.now()
	var result *RSVPResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		event, err := s.guard.LockEvent(ctx, tx, input.EventID)
		if err != nil {
			return err
		}
		if !event.ManagedBy(input.ActorID, input.ActorRole) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the organizer can cancel attendees")
		}

		row, err := s.repo.WithTx(tx).FindByEventAndUser(ctx, event.ID, input.UserID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "rsvp not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load rsvp")
		}
		tr := &transition{
			tx:     tx,
			event:  event,
			rsvp:   row,
			prev:   *row,
			input:  RespondInput{EventID: event.ID, UserID: row.UserID, Status: enums.RSVPStatusDeclined},
			result: &RSVPResult{Outcome: OutcomeUpdated},
		}
		if row.Status == enums.RSVPStatusDeclined {
			tr.result.RSVP = NewRSVPView(*row, false)
			result = tr.result
			return nil
		}

		released, err := s.vacate(ctx, tr, true)
		if err != nil {
			return err
		}
		tr.rsvp.Status = enums.RSVPStatusDeclined
		if err := s.persist(ctx, tr); err != nil {
			return err
		}
		if err := s.emit(ctx, tr, enums.EventRSVPCancelled, "cancelled_by_organizer"); err != nil {
			return err
		}
		if released > 0 {
			if err := s.promote(ctx, tr); err != nil {
				return err
			}
		}
		tr.result.RSVP = NewRSVPView(*tr.rsvp, false)
		result = tr.result
		return nil
	})
	s.metrics.ObserveTx("cancel", s.now().Sub(started))
	if err != nil {
		return nil, db.Classify(err, "cancel rsvp")
	}

	logCtx := s.logg.WithEventID(ctx, input.EventID.String())
	logCtx = s.logg.WithRSVPID(logCtx, result.RSVP.ID.String())
	s.logg.Fields(logCtx, map[string]any{
		"actor_id": input.ActorID.String(),
		"refunded": result.RefundedCents,
		"promoted": len(result.Promoted),
	}).Msg("rsvp cancelled by organizer")
	return result, nil
}

func (s *service) Get(ctx context.Context, eventID, userID uuid.UUID) (*RSVPView, error) {
	row, err := s.repo.FindByEventAndUser(ctx, eventID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "rsvp not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load rsvp")
	}
	view := NewRSVPView(*row, true)
	return &view, nil
}

func (s *service) ListForEvent(ctx context.Context, input ListForEventInput) (*ListResult, error) {
	if input.Status != nil && !input.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid status %q", *input.Status)
	}
	event, err := s.repo.FindEvent(ctx, input.EventID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load event")
	}
	if !event.ManagedBy(input.ActorID, input.ActorRole) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the organizer can list attendees")
	}
	cursor, err := pagination.ParseCursor(input.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, next, err := s.repo.ListByEvent(ctx, listParams{
		EventID: input.EventID,
		Status:  input.Status,
		Limit:   input.Limit,
		Cursor:  cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list rsvps")
	}
	result := &ListResult{Items: make([]RSVPView, 0, len(rows))}
	for _, row := range rows {
		result.Items = append(result.Items, NewRSVPView(row, false))
	}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID) ([]RSVPView, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list rsvps")
	}
	views := make([]RSVPView, 0, len(rows))
	for _, row := range rows {
		views = append(views, NewRSVPView(row, true))
	}
	return views, nil
}

func (s *service) persist(ctx context.Context, tr *transition) error {
	// A recorded promotion failure only describes the current stay on the waitlist.
	if tr.rsvp.Status != enums.RSVPStatusWaitlisted || tr.prev.Status != enums.RSVPStatusWaitlisted {
		tr.rsvp.PromotionFailure = nil
		tr.rsvp.PromotionFailedAt = nil
	}
	repo := s.repo.WithTx(tr.tx)
	if tr.isNew {
		if err := repo.Create(ctx, tr.rsvp); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create rsvp")
		}
		tr.isNew = false
		return nil
	}
	if err := repo.Update(ctx, tr.rsvp); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update rsvp")
	}
	return nil
}

func (s *service) promote(ctx context.Context, tr *transition) error {
	promoted, err := s.waitlist.PromoteNext(ctx, tr.tx, tr.event)
	if err != nil {
		return err
	}
	tr.result.Promoted = append(tr.result.Promoted, promoted.PromotedIDs()...)
	return nil
}

func (s *service) emit(ctx context.Context, tr *transition, eventType enums.OutboxEventType, reason string) error {
	data := payloads.RSVPEvent{
		RSVPID:             tr.rsvp.ID,
		EventID:            tr.event.ID,
		UserID:             tr.rsvp.UserID,
		EventTitle:         tr.event.Title,
		Status:             tr.rsvp.Status,
		PreviousStatus:     tr.prev.Status,
		GuestCount:         tr.rsvp.GuestCount,
		PaymentAmountCents: tr.rsvp.PaymentAmountCents,
		Reason:             reason,
	}
	if tr.rsvp.AdmissionToken != nil {
		data.AdmissionToken = *tr.rsvp.AdmissionToken
	}
	if err := s.outbox.Emit(ctx, tr.tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateRSVP,
		AggregateID:   tr.rsvp.ID,
		Data:          data,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit rsvp event")
	}
	return nil
}

func (s *service) checkOpen(event *models.Event) error {
	now := s.now().UTC()
	switch {
	case event.Status != enums.EventStatusActive:
		return pkgerrors.New(pkgerrors.CodeEventUnavailable, "event is not accepting rsvps").WithDetails(map[string]any{
			"status": event.Status,
		})
	case !now.Before(event.StartAt):
		return pkgerrors.New(pkgerrors.CodeEventUnavailable, "event has already started")
	case event.RSVPDeadline != nil && now.After(*event.RSVPDeadline):
		return pkgerrors.New(pkgerrors.CodeEventUnavailable, "rsvp deadline has passed")
	}
	return nil
}

func validateRespond(input RespondInput) error {
	if input.EventID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if !input.Status.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid rsvp status %q", input.Status)
	}
	if input.PaymentMethod != "" && !input.PaymentMethod.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid payment method %q", input.PaymentMethod)
	}
	if input.GuestCount < 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidGuestCount, "guest count cannot be negative")
	}
	return nil
}

func checkGuests(event *models.Event, guests int) error {
	if guests == 0 {
		return nil
	}
	if !event.AllowPlusOnes {
		return pkgerrors.New(pkgerrors.CodeInvalidGuestCount, "event does not allow guests")
	}
	if event.MaxGuestsPerRSVP != nil && guests > *event.MaxGuestsPerRSVP {
		return pkgerrors.Newf(pkgerrors.CodeInvalidGuestCount, "at most %d guests allowed", *event.MaxGuestsPerRSVP).WithDetails(map[string]any{
			"max_guests": *event.MaxGuestsPerRSVP,
		})
	}
	return nil
}
