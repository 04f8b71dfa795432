// Package waitlist admits queued RSVPs when seats free up.
package waitlist

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrsvp-backend/internal/credits"
	"github.com/angelmondragon/eventrsvp-backend/pkg/db/models"
	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventrsvp-backend/pkg/errors"
	"github.com/angelmondragon/eventrsvp-backend/pkg/logger"
	"github.com/angelmondragon/eventrsvp-backend/pkg/metrics"
	"github.com/angelmondragon/eventrsvp-backend/pkg/outbox"
	"github.com/angelmondragon/eventrsvp-backend/pkg/outbox/payloads"
)

// DefaultBatch is the page size used when reading the waitlist queue.
const DefaultBatch = 50

type seatGuard interface {
	Reserve(ctx context.Context, tx *gorm.DB, event *models.Event, delta int) error
}

type creditLedger interface {
	Debit(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amountCents int64, ref credits.Reference) (int64, error)
}

type tokenAssigner interface {
	Assign(ctx context.Context, tx *gorm.DB, rsvpID uuid.UUID) (string, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Result summarizes one promotion pass.
type Result struct {
	Promoted []models.RSVP
	Failed   []uuid.UUID
	Skipped  int
}

// PromotedIDs lists the ids admitted by the pass.
func (r Result) PromotedIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.Promoted))
	for _, row := range r.Promoted {
		ids = append(ids, row.ID)
	}
	return ids
}

type Promoter struct {
	repo    Repository
	guard   seatGuard
	ledger  creditLedger
	tokens  tokenAssigner
	outbox  outboxPublisher
	metrics *metrics.AdmissionMetrics
	logg    *logger.Logger
	batch   int
	now     func() time.Time
}

type PromoterParams struct {
	Repo    Repository
	Guard   seatGuard
	Ledger  creditLedger
	Tokens  tokenAssigner
	Outbox  outboxPublisher
	Metrics *metrics.AdmissionMetrics
	Logger  *logger.Logger
	Batch   int
	Now     func() time.Time
}

func NewPromoter(params PromoterParams) (*Promoter, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("waitlist repository required")
	case params.Guard == nil:
		return nil, fmt.Errorf("capacity guard required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("credit ledger required")
	case params.Tokens == nil:
		return nil, fmt.Errorf("token issuer required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	if params.Batch <= 0 {
		params.Batch = DefaultBatch
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Promoter{
		repo:    params.Repo,
		guard:   params.Guard,
		ledger:  params.Ledger,
		tokens:  params.Tokens,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    params.Logger,
		batch:   params.Batch,
		now:     params.Now,
	}, nil
}

// PromoteNext admits waitlisted RSVPs for event in FIFO order while seats remain.
// Only parties that fit the free seats are loaded, page after page, so a run of
// large parties at the head of the queue never hides a smaller one behind it.
// Each admission runs in its own savepoint; a candidate that cannot pay is
// rolled back and the pass moves on. The caller must hold the event lock.
func (p *Promoter) PromoteNext(ctx context.Context, tx *gorm.DB, event *models.Event) (*Result, error) {
	result := &Result{}
	if event == nil || event.Status != enums.EventStatusActive || !hasRoom(event) {
		return result, nil
	}

	repo := p.repo.WithTx(tx)
	for hasRoom(event) {
		candidates, err := repo.Candidates(ctx, CandidateQuery{
			EventID:      event.ID,
			MaxPartySize: event.AvailableSpots(),
			Exclude:      result.Failed,
			Limit:        p.batch,
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load waitlist")
		}
		if len(candidates) == 0 {
			break
		}
		if err := p.promotePage(ctx, tx, event, candidates, result); err != nil {
			return nil, err
		}
	}

	if len(result.Promoted) > 0 {
		p.logg.Fields(ctx, map[string]any{
			"event_id": event.ID.String(),
			"promoted": len(result.Promoted),
			"skipped":  result.Skipped,
			"failed":   len(result.Failed),
		}).Msg("waitlist promoted")
	}
	return result, nil
}

func (p *Promoter) promotePage(ctx context.Context, tx *gorm.DB, event *models.Event, candidates []models.RSVP, result *Result) error {
	for _, queued := range candidates {
		if !hasRoom(event) {
			return nil
		}
		if !event.Fits(queued.PartySize()) {
			result.Skipped++
			p.metrics.ObservePromotion("skipped_no_fit")
			continue
		}

		candidate := queued
		headcount := event.AdmittedHeadcount
		err := tx.Transaction(func(sp *gorm.DB) error {
			return p.admit(ctx, sp, event, &candidate)
		})
		if err == nil {
			result.Promoted = append(result.Promoted, candidate)
			p.metrics.ObservePromotion("promoted")
			continue
		}
		event.AdmittedHeadcount = headcount

		if !skippable(err) {
			return err
		}
		result.Failed = append(result.Failed, queued.ID)
		if err := p.recordFailure(ctx, tx, event, queued, string(pkgerrors.CodeOf(err))); err != nil {
			return err
		}
	}
	return nil
}

// recordFailure notes a failed promotion on the row. The attendee is told only
// when the reason differs from the one already recorded, so repeated sweeps
// over the same unpayable candidate stay quiet.
func (p *Promoter) recordFailure(ctx context.Context, tx *gorm.DB, event *models.Event, queued models.RSVP, reason string) error {
	p.metrics.ObservePromotion(reason)
	logCtx := p.logg.WithFields(ctx, map[string]any{
		"event_id": event.ID.String(),
		"rsvp_id":  queued.ID.String(),
		"reason":   reason,
	})
	p.logg.Warn(logCtx, "waitlist promotion skipped")

	if queued.PromotionFailure != nil && *queued.PromotionFailure == reason {
		return nil
	}
	if err := p.repo.WithTx(tx).RecordFailure(ctx, queued.ID, reason, p.now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record promotion failure")
	}
	return p.emit(ctx, tx, enums.EventRSVPPromotionFailed, event, queued, reason)
}

func (p *Promoter) admit(ctx context.Context, sp *gorm.DB, event *models.Event, candidate *models.RSVP) error {
	if err := p.guard.Reserve(ctx, sp, event, candidate.PartySize()); err != nil {
		return err
	}

	if event.IsFree() {
		method := enums.PaymentMethodFree
		candidate.PaymentMethod = &method
		candidate.PaymentStatus = enums.PaymentStatusPaid
		candidate.PaymentAmountCents = 0
	} else {
		if candidate.PaymentMethod == nil || *candidate.PaymentMethod != enums.PaymentMethodCredit {
			return pkgerrors.New(pkgerrors.CodeValidation, "credit payment required for promotion")
		}
		if _, err := p.ledger.Debit(ctx, sp, candidate.UserID, event.PriceCents, credits.Reference{
			RSVPID:  &candidate.ID,
			EventID: &event.ID,
			Note:    "waitlist promotion",
		}); err != nil {
			return err
		}
		candidate.PaymentStatus = enums.PaymentStatusPaid
		candidate.PaymentAmountCents = event.PriceCents
	}

	if err := p.repo.WithTx(sp).MarkAdmitted(ctx, candidate); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "promote rsvp")
	}
	token, err := p.tokens.Assign(ctx, sp, candidate.ID)
	if err != nil {
		return err
	}
	candidate.Status = enums.RSVPStatusAccepted
	candidate.WaitlistedAt = nil
	candidate.AdmissionToken = &token

	return p.emit(ctx, sp, enums.EventRSVPPromoted, event, *candidate, "")
}

func (p *Promoter) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, event *models.Event, rsvp models.RSVP, reason string) error {
	data := payloads.RSVPEvent{
		RSVPID:             rsvp.ID,
		EventID:            event.ID,
		UserID:             rsvp.UserID,
		EventTitle:         event.Title,
		Status:             rsvp.Status,
		PreviousStatus:     enums.RSVPStatusWaitlisted,
		GuestCount:         rsvp.GuestCount,
		PaymentAmountCents: rsvp.PaymentAmountCents,
		Reason:             reason,
	}
	if rsvp.AdmissionToken != nil {
		data.AdmissionToken = *rsvp.AdmissionToken
	}
	if err := p.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateRSVP,
		AggregateID:   rsvp.ID,
		Data:          data,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit waitlist event")
	}
	return nil
}

func hasRoom(event *models.Event) bool {
	spots := event.AvailableSpots()
	return spots == nil || *spots > 0
}

func skippable(err error) bool {
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeInsufficientFunds, pkgerrors.CodeCapacityExceeded, pkgerrors.CodeValidation, pkgerrors.CodeNotFound:
		return true
	}
	return false
}
