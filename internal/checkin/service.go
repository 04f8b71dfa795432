// Package checkin admits attendees at the door by admission token.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrsvp-backend/pkg/db"
	"github.com/angelmondragon/eventrsvp-backend/pkg/db/models"
	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventrsvp-backend/pkg/errors"
	"github.com/angelmondragon/eventrsvp-backend/pkg/logger"
	"github.com/angelmondragon/eventrsvp-backend/pkg/metrics"
	"github.com/angelmondragon/eventrsvp-backend/pkg/outbox"
	"github.com/angelmondragon/eventrsvp-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Result distinguishes a fresh admission from a repeated scan.
type Result string

const (
	ResultAdmitted         Result = "admitted"
	ResultAlreadyCheckedIn Result = "already_checked_in"
)

type Input struct {
	Token        string
	OperatorID   uuid.UUID
	OperatorRole enums.UserRole
}

// Summary is what the door operator sees about the scanned RSVP.
type Summary struct {
	RSVPID      uuid.UUID  `json:"rsvp_id"`
	EventID     uuid.UUID  `json:"event_id"`
	UserID      uuid.UUID  `json:"user_id"`
	EventTitle  string     `json:"event_title"`
	GuestCount  int        `json:"guest_count"`
	PartySize   int        `json:"party_size"`
	CheckedInAt *time.Time `json:"checked_in_at"`
}

type CheckInResult struct {
	Result Result  `json:"result"`
	RSVP   Summary `json:"rsvp"`
}

type Service interface {
	CheckIn(ctx context.Context, input Input) (*CheckInResult, error)
}

type service struct {
	tx      txRunner
	repo    Repository
	outbox  outboxPublisher
	metrics *metrics.AdmissionMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(tx txRunner, repo Repository, publisher outboxPublisher, recorder *metrics.AdmissionMetrics, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("checkin repository required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{tx: tx, repo: repo, outbox: publisher, metrics: recorder, logg: logg, now: time.Now}, nil
}

func (s *service) CheckIn(ctx context.Context, input Input) (*CheckInResult, error) {
	token := strings.TrimSpace(input.Token)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "token required")
	}

	var result *CheckInResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		row, err := repo.FindByToken(ctx, token)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tokenNotFound()
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve token")
		}
		event, err := repo.FindEvent(ctx, row.EventID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load event")
		}
		if !event.ManagedBy(input.OperatorID, input.OperatorRole) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the organizer can check attendees in")
		}
		if event.Status == enums.EventStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeEventUnavailable, "event was cancelled")
		}

		at := s.now().UTC()
		updated, err := repo.MarkCheckedIn(ctx, token, at)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check in")
		}
		if updated {
			row.CheckedIn = true
			row.CheckedInAt = &at
			result = &CheckInResult{Result: ResultAdmitted, RSVP: summarize(*row, *event)}
			return s.emit(ctx, tx, *row, input.OperatorID, at)
		}

		// Lost the CAS: re-read to tell a repeat scan from a token revoked meanwhile.
		row, err = repo.FindByToken(ctx, token)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tokenNotFound()
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve token")
		}
		if row.Status != enums.RSVPStatusAccepted || !row.CheckedIn {
			return tokenNotFound()
		}
		result = &CheckInResult{Result: ResultAlreadyCheckedIn, RSVP: summarize(*row, *event)}
		return nil
	})
	if err != nil {
		s.metrics.ObserveCheckIn(string(pkgerrors.CodeOf(err)))
		return nil, db.Classify(err, "check in")
	}
	s.metrics.ObserveCheckIn(string(result.Result))

	logCtx := s.logg.WithEventID(ctx, result.RSVP.EventID.String())
	logCtx = s.logg.WithRSVPID(logCtx, result.RSVP.RSVPID.String())
	if result.Result == ResultAlreadyCheckedIn {
		s.logg.Warn(logCtx, "admission token scanned again")
	} else {
		s.logg.Info(logCtx, "attendee checked in")
	}
	return result, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, row models.RSVP, operatorID uuid.UUID, at time.Time) error {
	var actor *outbox.ActorRef
	if operatorID != uuid.Nil {
		actor = &outbox.ActorRef{UserID: operatorID}
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventRSVPCheckedIn,
		AggregateType: enums.AggregateRSVP,
		AggregateID:   row.ID,
		Actor:         actor,
		Data: payloads.RSVPCheckedInEvent{
			RSVPID:      row.ID,
			EventID:     row.EventID,
			UserID:      row.UserID,
			CheckedInAt: at,
			OperatorID:  operatorID,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit check-in event")
	}
	return nil
}

func summarize(row models.RSVP, event models.Event) Summary {
	return Summary{
		RSVPID:      row.ID,
		EventID:     row.EventID,
		UserID:      row.UserID,
		EventTitle:  event.Title,
		GuestCount:  row.GuestCount,
		PartySize:   row.PartySize(),
		CheckedInAt: row.CheckedInAt,
	}
}

func tokenNotFound() error {
	return pkgerrors.New(pkgerrors.CodeTokenNotFound, "admission token not recognized")
}
