package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrsvp-backend/pkg/db"
	"github.com/angelmondragon/eventrsvp-backend/pkg/db/models"
	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventrsvp-backend/pkg/errors"
	"github.com/angelmondragon/eventrsvp-backend/pkg/metrics"
	"github.com/angelmondragon/eventrsvp-backend/pkg/money"
	"github.com/angelmondragon/eventrsvp-backend/pkg/outbox"
	"github.com/angelmondragon/eventrsvp-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/eventrsvp-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Ledger owns every mutation of a user's credit balance. Debit and Credit run
// inside the caller's transaction; the admin operations open their own.
type Ledger interface {
	Debit(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amountCents int64, ref Reference) (int64, error)
	Credit(ctx context.Context, tx *gorm.DB, kind enums.CreditTransactionType, userID uuid.UUID, amountCents int64, ref Reference) (int64, error)
	Grant(ctx context.Context, input GrantInput) (*BalanceView, error)
	SetBalance(ctx context.Context, input SetBalanceInput) (*BalanceView, error)
	Balance(ctx context.Context, userID uuid.UUID) (*BalanceView, error)
	History(ctx context.Context, userID uuid.UUID, params pagination.Params) (*HistoryResult, error)
}

// Reference ties a balance mutation to whatever caused it.
type Reference struct {
	RSVPID  *uuid.UUID
	EventID *uuid.UUID
	ActorID *uuid.UUID
	Note    string
}

// GrantInput adds credits to a user on behalf of an administrator.
type GrantInput struct {
	ActorID     uuid.UUID
	ActorRole   enums.UserRole
	UserID      uuid.UUID
	AmountCents int64
	Note        string
}

// SetBalanceInput overwrites a balance. Negative targets clamp to zero.
type SetBalanceInput struct {
	ActorID      uuid.UUID
	ActorRole    enums.UserRole
	UserID       uuid.UUID
	BalanceCents int64
	Note         string
}

type BalanceView struct {
	UserID       uuid.UUID `json:"user_id"`
	BalanceCents int64     `json:"balance_cents"`
	Balance      string    `json:"balance"`
}

type TransactionView struct {
	ID                uuid.UUID                   `json:"id"`
	Type              enums.CreditTransactionType `json:"type"`
	AmountCents       int64                       `json:"amount_cents"`
	Amount            string                      `json:"amount"`
	BalanceAfterCents int64                       `json:"balance_after_cents"`
	RSVPID            *uuid.UUID                  `json:"rsvp_id,omitempty"`
	Note              string                      `json:"note,omitempty"`
	CreatedAt         string                      `json:"created_at"`
}

type HistoryResult struct {
	Items  []TransactionView `json:"items"`
	Cursor string            `json:"cursor"`
}

type service struct {
	tx      txRunner
	repo    Repository
	outbox  outboxPublisher
	metrics *metrics.AdmissionMetrics
}

// NewService wires the credit ledger. A nil metrics recorder is allowed.
func NewService(tx txRunner, repo Repository, publisher outboxPublisher, recorder *metrics.AdmissionMetrics) (Ledger, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("credits repository required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{tx: tx, repo: repo, outbox: publisher, metrics: recorder}, nil
}

func (s *service) Debit(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amountCents int64, ref Reference) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if amountCents <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "debit amount must be positive")
	}
	repo := s.repo.WithTx(tx)

	ok, err := repo.Decrement(ctx, userID, amountCents)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "debit credits")
	}
	if !ok {
		balance, err := repo.Balance(ctx, userID)
		if err != nil {
			return 0, balanceLookupError(err)
		}
		return 0, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient credits").WithDetails(map[string]any{
			"balance_cents":  balance,
			"required_cents": amountCents,
		})
	}

	balance, err := s.record(ctx, tx, enums.CreditTransactionDebit, userID, amountCents, ref)
	if err != nil {
		return 0, err
	}
	s.metrics.AddDebited(amountCents)
	return balance, nil
}

func (s *service) Credit(ctx context.Context, tx *gorm.DB, kind enums.CreditTransactionType, userID uuid.UUID, amountCents int64, ref Reference) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if !kind.Increases() {
		return 0, pkgerrors.Newf(pkgerrors.CodeValidation, "transaction type %q does not credit a balance", kind)
	}
	if amountCents <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "credit amount must be positive")
	}
	repo := s.repo.WithTx(tx)

	if err := repo.Increment(ctx, userID, amountCents); err != nil {
		return 0, balanceLookupError(err)
	}
	balance, err := s.record(ctx, tx, kind, userID, amountCents, ref)
	if err != nil {
		return 0, err
	}
	if kind == enums.CreditTransactionRefund {
		s.metrics.AddRefunded(amountCents)
	}
	return balance, nil
}

func (s *service) Grant(ctx context.Context, input GrantInput) (*BalanceView, error) {
	if input.ActorRole != enums.UserRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "grant amount must be positive")
	}

	var balance int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		balance, err = s.Credit(ctx, tx, enums.CreditTransactionGrant, input.UserID, input.AmountCents, Reference{
			ActorID: actorRef(input.ActorID),
			Note:    input.Note,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return newBalanceView(input.UserID, balance), nil
}

func (s *service) SetBalance(ctx context.Context, input SetBalanceInput) (*BalanceView, error) {
	if input.ActorRole != enums.UserRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	target := input.BalanceCents
	if target < 0 {
		target = 0
	}
	note := input.Note
	if note == "" {
		note = "balance adjustment"
	}
	ref := Reference{ActorID: actorRef(input.ActorID), Note: note}

	balance := target
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := s.repo.WithTx(tx).Balance(ctx, input.UserID)
		if err != nil {
			return balanceLookupError(err)
		}
		switch diff := target - current; {
		case diff > 0:
			_, err = s.Credit(ctx, tx, enums.CreditTransactionGrant, input.UserID, diff, ref)
		case diff < 0:
			_, err = s.Debit(ctx, tx, input.UserID, -diff, ref)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return newBalanceView(input.UserID, balance), nil
}

func (s *service) Balance(ctx context.Context, userID uuid.UUID) (*BalanceView, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	balance, err := s.repo.Balance(ctx, userID)
	if err != nil {
		return nil, balanceLookupError(err)
	}
	return newBalanceView(userID, balance), nil
}

func (s *service) History(ctx context.Context, userID uuid.UUID, params pagination.Params) (*HistoryResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, next, err := s.repo.ListTransactions(ctx, userID, params.Limit, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list credit transactions")
	}
	result := &HistoryResult{Items: make([]TransactionView, 0, len(rows))}
	for _, row := range rows {
		result.Items = append(result.Items, TransactionView{
			ID:                row.ID,
			Type:              row.Type,
			AmountCents:       row.AmountCents,
			Amount:            money.FormatCents(row.AmountCents),
			BalanceAfterCents: row.BalanceAfterCents,
			RSVPID:            row.RSVPID,
			Note:              row.Note,
			CreatedAt:         row.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

// record writes the audit row for a mutation that already hit the balance and,
// for balance increases, queues the matching domain event.
func (s *service) record(ctx context.Context, tx *gorm.DB, kind enums.CreditTransactionType, userID uuid.UUID, amountCents int64, ref Reference) (int64, error) {
	repo := s.repo.WithTx(tx)
	balance, err := repo.Balance(ctx, userID)
	if err != nil {
		return 0, balanceLookupError(err)
	}
	entry := &models.CreditTransaction{
		UserID:            userID,
		RSVPID:            ref.RSVPID,
		ActorUserID:       ref.ActorID,
		Type:              kind,
		AmountCents:       amountCents,
		BalanceAfterCents: balance,
		Note:              ref.Note,
	}
	if err := repo.InsertTransaction(ctx, entry); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record credit transaction")
	}
	if !kind.Increases() {
		return balance, nil
	}

	eventType := enums.EventCreditGranted
	if kind == enums.CreditTransactionRefund {
		eventType = enums.EventCreditRefunded
	}
	var actor *outbox.ActorRef
	if ref.ActorID != nil {
		actor = &outbox.ActorRef{UserID: *ref.ActorID}
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateCredit,
		AggregateID:   entry.ID,
		Actor:         actor,
		Data: payloads.CreditEvent{
			TransactionID:     entry.ID,
			UserID:            userID,
			Type:              kind,
			AmountCents:       amountCents,
			BalanceAfterCents: balance,
			RSVPID:            ref.RSVPID,
			EventID:           ref.EventID,
			Note:              ref.Note,
		},
	}); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit credit event")
	}
	return balance, nil
}

func balanceLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return db.Classify(err, "load credit balance")
}

func actorRef(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func newBalanceView(userID uuid.UUID, balance int64) *BalanceView {
	return &BalanceView{UserID: userID, BalanceCents: balance, Balance: money.FormatCents(balance)}
}
