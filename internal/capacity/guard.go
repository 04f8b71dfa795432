// Package capacity serializes seat accounting for an event.
package capacity

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/eventrsvp-backend/pkg/db"
	"github.com/angelmondragon/eventrsvp-backend/pkg/db/models"
	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventrsvp-backend/pkg/errors"
)

// Guard moves events.admitted_headcount. Every change goes through a conditional
// UPDATE so two transactions can never both claim the last seat, and the in-memory
// event passed by the caller is kept in sync with the row.
type Guard struct{}

func NewGuard() *Guard {
	return &Guard{}
}

// LockEvent loads the event row FOR UPDATE, serializing every admission decision
// for that event until tx ends.
func (g *Guard) LockEvent(ctx context.Context, tx *gorm.DB, eventID uuid.UUID) (*models.Event, error) {
	var event models.Event
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", eventID).
		Take(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
	}
	if err != nil {
		return nil, db.Classify(err, "lock event")
	}
	return &event, nil
}

// Reserve applies delta seats to the event. Non-positive deltas always succeed;
// positive ones succeed only while the new headcount stays within capacity.
func (g *Guard) Reserve(ctx context.Context, tx *gorm.DB, event *models.Event, delta int) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "event required")
	}
	if delta == 0 {
		return nil
	}
	if delta < 0 {
		return g.Release(ctx, tx, event, -delta)
	}

	result := tx.WithContext(ctx).
		Model(&models.Event{}).
		Where("id = ? AND (capacity IS NULL OR admitted_headcount + ? <= capacity)", event.ID, delta).
		UpdateColumn("admitted_headcount", gorm.Expr("admitted_headcount + ?", delta))
	if result.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "reserve seats")
	}
	if result.RowsAffected == 0 {
		return capacityExceeded(event, delta)
	}
	event.AdmittedHeadcount += delta
	return nil
}

// Release returns seats to the pool. The headcount never drops below zero.
func (g *Guard) Release(ctx context.Context, tx *gorm.DB, event *models.Event, seats int) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "event required")
	}
	if seats <= 0 {
		return nil
	}
	result := tx.WithContext(ctx).
		Model(&models.Event{}).
		Where("id = ?", event.ID).
		UpdateColumn("admitted_headcount", gorm.Expr("CASE WHEN admitted_headcount >= ? THEN admitted_headcount - ? ELSE 0 END", seats, seats))
	if result.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "release seats")
	}
	event.AdmittedHeadcount -= seats
	if event.AdmittedHeadcount < 0 {
		event.AdmittedHeadcount = 0
	}
	return nil
}

// Headcount sums 1+guest_count over accepted RSVPs straight from the rsvps table.
func (g *Guard) Headcount(ctx context.Context, tx *gorm.DB, eventID uuid.UUID) (int, error) {
	var total int64
	err := tx.WithContext(ctx).
		Model(&models.RSVP{}).
		Select("COALESCE(SUM(1 + guest_count), 0)").
		Where("event_id = ? AND status = ?", eventID, enums.RSVPStatusAccepted).
		Scan(&total).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum headcount")
	}
	return int(total), nil
}

// Reconcile rewrites the materialized headcount from the rsvps table and reports
// whether it had drifted.
func (g *Guard) Reconcile(ctx context.Context, tx *gorm.DB, event *models.Event) (bool, error) {
	actual, err := g.Headcount(ctx, tx, event.ID)
	if err != nil {
		return false, err
	}
	if actual == event.AdmittedHeadcount {
		return false, nil
	}
	if err := tx.WithContext(ctx).
		Model(&models.Event{}).
		Where("id = ?", event.ID).
		UpdateColumn("admitted_headcount", actual).Error; err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reconcile headcount")
	}
	event.AdmittedHeadcount = actual
	return true, nil
}

func capacityExceeded(event *models.Event, requested int) error {
	details := map[string]any{
		"requested":          requested,
		"admitted_headcount": event.AdmittedHeadcount,
	}
	if event.Capacity != nil {
		details["capacity"] = *event.Capacity
		if spots := event.AvailableSpots(); spots != nil {
			details["available_spots"] = *spots
		}
	}
	return pkgerrors.New(pkgerrors.CodeCapacityExceeded, "event is at capacity").WithDetails(details)
}
