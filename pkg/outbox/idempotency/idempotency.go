// Package idempotency deduplicates Pub/Sub redeliveries per consumer. A
// consumer marks an envelope event id as processed before handling it and
// releases the mark when handling fails so the next delivery retries.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrAlreadyProcessed is returned by Guard when the event was handled before.
var ErrAlreadyProcessed = errors.New("event already processed")

// Store is the subset of the Redis client the manager needs.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Manager keys marks as <namespace>:idempotency:evt:processed:<consumer>:<event_id>.
// A zero ttl keeps marks forever.
type Manager struct {
	store Store
	ttl   time.Duration
}

func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// CheckAndMarkProcessed reports whether eventID was already seen by consumer,
// marking it as seen when it was not.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	fresh, err := m.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return false, err
	}
	return !fresh, nil
}

// Guard runs fn at most once per consumer and event.
func (m *Manager) Guard(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) error {
	seen, err := m.CheckAndMarkProcessed(ctx, consumer, eventID)
	switch {
	case err != nil:
		return fmt.Errorf("idempotency check: %w", err)
	case seen:
		return ErrAlreadyProcessed
	}

	handleErr := fn(ctx)
	if handleErr == nil {
		return nil
	}
	if err := m.Delete(ctx, consumer, eventID); err != nil {
		return errors.Join(handleErr, fmt.Errorf("release idempotency key: %w", err))
	}
	return handleErr
}

// Delete forgets that consumer processed eventID.
func (m *Manager) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	switch {
	case consumer == "":
		return "", errors.New("consumer name is required")
	case eventID == uuid.Nil:
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("evt:processed:"+consumer, eventID.String()), nil
}
