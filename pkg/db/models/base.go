package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// assignID fills a zero primary key before insert so rows get identifiers on every
// dialect, not only where gen_random_uuid() is available.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (u *User) BeforeCreate(*gorm.DB) error { assignID(&u.ID); return nil }
func (e *Event) BeforeCreate(*gorm.DB) error { assignID(&e.ID); return nil }
func (r *RSVP) BeforeCreate(*gorm.DB) error { assignID(&r.ID); return nil }
func (c *CreditTransaction) BeforeCreate(*gorm.DB) error { assignID(&c.ID); return nil }
func (n *Notification) BeforeCreate(*gorm.DB) error { assignID(&n.ID); return nil }
func (o *OutboxEvent) BeforeCreate(*gorm.DB) error { assignID(&o.ID); return nil }
func (d *OutboxDLQ) BeforeCreate(*gorm.DB) error { assignID(&d.ID); return nil }

// All lists every persisted model, in dependency order, for dev auto-migration and tests.
func All() []any {
	return []any{
		&User{},
		&Event{},
		&RSVP{},
		&CreditTransaction{},
		&Notification{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
