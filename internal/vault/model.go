package vault

import (
	"fmt"
	"time"
)

const (
	MinDeleteHours = 1
	MaxDeleteHours = 720
)

// Item is one piece of opaque content, addressed by the channel's reference.
type Item struct {
	ExternalRef string
	Kind        Kind
	Caption     string
	OwnerID     int64
	StagedAt    time.Time
	CommittedAt time.Time
}

// Settings is the per-batch configuration triple. GlobalConfig uses the same shape.
type Settings struct {
	AutoDelete       bool `json:"auto_delete"`
	DeleteAfterHours int  `json:"delete_after_hours"`
	ProtectContent   bool `json:"protect_content"`
}

func DefaultSettings() Settings {
	return Settings{DeleteAfterHours: 24}
}

// Patch is a partial Settings update; nil fields are left untouched.
type Patch struct {
	AutoDelete       *bool
	DeleteAfterHours *int
	ProtectContent   *bool
}

func (s Settings) Apply(p Patch) Settings {
	if p.AutoDelete != nil {
		s.AutoDelete = *p.AutoDelete
	}
	if p.DeleteAfterHours != nil {
		s.DeleteAfterHours = *p.DeleteAfterHours
	}
	if p.ProtectContent != nil {
		s.ProtectContent = *p.ProtectContent
	}
	return s
}

// ValidateHours checks user-supplied TTL hours.
func ValidateHours(h int) error {
	if h < MinDeleteHours || h > MaxDeleteHours {
		return fmt.Errorf("%w: delete_after_hours must be between %d and %d, got %d", ErrValidation, MinDeleteHours, MaxDeleteHours, h)
	}
	return nil
}

// Batch is the set of items committed together under one code.
type Batch struct {
	Code        string
	OwnerID     int64
	CommittedAt time.Time
	Settings    Settings
	// DeleteAt, when set, wins over CommittedAt + DeleteAfterHours.
	DeleteAt *time.Time
	Items    []Item
}

// ExpiresAt returns when the batch becomes eligible for sweeping.
func (b Batch) ExpiresAt() (time.Time, bool) {
	if !b.Settings.AutoDelete {
		return time.Time{}, false
	}
	if b.DeleteAt != nil {
		return *b.DeleteAt, true
	}
	return b.CommittedAt.Add(time.Duration(b.Settings.DeleteAfterHours) * time.Hour), true
}

func (b Batch) Expired(now time.Time) bool {
	at, ok := b.ExpiresAt()
	return ok && !now.Before(at)
}

// DeleteAtFor computes the absolute expiry stored with a batch.
func DeleteAtFor(committedAt time.Time, s Settings) *time.Time {
	if !s.AutoDelete {
		return nil
	}
	at := committedAt.Add(time.Duration(s.DeleteAfterHours) * time.Hour)
	return &at
}

// BatchSummary is one row of an owner's listing.
type BatchSummary struct {
	Code         string
	Count        int
	FirstKind    Kind
	FirstCaption string
	Settings     Settings
	CommittedAt  time.Time
}

type Consumer struct {
	ID          int64
	DisplayName string
}

type Stats struct {
	Items     int
	Batches   int
	Consumers int
}
