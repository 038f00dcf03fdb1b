package models

import (
    "time"

    "github.com/google/uuid"
    "gorm.io/gorm"
)

// Sheet lifecycle statuses. Transitions are monotonic:
// pending -> open -> awaiting_validation -> validated.
const (
    SheetPending            = "pending"
    SheetOpen               = "open"
    SheetAwaitingValidation = "awaiting_validation"
    SheetValidated          = "validated"
)

// Session kinds.
const (
    KindInPerson   = "in-person"
    KindAutonomous = "autonomous"
    KindRemote     = "remote"
)

// AttendanceSheet is the signing record for one scheduled session slot.
// Exactly one sheet may exist per slot (unique index on SlotID).
type AttendanceSheet struct {
    ID           string `gorm:"type:uuid;primaryKey"`
    SlotID       string `gorm:"uniqueIndex"`
    FormationID  string `gorm:"type:uuid;index"`
    InstructorID string `gorm:"type:uuid;index"`

    StartsAt time.Time `gorm:"index"`
    EndsAt   time.Time
    Room     string `gorm:"size:64"`
    Kind     string `gorm:"size:16"`

    Status         string `gorm:"size:32;index;default:pending"`
    OpenForSigning bool   `gorm:"column:is_open_for_signing;index"`
    OpenedAt       *time.Time
    ClosedAt       *time.Time
    ValidatedAt    *time.Time
    ValidatedBy    *string `gorm:"type:uuid"`

    // At most one active credential of each kind; reissuing overwrites.
    // Link tokens are stored hashed, never in clear.
    NumericCode   *string `gorm:"size:6;index"`
    LinkTokenHash *string `gorm:"size:64;uniqueIndex"`
    LinkExpiresAt *time.Time
    LinkSentAt    *time.Time

    CreatedAt time.Time
    UpdatedAt time.Time
}

func (s *AttendanceSheet) BeforeCreate(tx *gorm.DB) (err error) {
    if s.ID == "" {
        s.ID = uuid.NewString()
    }
    return nil
}

// IsValidKind reports whether k is a known session kind.
func IsValidKind(k string) bool {
    switch k {
    case KindInPerson, KindAutonomous, KindRemote:
        return true
    }
    return false
}
