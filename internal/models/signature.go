package models

import (
    "time"

    "github.com/google/uuid"
    "gorm.io/gorm"
)

// Absence reason kinds.
const (
    AbsenceIllness     = "illness"
    AbsenceJustified   = "justified"
    AbsenceUnjustified = "unjustified"
    AbsenceOther       = "other"
)

// AttendanceSignature records presence or absence for one participant on one
// sheet. The composite unique index is what makes concurrent duplicate
// submissions safe: exactly one insert wins, the rest fail with 23505.
type AttendanceSignature struct {
    ID            string `gorm:"type:uuid;primaryKey"`
    SheetID       string `gorm:"type:uuid;uniqueIndex:uniq_sheet_participant"`
    ParticipantID string `gorm:"type:uuid;uniqueIndex:uniq_sheet_participant"`
    Role          string `gorm:"size:16"`
    Present       bool

    // Opaque reference into the image store; nil for code-path signatures.
    SignatureImage *string `gorm:"type:text"`
    SignedAt       time.Time

    AbsenceReason     *string `gorm:"type:text"`
    AbsenceReasonKind *string `gorm:"size:16"`

    CreatedAt time.Time
    UpdatedAt time.Time
}

func (s *AttendanceSignature) BeforeCreate(tx *gorm.DB) (err error) {
    if s.ID == "" {
        s.ID = uuid.NewString()
    }
    return nil
}

// AdminSignature stores an administrator's validation signature image once,
// keyed by user, so it is reused across sheet validations without re-capture.
type AdminSignature struct {
    ID        uint   `gorm:"primaryKey"`
    UserIDRef string `gorm:"type:uuid;uniqueIndex"`
    Image     string `gorm:"type:text"`
    CreatedAt time.Time
    UpdatedAt time.Time
}

func IsValidAbsenceKind(k string) bool {
    switch k {
    case AbsenceIllness, AbsenceJustified, AbsenceUnjustified, AbsenceOther:
        return true
    }
    return false
}
