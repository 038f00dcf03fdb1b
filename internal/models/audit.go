package models

import (
    "time"

    "gorm.io/datatypes"
)

// Audit action kinds.
const (
    AuditQRScan        = "qr_scan"
    AuditLinkSign      = "link_sign"
    AuditManualAbsence = "manual_absence"
    AuditValidation    = "validation"
)

// AuditLogEntry is append-only; rows are never updated or deleted.
type AuditLogEntry struct {
    ID       uint           `gorm:"primaryKey"`
    SheetID  string         `gorm:"type:uuid;index"`
    ActorID  string         `gorm:"type:uuid;index"`
    Action   string         `gorm:"size:32;index"`
    Metadata datatypes.JSON `gorm:"type:jsonb"`
    CreatedAt time.Time
}
