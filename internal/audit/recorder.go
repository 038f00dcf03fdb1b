package audit

import (
    "context"
    "encoding/json"

    "go.uber.org/zap"
    "gorm.io/gorm"

    "github.com/ydelhoste/emargement_backend/internal/models"
)

// Recorder appends to the audit log. Writes are best-effort: a failed audit
// entry is logged and dropped, it never fails the action being audited.
type Recorder struct {
    DB  *gorm.DB
    Log *zap.Logger
}

func NewRecorder(db *gorm.DB, log *zap.Logger) *Recorder {
    return &Recorder{DB: db, Log: log}
}

func (r *Recorder) Record(ctx context.Context, sheetID, actorID, action string, meta map[string]any) error {
    entry := models.AuditLogEntry{
        SheetID: sheetID,
        ActorID: actorID,
        Action:  action,
    }
    if meta != nil {
        raw, err := json.Marshal(meta)
        if err != nil {
            return err
        }
        entry.Metadata = raw
    }
    return r.DB.WithContext(ctx).Create(&entry).Error
}

// ForSheet returns the sheet's audit trail, oldest first. Read-only; entries
// are never mutated.
func (r *Recorder) ForSheet(ctx context.Context, sheetID string) ([]models.AuditLogEntry, error) {
    var entries []models.AuditLogEntry
    err := r.DB.WithContext(ctx).
        Where("sheet_id = ?", sheetID).
        Order("id ASC").
        Find(&entries).Error
    return entries, err
}
