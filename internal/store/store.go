package store

import (
    "context"
    "errors"
    "time"

    "github.com/jackc/pgx/v5/pgconn"
    "gorm.io/gorm"

    "github.com/ydelhoste/emargement_backend/internal/models"
)

var (
    ErrSheetExists        = errors.New("a sheet already exists for this slot")
    ErrSheetNotFound      = errors.New("sheet not found")
    ErrDuplicateSignature = errors.New("a signature already exists for this participant")
    ErrSignatureNotFound  = errors.New("signature not found")
    ErrInvalidTransition  = errors.New("sheet status does not allow this transition")
)

// Store is the persistence layer for sheets, signatures and enrollments.
// Uniqueness is enforced by database constraints, never by read-then-write.
type Store struct {
    DB *gorm.DB
}

func New(db *gorm.DB) *Store {
    return &Store{DB: db}
}

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
    var pgErr *pgconn.PgError
    return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// CreateSheet persists a new sheet for a slot. The unique index on slot_id
// makes creation idempotent under concurrent callers: the second insert
// fails with ErrSheetExists.
func (s *Store) CreateSheet(ctx context.Context, sheet *models.AttendanceSheet) error {
    if sheet.Status == "" {
        sheet.Status = models.SheetPending
    }
    if err := s.DB.WithContext(ctx).Create(sheet).Error; err != nil {
        if isUniqueViolation(err) {
            return ErrSheetExists
        }
        return err
    }
    return nil
}

func (s *Store) SheetByID(ctx context.Context, id string) (*models.AttendanceSheet, error) {
    var sheet models.AttendanceSheet
    if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&sheet).Error; err != nil {
        if errors.Is(err, gorm.ErrRecordNotFound) {
            return nil, ErrSheetNotFound
        }
        return nil, err
    }
    return &sheet, nil
}

// SheetByCode resolves the sheet a code is bound to. A validated sheet may
// still hold a code that has since been issued to a live sheet (CodeInUse
// only guards non-validated holders), so live bindings win the lookup; the
// validated sheet is returned only when no live sheet holds the code.
func (s *Store) SheetByCode(ctx context.Context, code string) (*models.AttendanceSheet, error) {
    var sheet models.AttendanceSheet
    if err := s.DB.WithContext(ctx).
        Where("numeric_code = ?", code).
        Order("(status = 'validated')").
        First(&sheet).Error; err != nil {
        if errors.Is(err, gorm.ErrRecordNotFound) {
            return nil, ErrSheetNotFound
        }
        return nil, err
    }
    return &sheet, nil
}

func (s *Store) SheetByTokenHash(ctx context.Context, hash string) (*models.AttendanceSheet, error) {
    var sheet models.AttendanceSheet
    if err := s.DB.WithContext(ctx).Where("link_token_hash = ?", hash).First(&sheet).Error; err != nil {
        if errors.Is(err, gorm.ErrRecordNotFound) {
            return nil, ErrSheetNotFound
        }
        return nil, err
    }
    return &sheet, nil
}

// CodeInUse reports whether code is currently bound to any non-validated
// sheet. Used by the issuer to reject collisions across open sheets.
func (s *Store) CodeInUse(ctx context.Context, code string) (bool, error) {
    var count int64
    err := s.DB.WithContext(ctx).Model(&models.AttendanceSheet{}).
        Where("numeric_code = ? AND status <> ?", code, models.SheetValidated).
        Count(&count).Error
    if err != nil {
        return false, err
    }
    return count > 0, nil
}

// SetCode binds code to the sheet, replacing any prior code.
func (s *Store) SetCode(ctx context.Context, sheetID, code string) error {
    res := s.DB.WithContext(ctx).Model(&models.AttendanceSheet{}).
        Where("id = ?", sheetID).
        Update("numeric_code", code)
    if res.Error != nil {
        return res.Error
    }
    if res.RowsAffected == 0 {
        return ErrSheetNotFound
    }
    return nil
}

// SetToken binds a hashed link token to the sheet, replacing any prior token.
func (s *Store) SetToken(ctx context.Context, sheetID, tokenHash string, expiresAt, sentAt time.Time) error {
    res := s.DB.WithContext(ctx).Model(&models.AttendanceSheet{}).
        Where("id = ?", sheetID).
        Updates(map[string]any{
            "link_token_hash": tokenHash,
            "link_expires_at": expiresAt,
            "link_sent_at":    sentAt,
        })
    if res.Error != nil {
        return res.Error
    }
    if res.RowsAffected == 0 {
        return ErrSheetNotFound
    }
    return nil
}

// CreateSignature inserts the signature row and, on the first signature of a
// pending sheet, moves the sheet to open. The insert and the transition share
// one transaction; the composite unique index turns concurrent duplicates
// into ErrDuplicateSignature.
func (s *Store) CreateSignature(ctx context.Context, sig *models.AttendanceSignature) error {
    err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
        if err := tx.Create(sig).Error; err != nil {
            return err
        }
        now := time.Now().UTC()
        return tx.Model(&models.AttendanceSheet{}).
            Where("id = ? AND status = ?", sig.SheetID, models.SheetPending).
            Updates(map[string]any{"status": models.SheetOpen, "opened_at": now}).Error
    })
    if err != nil {
        if isUniqueViolation(err) {
            return ErrDuplicateSignature
        }
        return err
    }
    return nil
}

func (s *Store) SignatureFor(ctx context.Context, sheetID, participantID string) (*models.AttendanceSignature, error) {
    var sig models.AttendanceSignature
    err := s.DB.WithContext(ctx).
        Where("sheet_id = ? AND participant_id = ?", sheetID, participantID).
        First(&sig).Error
    if err != nil {
        if errors.Is(err, gorm.ErrRecordNotFound) {
            return nil, ErrSignatureNotFound
        }
        return nil, err
    }
    return &sig, nil
}

func (s *Store) SignaturesForSheet(ctx context.Context, sheetID string) ([]models.AttendanceSignature, error) {
    var sigs []models.AttendanceSignature
    err := s.DB.WithContext(ctx).
        Where("sheet_id = ?", sheetID).
        Order("signed_at ASC").
        Find(&sigs).Error
    return sigs, err
}

// UpdateAbsenceReason is the only permitted post-creation mutation, and only
// for present=false rows.
func (s *Store) UpdateAbsenceReason(ctx context.Context, sheetID, participantID, reason, reasonKind string) (*models.AttendanceSignature, error) {
    var sig models.AttendanceSignature
    err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
        if err := tx.Where("sheet_id = ? AND participant_id = ?", sheetID, participantID).
            First(&sig).Error; err != nil {
            if errors.Is(err, gorm.ErrRecordNotFound) {
                return ErrSignatureNotFound
            }
            return err
        }
        if sig.Present {
            return ErrDuplicateSignature
        }
        sig.AbsenceReason = &reason
        sig.AbsenceReasonKind = &reasonKind
        return tx.Save(&sig).Error
    })
    if err != nil {
        return nil, err
    }
    return &sig, nil
}

// CloseSheet ends the signing phase. Closing an already-closed sheet is a
// no-op; the current sheet state is returned either way.
func (s *Store) CloseSheet(ctx context.Context, sheetID string) (*models.AttendanceSheet, error) {
    now := time.Now().UTC()
    err := s.DB.WithContext(ctx).Model(&models.AttendanceSheet{}).
        Where("id = ? AND status IN ?", sheetID, []string{models.SheetPending, models.SheetOpen}).
        Updates(map[string]any{
            "is_open_for_signing": false,
            "closed_at":           now,
            "status":              models.SheetAwaitingValidation,
        }).Error
    if err != nil {
        return nil, err
    }
    return s.SheetByID(ctx, sheetID)
}

// ValidateSheet is the terminal transition. Allowed from awaiting_validation,
// or directly from open to support late validation.
func (s *Store) ValidateSheet(ctx context.Context, sheetID, adminID string) (*models.AttendanceSheet, error) {
    now := time.Now().UTC()
    updates := map[string]any{
        "status":              models.SheetValidated,
        "is_open_for_signing": false,
        "validated_at":        now,
        "validated_by":        adminID,
    }
    res := s.DB.WithContext(ctx).Model(&models.AttendanceSheet{}).
        Where("id = ? AND status IN ?", sheetID,
            []string{models.SheetOpen, models.SheetAwaitingValidation}).
        Updates(updates)
    if res.Error != nil {
        return nil, res.Error
    }
    if res.RowsAffected == 0 {
        if _, err := s.SheetByID(ctx, sheetID); err != nil {
            return nil, err
        }
        return nil, ErrInvalidTransition
    }
    return s.SheetByID(ctx, sheetID)
}

// IsEnrolled reports whether the participant is an enrolled student of the
// formation.
func (s *Store) IsEnrolled(ctx context.Context, participantID, formationID string) (bool, error) {
    var count int64
    err := s.DB.WithContext(ctx).Model(&models.Enrollment{}).
        Where("user_id_ref = ? AND formation_id_ref = ?", participantID, formationID).
        Count(&count).Error
    if err != nil {
        return false, err
    }
    return count > 0, nil
}
