package credential

import (
    "context"
    "errors"
    "time"

    "go.uber.org/zap"

    "github.com/ydelhoste/emargement_backend/internal/models"
    "github.com/ydelhoste/emargement_backend/internal/store"
    "github.com/ydelhoste/emargement_backend/internal/utils"
)

// Credential validation errors. Each kind maps to a distinct user-facing
// message; callers branch with errors.Is.
var (
    ErrInvalidCode   = errors.New("unknown signing code")
    ErrExpiredCode   = errors.New("signing code is outside the session window")
    ErrInvalidToken  = errors.New("unknown signing link")
    ErrExpiredToken  = errors.New("signing link has expired")
    ErrSessionClosed = errors.New("sheet is no longer open for signing")
)

const (
    codeLength     = 6
    tokenBytes     = 32 // 256 bits, comfortably past the 128-bit floor
    maxCodeRetries = 5
)

// SheetStore is the slice of the session store the issuer needs.
type SheetStore interface {
    SheetByID(ctx context.Context, id string) (*models.AttendanceSheet, error)
    SheetByCode(ctx context.Context, code string) (*models.AttendanceSheet, error)
    SheetByTokenHash(ctx context.Context, hash string) (*models.AttendanceSheet, error)
    CodeInUse(ctx context.Context, code string) (bool, error)
    SetCode(ctx context.Context, sheetID, code string) error
    SetToken(ctx context.Context, sheetID, tokenHash string, expiresAt, sentAt time.Time) error
}

// Policy tunes credential validity. The numeric code follows the session
// window with a grace margin on each side; the link token carries its own
// fixed TTL independent of the window.
type Policy struct {
    GraceBefore time.Duration
    GraceAfter  time.Duration
    TokenTTL    time.Duration
}

func DefaultPolicy() Policy {
    return Policy{
        GraceBefore: 15 * time.Minute,
        GraceAfter:  15 * time.Minute,
        TokenTTL:    24 * time.Hour,
    }
}

// Issuer mints and validates the two credential kinds for a sheet. Issuing
// replaces the prior credential of the same kind, never appends.
type Issuer struct {
    Store  SheetStore
    Policy Policy
    Log    *zap.Logger

    // Now is swappable for expiry tests; defaults to time.Now.
    Now func() time.Time
}

func NewIssuer(st SheetStore, policy Policy, log *zap.Logger) *Issuer {
    return &Issuer{Store: st, Policy: policy, Log: log, Now: time.Now}
}

func (i *Issuer) now() time.Time {
    if i.Now != nil {
        return i.Now()
    }
    return time.Now()
}

// IssueCode generates a fresh 6-digit code for the sheet. Collisions with
// codes held by other live sheets are checked, not assumed rare: the code is
// regenerated up to maxCodeRetries times before giving up.
func (i *Issuer) IssueCode(ctx context.Context, sheetID string) (string, error) {
    sheet, err := i.Store.SheetByID(ctx, sheetID)
    if err != nil {
        return "", err
    }
    if sheet.Status == models.SheetValidated || !sheet.OpenForSigning {
        return "", ErrSessionClosed
    }

    var lastErr error
    for attempt := 0; attempt < maxCodeRetries; attempt++ {
        code, err := utils.GenerateDigits(codeLength)
        if err != nil {
            return "", err
        }
        inUse, err := i.Store.CodeInUse(ctx, code)
        if err != nil {
            return "", err
        }
        if inUse {
            lastErr = errors.New("code collision, regenerating")
            i.Log.Debug("numeric code collision", zap.String("sheet_id", sheetID))
            continue
        }
        if err := i.Store.SetCode(ctx, sheetID, code); err != nil {
            return "", err
        }
        return code, nil
    }
    return "", lastErr
}

// IssueToken generates a fresh opaque link token. Only the SHA-256 hash is
// persisted; the clear token leaves the process exactly once, in the return
// value.
func (i *Issuer) IssueToken(ctx context.Context, sheetID string) (string, time.Time, error) {
    sheet, err := i.Store.SheetByID(ctx, sheetID)
    if err != nil {
        return "", time.Time{}, err
    }
    if sheet.Status == models.SheetValidated || !sheet.OpenForSigning {
        return "", time.Time{}, ErrSessionClosed
    }

    token, err := utils.GenerateToken(tokenBytes)
    if err != nil {
        return "", time.Time{}, err
    }
    now := i.now().UTC()
    expiresAt := now.Add(i.Policy.TokenTTL)
    if err := i.Store.SetToken(ctx, sheetID, utils.SHA256Hex(token), expiresAt, now); err != nil {
        return "", time.Time{}, err
    }
    return token, expiresAt, nil
}

// ValidateCode resolves the sheet bound to code. A reissued code invalidates
// the prior one immediately because the sheet holds a single code column.
func (i *Issuer) ValidateCode(ctx context.Context, code string) (*models.AttendanceSheet, error) {
    sheet, err := i.Store.SheetByCode(ctx, code)
    if err != nil {
        if errors.Is(err, store.ErrSheetNotFound) {
            return nil, ErrInvalidCode
        }
        return nil, err
    }
    if sheet.Status == models.SheetValidated || !sheet.OpenForSigning {
        return nil, ErrSessionClosed
    }
    now := i.now()
    if now.Before(sheet.StartsAt.Add(-i.Policy.GraceBefore)) || now.After(sheet.EndsAt.Add(i.Policy.GraceAfter)) {
        return nil, ErrExpiredCode
    }
    return sheet, nil
}

// ValidateToken resolves the sheet bound to token. Validity depends only on
// the token TTL, not on the session window.
func (i *Issuer) ValidateToken(ctx context.Context, token string) (*models.AttendanceSheet, error) {
    sheet, err := i.Store.SheetByTokenHash(ctx, utils.SHA256Hex(token))
    if err != nil {
        if errors.Is(err, store.ErrSheetNotFound) {
            return nil, ErrInvalidToken
        }
        return nil, err
    }
    if sheet.LinkExpiresAt == nil || i.now().After(*sheet.LinkExpiresAt) {
        return nil, ErrExpiredToken
    }
    return sheet, nil
}
