package signing

import (
    "context"
    "errors"
    "time"

    "go.uber.org/zap"

    "github.com/ydelhoste/emargement_backend/internal/credential"
    "github.com/ydelhoste/emargement_backend/internal/fanout"
    "github.com/ydelhoste/emargement_backend/internal/models"
    "github.com/ydelhoste/emargement_backend/internal/store"
)

// Coordinator-level errors. Credential errors pass through from the issuer
// (credential.ErrInvalidCode and friends); these cover eligibility and
// conflicts.
var (
    ErrNotEnrolled   = errors.New("participant is not enrolled in this formation")
    ErrAlreadySigned = errors.New("participant has already signed this sheet")
)

// SignatureStore is the slice of the session store the coordinator needs.
type SignatureStore interface {
    SheetByID(ctx context.Context, id string) (*models.AttendanceSheet, error)
    CreateSignature(ctx context.Context, sig *models.AttendanceSignature) error
    SignatureFor(ctx context.Context, sheetID, participantID string) (*models.AttendanceSignature, error)
    UpdateAbsenceReason(ctx context.Context, sheetID, participantID, reason, reasonKind string) (*models.AttendanceSignature, error)
}

// CredentialValidator resolves credentials to sheets.
type CredentialValidator interface {
    ValidateCode(ctx context.Context, code string) (*models.AttendanceSheet, error)
    ValidateToken(ctx context.Context, token string) (*models.AttendanceSheet, error)
}

// Roster answers enrollment checks; backed by the enrollment table in
// production, an external collaborator from the protocol's point of view.
type Roster interface {
    IsEnrolled(ctx context.Context, participantID, formationID string) (bool, error)
}

// Recorder appends audit entries; failures are swallowed after logging.
type Recorder interface {
    Record(ctx context.Context, sheetID, actorID, action string, meta map[string]any) error
}

// Publisher fans signature events out to live viewers.
type Publisher interface {
    Publish(event fanout.Event)
}

// Coordinator is the only path by which a signature row is created. It
// validates the credential, checks eligibility, writes exactly once through
// the store's unique constraint, then audits and publishes.
type Coordinator struct {
    Store       SignatureStore
    Credentials CredentialValidator
    Roster      Roster
    Audit       Recorder
    Bus         Publisher
    Log         *zap.Logger

    Now func() time.Time
}

func NewCoordinator(st SignatureStore, creds CredentialValidator, roster Roster, rec Recorder, bus Publisher, log *zap.Logger) *Coordinator {
    return &Coordinator{
        Store:       st,
        Credentials: creds,
        Roster:      roster,
        Audit:       rec,
        Bus:         bus,
        Log:         log,
        Now:         time.Now,
    }
}

func (co *Coordinator) now() time.Time {
    if co.Now != nil {
        return co.Now()
    }
    return time.Now()
}

// SignViaCode records a present signature authenticated by the rotating
// numeric code (the in-room QR path).
func (co *Coordinator) SignViaCode(ctx context.Context, code, participantID string) (*models.AttendanceSignature, error) {
    sheet, err := co.Credentials.ValidateCode(ctx, code)
    if err != nil {
        return nil, err
    }
    return co.sign(ctx, sheet, participantID, nil, models.AuditQRScan)
}

// SignViaToken records a present signature authenticated by the opaque link
// token (the remote/async path). The sheet openness is re-checked here: a
// token outlives the session window, the signing right does not outlive a
// closed sheet.
func (co *Coordinator) SignViaToken(ctx context.Context, token, participantID string, signatureImage string) (*models.AttendanceSignature, error) {
    sheet, err := co.Credentials.ValidateToken(ctx, token)
    if err != nil {
        return nil, err
    }
    if sheet.Status == models.SheetValidated || !sheet.OpenForSigning {
        return nil, credential.ErrSessionClosed
    }
    var image *string
    if signatureImage != "" {
        image = &signatureImage
    }
    return co.sign(ctx, sheet, participantID, image, models.AuditLinkSign)
}

func (co *Coordinator) sign(ctx context.Context, sheet *models.AttendanceSheet, participantID string, image *string, action string) (*models.AttendanceSignature, error) {
    role, err := co.roleOn(ctx, sheet, participantID)
    if err != nil {
        return nil, err
    }

    sig := &models.AttendanceSignature{
        SheetID:        sheet.ID,
        ParticipantID:  participantID,
        Role:           role,
        Present:        true,
        SignatureImage: image,
        SignedAt:       co.now().UTC(),
    }
    if err := co.Store.CreateSignature(ctx, sig); err != nil {
        if errors.Is(err, store.ErrDuplicateSignature) {
            // Retried or double-tapped request; not a failure, the row is
            // already there. Return it so callers can show who signed when.
            return co.existing(ctx, sheet.ID, participantID)
        }
        return nil, err
    }

    co.record(ctx, sheet.ID, participantID, action, map[string]any{"role": role})
    co.Bus.Publish(fanout.Event{
        SheetID:       sheet.ID,
        ParticipantID: participantID,
        Present:       true,
        SignedAt:      sig.SignedAt,
    })
    return sig, nil
}

// MarkAbsent is the administrative absence path. It bypasses credential
// validation but still refuses to touch a validated sheet. On an existing
// absence row only the reason is updated; a present row is never flipped.
func (co *Coordinator) MarkAbsent(ctx context.Context, sheetID, participantID, reason, reasonKind, actingAdminID string) (*models.AttendanceSignature, error) {
    sheet, err := co.Store.SheetByID(ctx, sheetID)
    if err != nil {
        return nil, err
    }
    if sheet.Status == models.SheetValidated {
        return nil, credential.ErrSessionClosed
    }
    role, err := co.roleOn(ctx, sheet, participantID)
    if err != nil {
        return nil, err
    }

    sig := &models.AttendanceSignature{
        SheetID:           sheet.ID,
        ParticipantID:     participantID,
        Role:              role,
        Present:           false,
        SignedAt:          co.now().UTC(),
        AbsenceReason:     &reason,
        AbsenceReasonKind: &reasonKind,
    }
    err = co.Store.CreateSignature(ctx, sig)
    if errors.Is(err, store.ErrDuplicateSignature) {
        sig, err = co.Store.UpdateAbsenceReason(ctx, sheetID, participantID, reason, reasonKind)
        if errors.Is(err, store.ErrDuplicateSignature) {
            return co.existing(ctx, sheetID, participantID)
        }
    }
    if err != nil {
        return nil, err
    }

    co.record(ctx, sheet.ID, actingAdminID, models.AuditManualAbsence, map[string]any{
        "participant_id": participantID,
        "reason_kind":    reasonKind,
    })
    co.Bus.Publish(fanout.Event{
        SheetID:       sheet.ID,
        ParticipantID: participantID,
        Present:       false,
        SignedAt:      sig.SignedAt,
    })
    return sig, nil
}

// existing pairs ErrAlreadySigned with the row that won, so responses can
// carry the recorded state. Losing the lookup race leaves the row out but
// keeps the error.
func (co *Coordinator) existing(ctx context.Context, sheetID, participantID string) (*models.AttendanceSignature, error) {
    prior, err := co.Store.SignatureFor(ctx, sheetID, participantID)
    if err != nil {
        return nil, ErrAlreadySigned
    }
    return prior, ErrAlreadySigned
}

func (co *Coordinator) roleOn(ctx context.Context, sheet *models.AttendanceSheet, participantID string) (string, error) {
    if participantID == sheet.InstructorID {
        return models.RoleInstructor, nil
    }
    enrolled, err := co.Roster.IsEnrolled(ctx, participantID, sheet.FormationID)
    if err != nil {
        return "", err
    }
    if !enrolled {
        return "", ErrNotEnrolled
    }
    return models.RoleStudent, nil
}

func (co *Coordinator) record(ctx context.Context, sheetID, actorID, action string, meta map[string]any) {
    if err := co.Audit.Record(ctx, sheetID, actorID, action, meta); err != nil {
        co.Log.Warn("audit write failed",
            zap.String("sheet_id", sheetID),
            zap.String("action", action),
            zap.Error(err))
    }
}
