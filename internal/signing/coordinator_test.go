package signing

import (
    "context"
    "errors"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "go.uber.org/zap"

    "github.com/ydelhoste/emargement_backend/internal/credential"
    "github.com/ydelhoste/emargement_backend/internal/fanout"
    "github.com/ydelhoste/emargement_backend/internal/models"
    "github.com/ydelhoste/emargement_backend/internal/store"
)

// mockStore enforces (sheet, participant) uniqueness behind a mutex, the
// in-memory stand-in for the database unique index.
type mockStore struct {
    mu     sync.Mutex
    sheets map[string]*models.AttendanceSheet
    sigs   map[string]*models.AttendanceSignature
}

func newMockStore() *mockStore {
    return &mockStore{
        sheets: make(map[string]*models.AttendanceSheet),
        sigs:   make(map[string]*models.AttendanceSignature),
    }
}

func sigKey(sheetID, participantID string) string {
    return sheetID + "/" + participantID
}

func (m *mockStore) SheetByID(_ context.Context, id string) (*models.AttendanceSheet, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    if s, ok := m.sheets[id]; ok {
        return s, nil
    }
    return nil, store.ErrSheetNotFound
}

func (m *mockStore) CreateSignature(_ context.Context, sig *models.AttendanceSignature) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    key := sigKey(sig.SheetID, sig.ParticipantID)
    if _, exists := m.sigs[key]; exists {
        return store.ErrDuplicateSignature
    }
    m.sigs[key] = sig
    if sheet, ok := m.sheets[sig.SheetID]; ok && sheet.Status == models.SheetPending {
        sheet.Status = models.SheetOpen
    }
    return nil
}

func (m *mockStore) SignatureFor(_ context.Context, sheetID, participantID string) (*models.AttendanceSignature, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    if s, ok := m.sigs[sigKey(sheetID, participantID)]; ok {
        return s, nil
    }
    return nil, store.ErrSignatureNotFound
}

func (m *mockStore) UpdateAbsenceReason(_ context.Context, sheetID, participantID, reason, reasonKind string) (*models.AttendanceSignature, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    sig, ok := m.sigs[sigKey(sheetID, participantID)]
    if !ok {
        return nil, store.ErrSignatureNotFound
    }
    if sig.Present {
        return nil, store.ErrDuplicateSignature
    }
    sig.AbsenceReason = &reason
    sig.AbsenceReasonKind = &reasonKind
    return sig, nil
}

type mockValidator struct {
    codeSheet  *models.AttendanceSheet
    codeErr    error
    tokenSheet *models.AttendanceSheet
    tokenErr   error
}

func (m *mockValidator) ValidateCode(_ context.Context, _ string) (*models.AttendanceSheet, error) {
    return m.codeSheet, m.codeErr
}

func (m *mockValidator) ValidateToken(_ context.Context, _ string) (*models.AttendanceSheet, error) {
    return m.tokenSheet, m.tokenErr
}

type mockRoster struct {
    enrolled map[string]bool
}

func (m *mockRoster) IsEnrolled(_ context.Context, participantID, _ string) (bool, error) {
    return m.enrolled[participantID], nil
}

type mockRecorder struct {
    mu      sync.Mutex
    entries []string
    fail    bool
}

func (m *mockRecorder) Record(_ context.Context, _, _, action string, _ map[string]any) error {
    if m.fail {
        return errors.New("audit storage unavailable")
    }
    m.mu.Lock()
    defer m.mu.Unlock()
    m.entries = append(m.entries, action)
    return nil
}

type mockPublisher struct {
    mu     sync.Mutex
    events []fanout.Event
}

func (m *mockPublisher) Publish(event fanout.Event) {
    m.mu.Lock()
    defer m.mu.Unlock()
    m.events = append(m.events, event)
}

func (m *mockPublisher) count() int {
    m.mu.Lock()
    defer m.mu.Unlock()
    return len(m.events)
}

func testSheet() *models.AttendanceSheet {
    return &models.AttendanceSheet{
        ID:             "sheet-1",
        SlotID:         "slot-1",
        FormationID:    "formation-1",
        InstructorID:   "teacher-1",
        StartsAt:       time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC),
        EndsAt:         time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC),
        Status:         models.SheetPending,
        OpenForSigning: true,
    }
}

type fixture struct {
    co     *Coordinator
    store  *mockStore
    creds  *mockValidator
    roster *mockRoster
    audit  *mockRecorder
    bus    *mockPublisher
}

func setup() *fixture {
    st := newMockStore()
    sheet := testSheet()
    st.sheets[sheet.ID] = sheet
    creds := &mockValidator{codeSheet: sheet, tokenSheet: sheet}
    roster := &mockRoster{enrolled: map[string]bool{"student-1": true, "student-2": true}}
    rec := &mockRecorder{}
    bus := &mockPublisher{}
    co := NewCoordinator(st, creds, roster, rec, bus, zap.NewNop())
    return &fixture{co: co, store: st, creds: creds, roster: roster, audit: rec, bus: bus}
}

func TestSignViaCode_Success(t *testing.T) {
    f := setup()
    sig, err := f.co.SignViaCode(context.Background(), "482913", "student-1")
    require.NoError(t, err)
    assert.True(t, sig.Present)
    assert.Equal(t, models.RoleStudent, sig.Role)
    assert.Nil(t, sig.AbsenceReason)
    assert.Equal(t, []string{models.AuditQRScan}, f.audit.entries)
    require.Equal(t, 1, f.bus.count())
    assert.Equal(t, "student-1", f.bus.events[0].ParticipantID)
    // First signature opens a pending sheet.
    assert.Equal(t, models.SheetOpen, f.store.sheets["sheet-1"].Status)
}

func TestSignViaCode_RetrySurfacesAlreadySigned(t *testing.T) {
    f := setup()
    first, err := f.co.SignViaCode(context.Background(), "482913", "student-1")
    require.NoError(t, err)

    prior, err := f.co.SignViaCode(context.Background(), "482913", "student-1")
    assert.ErrorIs(t, err, ErrAlreadySigned)
    // The conflict carries the row that won, so clients can show who signed
    // and when.
    require.NotNil(t, prior)
    assert.True(t, prior.SignedAt.Equal(first.SignedAt))
    assert.Equal(t, "student-1", prior.ParticipantID)
    // The duplicate attempt publishes nothing.
    assert.Equal(t, 1, f.bus.count())
    assert.Len(t, f.store.sigs, 1)
}

func TestSignViaCode_ConcurrentDuplicates(t *testing.T) {
    f := setup()
    const n = 16

    var wg sync.WaitGroup
    errs := make([]error, n)
    for i := 0; i < n; i++ {
        wg.Add(1)
        go func(i int) {
            defer wg.Done()
            _, errs[i] = f.co.SignViaCode(context.Background(), "482913", "student-1")
        }(i)
    }
    wg.Wait()

    var successes, conflicts int
    for _, err := range errs {
        switch {
        case err == nil:
            successes++
        case errors.Is(err, ErrAlreadySigned):
            conflicts++
        default:
            t.Fatalf("unexpected error: %v", err)
        }
    }
    assert.Equal(t, 1, successes)
    assert.Equal(t, n-1, conflicts)
    assert.Len(t, f.store.sigs, 1)
    assert.Equal(t, 1, f.bus.count())
}

func TestSignViaCode_NotEnrolled(t *testing.T) {
    f := setup()
    _, err := f.co.SignViaCode(context.Background(), "482913", "stranger")
    assert.ErrorIs(t, err, ErrNotEnrolled)
    assert.Empty(t, f.store.sigs)
    assert.Equal(t, 0, f.bus.count())
}

func TestSignViaCode_InstructorSignsOwnSheet(t *testing.T) {
    f := setup()
    sig, err := f.co.SignViaCode(context.Background(), "482913", "teacher-1")
    require.NoError(t, err)
    assert.Equal(t, models.RoleInstructor, sig.Role)
}

func TestSignViaCode_CredentialErrorsPassThrough(t *testing.T) {
    f := setup()
    f.creds.codeSheet = nil
    f.creds.codeErr = credential.ErrExpiredCode
    _, err := f.co.SignViaCode(context.Background(), "482913", "student-1")
    assert.ErrorIs(t, err, credential.ErrExpiredCode)
}

func TestSignViaToken_Success(t *testing.T) {
    f := setup()
    sig, err := f.co.SignViaToken(context.Background(), "tok", "student-1", "img-ref-1")
    require.NoError(t, err)
    require.NotNil(t, sig.SignatureImage)
    assert.Equal(t, "img-ref-1", *sig.SignatureImage)
    assert.Equal(t, []string{models.AuditLinkSign}, f.audit.entries)
}

func TestSignViaToken_ClosedSheet(t *testing.T) {
    f := setup()
    f.creds.tokenSheet.OpenForSigning = false
    f.creds.tokenSheet.Status = models.SheetAwaitingValidation
    _, err := f.co.SignViaToken(context.Background(), "tok", "student-1", "")
    assert.ErrorIs(t, err, credential.ErrSessionClosed)
}

func TestSignViaToken_ValidatedSheetRejected(t *testing.T) {
    f := setup()
    f.creds.tokenSheet.Status = models.SheetValidated
    f.creds.tokenSheet.OpenForSigning = false
    _, err := f.co.SignViaToken(context.Background(), "tok", "student-1", "")
    assert.ErrorIs(t, err, credential.ErrSessionClosed)
}

func TestMarkAbsent_CreatesAbsenceRow(t *testing.T) {
    f := setup()
    sig, err := f.co.MarkAbsent(context.Background(), "sheet-1", "student-1", "illness", models.AbsenceOther, "admin-1")
    require.NoError(t, err)
    assert.False(t, sig.Present)
    require.NotNil(t, sig.AbsenceReason)
    assert.Equal(t, "illness", *sig.AbsenceReason)
    assert.Equal(t, []string{models.AuditManualAbsence}, f.audit.entries)
    require.Equal(t, 1, f.bus.count())
    assert.False(t, f.bus.events[0].Present)
}

func TestMarkAbsent_UpdatesExistingAbsenceReason(t *testing.T) {
    f := setup()
    _, err := f.co.MarkAbsent(context.Background(), "sheet-1", "student-1", "illness", models.AbsenceOther, "admin-1")
    require.NoError(t, err)

    sig, err := f.co.MarkAbsent(context.Background(), "sheet-1", "student-1", "medical appointment", models.AbsenceJustified, "admin-1")
    require.NoError(t, err)
    assert.Equal(t, "medical appointment", *sig.AbsenceReason)
    assert.Equal(t, models.AbsenceJustified, *sig.AbsenceReasonKind)
    assert.Len(t, f.store.sigs, 1)
}

func TestMarkAbsent_PresentRowNeverGainsAbsence(t *testing.T) {
    f := setup()
    _, err := f.co.SignViaCode(context.Background(), "482913", "student-1")
    require.NoError(t, err)

    prior, err := f.co.MarkAbsent(context.Background(), "sheet-1", "student-1", "illness", models.AbsenceOther, "admin-1")
    assert.ErrorIs(t, err, ErrAlreadySigned)
    require.NotNil(t, prior)
    assert.True(t, prior.Present)

    sig := f.store.sigs["sheet-1/student-1"]
    assert.True(t, sig.Present)
    assert.Nil(t, sig.AbsenceReason)
}

func TestMarkAbsent_ValidatedSheetRejected(t *testing.T) {
    f := setup()
    f.store.sheets["sheet-1"].Status = models.SheetValidated
    _, err := f.co.MarkAbsent(context.Background(), "sheet-1", "student-1", "illness", models.AbsenceOther, "admin-1")
    assert.ErrorIs(t, err, credential.ErrSessionClosed)
}

func TestAuditFailureDoesNotFailSigning(t *testing.T) {
    f := setup()
    f.audit.fail = true
    sig, err := f.co.SignViaCode(context.Background(), "482913", "student-1")
    require.NoError(t, err)
    assert.True(t, sig.Present)
    assert.Equal(t, 1, f.bus.count())
}
