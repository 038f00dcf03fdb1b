package controllers

import (
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "go.uber.org/zap"

    "github.com/ydelhoste/emargement_backend/internal/credential"
    "github.com/ydelhoste/emargement_backend/internal/fanout"
    "github.com/ydelhoste/emargement_backend/internal/models"
    "github.com/ydelhoste/emargement_backend/internal/signing"
    "github.com/ydelhoste/emargement_backend/internal/store"
)

type stubValidator struct {
    sheet *models.AttendanceSheet
    err   error
}

func (s *stubValidator) ValidateCode(_ context.Context, _ string) (*models.AttendanceSheet, error) {
    return s.sheet, s.err
}

func (s *stubValidator) ValidateToken(_ context.Context, _ string) (*models.AttendanceSheet, error) {
    return s.sheet, s.err
}

type stubStore struct {
    createErr error
    existing  *models.AttendanceSignature
}

func (s *stubStore) SheetByID(_ context.Context, _ string) (*models.AttendanceSheet, error) {
    return nil, nil
}

func (s *stubStore) CreateSignature(_ context.Context, _ *models.AttendanceSignature) error {
    return s.createErr
}

func (s *stubStore) SignatureFor(_ context.Context, _, _ string) (*models.AttendanceSignature, error) {
    if s.existing == nil {
        return nil, store.ErrSignatureNotFound
    }
    return s.existing, nil
}

func (s *stubStore) UpdateAbsenceReason(_ context.Context, _, _, _, _ string) (*models.AttendanceSignature, error) {
    return nil, nil
}

type stubRoster struct{ enrolled bool }

func (s *stubRoster) IsEnrolled(_ context.Context, _, _ string) (bool, error) {
    return s.enrolled, nil
}

type nopRecorder struct{}

func (nopRecorder) Record(_ context.Context, _, _, _ string, _ map[string]any) error { return nil }

type nopPublisher struct{}

func (nopPublisher) Publish(_ fanout.Event) {}

func signingRouter(credErr error, enrolled bool) *gin.Engine {
    gin.SetMode(gin.TestMode)

    sheet := &models.AttendanceSheet{
        ID:             "sheet-1",
        FormationID:    "formation-1",
        InstructorID:   "teacher-1",
        Status:         models.SheetOpen,
        OpenForSigning: true,
    }
    validator := &stubValidator{sheet: sheet, err: credErr}
    if credErr != nil {
        validator.sheet = nil
    }
    co := signing.NewCoordinator(&stubStore{}, validator, &stubRoster{enrolled: enrolled}, nopRecorder{}, nopPublisher{}, zap.NewNop())
    ctrl := &SigningController{Coordinator: co}

    r := gin.New()
    r.POST("/sign/code", func(c *gin.Context) {
        c.Set("user", models.User{UserID: "student-1", Role: models.RoleStudent})
    }, ctrl.SignViaCode)
    return r
}

func postCode(r *gin.Engine) *httptest.ResponseRecorder {
    w := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/sign/code", strings.NewReader(`{"code":"482913"}`))
    req.Header.Set("Content-Type", "application/json")
    r.ServeHTTP(w, req)
    return w
}

func TestSignViaCode_HTTPStatusMapping(t *testing.T) {
    cases := []struct {
        name       string
        credErr    error
        enrolled   bool
        wantStatus int
        wantKind   string
    }{
        {"success", nil, true, http.StatusCreated, ""},
        {"invalid code", credential.ErrInvalidCode, true, http.StatusUnauthorized, "invalid_credential"},
        {"expired code", credential.ErrExpiredCode, true, http.StatusGone, "expired_credential"},
        {"session closed", credential.ErrSessionClosed, true, http.StatusConflict, "session_closed"},
        {"not enrolled", nil, false, http.StatusForbidden, "not_enrolled"},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            r := signingRouter(tc.credErr, tc.enrolled)
            w := postCode(r)
            assert.Equal(t, tc.wantStatus, w.Code)
            if tc.wantKind != "" {
                assert.Contains(t, w.Body.String(), tc.wantKind)
            }
        })
    }
}

func TestSignViaCode_DuplicateIsConflict(t *testing.T) {
    gin.SetMode(gin.TestMode)
    sheet := &models.AttendanceSheet{
        ID:             "sheet-1",
        FormationID:    "formation-1",
        Status:         models.SheetOpen,
        OpenForSigning: true,
    }
    signedAt := time.Date(2024, 1, 10, 10, 12, 0, 0, time.UTC)
    prior := &models.AttendanceSignature{
        SheetID:       "sheet-1",
        ParticipantID: "student-1",
        Role:          models.RoleStudent,
        Present:       true,
        SignedAt:      signedAt,
    }
    co := signing.NewCoordinator(
        &stubStore{createErr: store.ErrDuplicateSignature, existing: prior},
        &stubValidator{sheet: sheet},
        &stubRoster{enrolled: true},
        nopRecorder{}, nopPublisher{}, zap.NewNop())
    ctrl := &SigningController{Coordinator: co}

    r := gin.New()
    r.POST("/sign/code", func(c *gin.Context) {
        c.Set("user", models.User{UserID: "student-1", Role: models.RoleStudent})
    }, ctrl.SignViaCode)

    w := postCode(r)
    assert.Equal(t, http.StatusConflict, w.Code)
    assert.Contains(t, w.Body.String(), "already_signed")

    // The conflict body carries the recorded signature, not just the kind.
    var body struct {
        Signature models.AttendanceSignature `json:"signature"`
    }
    require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
    assert.Equal(t, "student-1", body.Signature.ParticipantID)
    assert.True(t, body.Signature.Present)
    assert.True(t, body.Signature.SignedAt.Equal(signedAt))
}

func TestSignViaCode_RejectsMalformedCode(t *testing.T) {
    r := signingRouter(nil, true)
    w := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/sign/code", strings.NewReader(`{"code":"abc"}`))
    req.Header.Set("Content-Type", "application/json")
    r.ServeHTTP(w, req)
    assert.Equal(t, http.StatusBadRequest, w.Code)
}
