package controllers

import (
    "errors"
    "net/http"

    "github.com/gin-gonic/gin"

    "github.com/ydelhoste/emargement_backend/internal/credential"
    "github.com/ydelhoste/emargement_backend/internal/models"
    "github.com/ydelhoste/emargement_backend/internal/signing"
    "github.com/ydelhoste/emargement_backend/internal/store"
)

type SigningController struct {
    Coordinator *signing.Coordinator
}

type signCodeRequest struct {
    Code string `json:"code" binding:"required,len=6,numeric"`
}

type signTokenRequest struct {
    Token          string `json:"token" binding:"required"`
    SignatureImage string `json:"signature_image"`
}

type markAbsentRequest struct {
    ParticipantID string `json:"participant_id" binding:"required"`
    Reason        string `json:"reason" binding:"required"`
    ReasonKind    string `json:"reason_kind" binding:"required"`
}

// SignViaCode handles the in-room QR path; the participant identity comes
// from the authenticated session, never from the request body.
func (sc *SigningController) SignViaCode(c *gin.Context) {
    user := c.MustGet("user").(models.User)
    var req signCodeRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    sig, err := sc.Coordinator.SignViaCode(c.Request.Context(), req.Code, user.UserID)
    if err != nil {
        sc.renderSigningError(c, sig, err)
        return
    }
    c.JSON(http.StatusCreated, sig)
}

// SignViaToken handles the remote link path.
func (sc *SigningController) SignViaToken(c *gin.Context) {
    user := c.MustGet("user").(models.User)
    var req signTokenRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    sig, err := sc.Coordinator.SignViaToken(c.Request.Context(), req.Token, user.UserID, req.SignatureImage)
    if err != nil {
        sc.renderSigningError(c, sig, err)
        return
    }
    c.JSON(http.StatusCreated, sig)
}

// MarkAbsent is the administrative absence annotation.
func (sc *SigningController) MarkAbsent(c *gin.Context) {
    admin := c.MustGet("user").(models.User)
    var req markAbsentRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    if !models.IsValidAbsenceKind(req.ReasonKind) {
        c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reason_kind"})
        return
    }
    sig, err := sc.Coordinator.MarkAbsent(c.Request.Context(),
        c.Param("id"), req.ParticipantID, req.Reason, req.ReasonKind, admin.UserID)
    if err != nil {
        sc.renderSigningError(c, sig, err)
        return
    }
    c.JSON(http.StatusCreated, sig)
}

// renderSigningError maps the coordinator's error taxonomy onto HTTP. Each
// kind keeps a distinct message so clients can offer the right affordance:
// credential errors are retryable with a fresh credential, NotEnrolled is
// not, AlreadySigned carries the recorded signature so the client can show
// who signed and when.
func (sc *SigningController) renderSigningError(c *gin.Context, prior *models.AttendanceSignature, err error) {
    switch {
    case errors.Is(err, credential.ErrInvalidCode), errors.Is(err, credential.ErrInvalidToken):
        c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "kind": "invalid_credential"})
    case errors.Is(err, credential.ErrExpiredCode), errors.Is(err, credential.ErrExpiredToken):
        c.JSON(http.StatusGone, gin.H{"error": err.Error(), "kind": "expired_credential"})
    case errors.Is(err, credential.ErrSessionClosed):
        c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "kind": "session_closed"})
    case errors.Is(err, signing.ErrNotEnrolled):
        c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "kind": "not_enrolled"})
    case errors.Is(err, signing.ErrAlreadySigned):
        body := gin.H{"error": err.Error(), "kind": "already_signed"}
        if prior != nil {
            body["signature"] = prior
        }
        c.JSON(http.StatusConflict, body)
    case errors.Is(err, store.ErrSheetNotFound):
        c.JSON(http.StatusNotFound, gin.H{"error": "sheet not found"})
    default:
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
    }
}
