package controllers

import (
    "errors"
    "net/http"

    "github.com/gin-gonic/gin"

    "github.com/ydelhoste/emargement_backend/internal/credential"
    "github.com/ydelhoste/emargement_backend/internal/models"
    "github.com/ydelhoste/emargement_backend/internal/store"
)

type CredentialController struct {
    Issuer *credential.Issuer
    Store  *store.Store
}

func (cc *CredentialController) ownsSheet(c *gin.Context) (*models.AttendanceSheet, bool) {
    user := c.MustGet("user").(models.User)
    sheet, err := cc.Store.SheetByID(c.Request.Context(), c.Param("id"))
    if err != nil {
        c.JSON(http.StatusNotFound, gin.H{"error": "sheet not found"})
        return nil, false
    }
    if user.Role == models.RoleInstructor && sheet.InstructorID != user.UserID {
        c.JSON(http.StatusForbidden, gin.H{"error": "not your sheet"})
        return nil, false
    }
    return sheet, true
}

// IssueCode rotates the sheet's 6-digit code. The previous code stops
// validating the moment this returns.
func (cc *CredentialController) IssueCode(c *gin.Context) {
    sheet, ok := cc.ownsSheet(c)
    if !ok {
        return
    }
    code, err := cc.Issuer.IssueCode(c.Request.Context(), sheet.ID)
    if err != nil {
        if errors.Is(err, credential.ErrSessionClosed) {
            c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
            return
        }
        c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate code"})
        return
    }
    c.JSON(http.StatusCreated, gin.H{"code": code, "sheet_id": sheet.ID})
}

// IssueToken rotates the sheet's signing link token. Returned in clear
// exactly once; only the hash is stored.
func (cc *CredentialController) IssueToken(c *gin.Context) {
    sheet, ok := cc.ownsSheet(c)
    if !ok {
        return
    }
    token, expiresAt, err := cc.Issuer.IssueToken(c.Request.Context(), sheet.ID)
    if err != nil {
        if errors.Is(err, credential.ErrSessionClosed) {
            c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
            return
        }
        c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
        return
    }
    c.JSON(http.StatusCreated, gin.H{
        "token":      token,
        "expires_at": expiresAt,
        "sheet_id":   sheet.ID,
    })
}
