package controllers

import (
    "errors"
    "net/http"
    "time"

    "github.com/gin-gonic/gin"
    "go.uber.org/zap"
    "gorm.io/gorm"

    "github.com/ydelhoste/emargement_backend/internal/audit"
    "github.com/ydelhoste/emargement_backend/internal/models"
    "github.com/ydelhoste/emargement_backend/internal/store"
)

type SheetController struct {
    DB    *gorm.DB
    Store *store.Store
    Audit *audit.Recorder
    Log   *zap.Logger
}

type createSheetRequest struct {
    SlotID       string    `json:"slot_id" binding:"required"`
    FormationID  string    `json:"formation_id" binding:"required"`
    InstructorID string    `json:"instructor_id" binding:"required"`
    StartsAt     time.Time `json:"starts_at" binding:"required"`
    EndsAt       time.Time `json:"ends_at" binding:"required"`
    Room         string    `json:"room"`
    Kind         string    `json:"kind" binding:"required"`
}

// Create opens a sheet for a session slot. One sheet per slot; a concurrent
// or repeated create surfaces 409 off the slot unique index.
func (sc *SheetController) Create(c *gin.Context) {
    var req createSheetRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    if !models.IsValidKind(req.Kind) {
        c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session kind"})
        return
    }
    if !req.EndsAt.After(req.StartsAt) {
        c.JSON(http.StatusBadRequest, gin.H{"error": "ends_at must be after starts_at"})
        return
    }

    sheet := &models.AttendanceSheet{
        SlotID:         req.SlotID,
        FormationID:    req.FormationID,
        InstructorID:   req.InstructorID,
        StartsAt:       req.StartsAt,
        EndsAt:         req.EndsAt,
        Room:           req.Room,
        Kind:           req.Kind,
        Status:         models.SheetPending,
        OpenForSigning: true,
    }
    if err := sc.Store.CreateSheet(c.Request.Context(), sheet); err != nil {
        if errors.Is(err, store.ErrSheetExists) {
            c.JSON(http.StatusConflict, gin.H{"error": "a sheet already exists for this slot"})
            return
        }
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusCreated, sheet)
}

func (sc *SheetController) List(c *gin.Context) {
    q := sc.DB.Model(&models.AttendanceSheet{}).Order("starts_at DESC")
    if formationID := c.Query("formation_id"); formationID != "" {
        q = q.Where("formation_id = ?", formationID)
    }
    if day := c.Query("date"); day != "" {
        d, err := time.Parse("2006-01-02", day)
        if err != nil {
            c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected YYYY-MM-DD"})
            return
        }
        q = q.Where("starts_at >= ? AND starts_at < ?", d, d.AddDate(0, 0, 1))
    }
    var sheets []models.AttendanceSheet
    if err := q.Find(&sheets).Error; err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"data": sheets})
}

// Get returns the sheet plus its full signature list. Live viewers call this
// on (re)connect to reconcile anything missed on the websocket channel.
func (sc *SheetController) Get(c *gin.Context) {
    ctx := c.Request.Context()
    sheet, err := sc.Store.SheetByID(ctx, c.Param("id"))
    if err != nil {
        if errors.Is(err, store.ErrSheetNotFound) {
            c.JSON(http.StatusNotFound, gin.H{"error": "sheet not found"})
            return
        }
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    sigs, err := sc.Store.SignaturesForSheet(ctx, sheet.ID)
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"sheet": sheet, "signatures": sigs})
}

// Close ends the signing phase. Idempotent; instructors may only close their
// own sheets.
func (sc *SheetController) Close(c *gin.Context) {
    ctx := c.Request.Context()
    user := c.MustGet("user").(models.User)

    sheet, err := sc.Store.SheetByID(ctx, c.Param("id"))
    if err != nil {
        c.JSON(http.StatusNotFound, gin.H{"error": "sheet not found"})
        return
    }
    if user.Role == models.RoleInstructor && sheet.InstructorID != user.UserID {
        c.JSON(http.StatusForbidden, gin.H{"error": "not your sheet"})
        return
    }
    if sheet.Status == models.SheetValidated {
        c.JSON(http.StatusConflict, gin.H{"error": "sheet already validated"})
        return
    }

    sheet, err = sc.Store.CloseSheet(ctx, sheet.ID)
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, sheet)
}

type validateSheetRequest struct {
    SignatureImage string `json:"signature_image"`
}

// Validate is the terminal administrative transition. The admin's signature
// image is stored once per admin and reused when the request omits it.
func (sc *SheetController) Validate(c *gin.Context) {
    ctx := c.Request.Context()
    user := c.MustGet("user").(models.User)

    var req validateSheetRequest
    _ = c.ShouldBindJSON(&req) // body is optional

    image := req.SignatureImage
    if image != "" {
        stored := models.AdminSignature{UserIDRef: user.UserID, Image: image}
        if err := sc.DB.WithContext(ctx).
            Where("user_id_ref = ?", user.UserID).
            Assign(models.AdminSignature{Image: image}).
            FirstOrCreate(&stored).Error; err != nil {
            sc.Log.Warn("failed to store admin signature", zap.Error(err))
        }
    } else {
        var stored models.AdminSignature
        if err := sc.DB.WithContext(ctx).
            Where("user_id_ref = ?", user.UserID).
            First(&stored).Error; err == nil {
            image = stored.Image
        }
    }

    sheet, err := sc.Store.ValidateSheet(ctx, c.Param("id"), user.UserID)
    if err != nil {
        switch {
        case errors.Is(err, store.ErrSheetNotFound):
            c.JSON(http.StatusNotFound, gin.H{"error": "sheet not found"})
        case errors.Is(err, store.ErrInvalidTransition):
            c.JSON(http.StatusConflict, gin.H{"error": "sheet cannot be validated from its current status"})
        default:
            c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        }
        return
    }

    if err := sc.Audit.Record(ctx, sheet.ID, user.UserID, models.AuditValidation, map[string]any{
        "has_signature_image": image != "",
    }); err != nil {
        sc.Log.Warn("audit write failed", zap.String("sheet_id", sheet.ID), zap.Error(err))
    }
    c.JSON(http.StatusOK, sheet)
}

// AuditTrail lists the sheet's append-only audit entries.
func (sc *SheetController) AuditTrail(c *gin.Context) {
    ctx := c.Request.Context()
    if _, err := sc.Store.SheetByID(ctx, c.Param("id")); err != nil {
        c.JSON(http.StatusNotFound, gin.H{"error": "sheet not found"})
        return
    }
    entries, err := sc.Audit.ForSheet(ctx, c.Param("id"))
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"data": entries})
}
