package routes

import (
    "time"

    "github.com/gin-gonic/gin"
    "go.uber.org/zap"
    "gorm.io/gorm"

    "github.com/ydelhoste/emargement_backend/internal/audit"
    "github.com/ydelhoste/emargement_backend/internal/config"
    "github.com/ydelhoste/emargement_backend/internal/controllers"
    "github.com/ydelhoste/emargement_backend/internal/credential"
    "github.com/ydelhoste/emargement_backend/internal/fanout"
    "github.com/ydelhoste/emargement_backend/internal/middleware"
    "github.com/ydelhoste/emargement_backend/internal/models"
    "github.com/ydelhoste/emargement_backend/internal/signing"
    "github.com/ydelhoste/emargement_backend/internal/store"
    "github.com/ydelhoste/emargement_backend/internal/ws"
)

func Register(r *gin.Engine, db *gorm.DB, cfg *config.Config, log *zap.Logger, bus *fanout.Bus) {
    expiresMins, err := time.ParseDuration(cfg.JWTExpiresIn + "m")
    if err != nil || expiresMins == 0 {
        expiresMins = 60 * time.Minute
    }

    st := store.New(db)
    recorder := audit.NewRecorder(db, log)
    issuer := credential.NewIssuer(st, credential.Policy{
        GraceBefore: time.Duration(cfg.CodeGraceBeforeMinutes) * time.Minute,
        GraceAfter:  time.Duration(cfg.CodeGraceAfterMinutes) * time.Minute,
        TokenTTL:    time.Duration(cfg.LinkTokenTTLHours) * time.Hour,
    }, log)
    coordinator := signing.NewCoordinator(st, issuer, st, recorder, bus, log)

    authCtrl := &controllers.AuthController{DB: db, JWTSecret: cfg.JWTSecret, ExpiresIn: expiresMins}
    formationCtrl := &controllers.FormationController{DB: db}
    sheetCtrl := &controllers.SheetController{DB: db, Store: st, Audit: recorder, Log: log}
    credentialCtrl := &controllers.CredentialController{Issuer: issuer, Store: st}
    signingCtrl := &controllers.SigningController{Coordinator: coordinator}

    // Public
    auth := r.Group("/api/v1/auth")
    {
        auth.POST("/login", authCtrl.Login)
    }

    // Protected
    authMW := middleware.AuthMiddleware(db, cfg.JWTSecret)
    api := r.Group("/api/v1", authMW)
    {
        api.GET("/auth/me", authCtrl.Me)

        // Admin-only
        admin := api.Group("/admin", middleware.RequireRoles(models.RoleAdmin))
        {
            admin.POST("/users", authCtrl.Register)
        }

        // Formations and rosters: admin-managed
        formations := api.Group("/formations", middleware.RequireRoles(models.RoleAdmin))
        {
            formations.POST("", formationCtrl.Create)
            formations.GET("", formationCtrl.List)
            formations.GET("/:id", formationCtrl.Get)
            formations.POST("/:id/students", formationCtrl.EnrollStudent)
            formations.DELETE("/:id/students/:user_id", formationCtrl.UnenrollStudent)
            formations.GET("/:id/students", formationCtrl.ListStudents)
        }

        // Sheets: owned by instructors, overseen by admins
        sheets := api.Group("/sheets")
        {
            sheets.POST("", middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor), sheetCtrl.Create)
            sheets.GET("", sheetCtrl.List)
            sheets.GET("/:id", sheetCtrl.Get)
            sheets.POST("/:id/codes", middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor), credentialCtrl.IssueCode)
            sheets.POST("/:id/tokens", middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor), credentialCtrl.IssueToken)
            sheets.POST("/:id/close", middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor), sheetCtrl.Close)
            sheets.POST("/:id/validate", middleware.RequireRoles(models.RoleAdmin), sheetCtrl.Validate)
            sheets.POST("/:id/absences", middleware.RequireRoles(models.RoleAdmin), signingCtrl.MarkAbsent)
            sheets.GET("/:id/audit", middleware.RequireRoles(models.RoleAdmin), sheetCtrl.AuditTrail)

            // Live view: any authenticated viewer of the sheet
            sheets.GET("/:id/live", ws.SheetHandler(st, bus, log))
        }

        // Signing portal
        sign := api.Group("/sign", middleware.RequireRoles(models.RoleStudent, models.RoleInstructor))
        {
            sign.POST("/code", signingCtrl.SignViaCode)
            sign.POST("/token", signingCtrl.SignViaToken)
        }
    }
}
