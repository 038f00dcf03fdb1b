package routes

import (
    "net/http"
    "testing"

    "github.com/gin-gonic/gin"
    "github.com/stretchr/testify/assert"
    "go.uber.org/zap"

    "github.com/ydelhoste/emargement_backend/internal/config"
    "github.com/ydelhoste/emargement_backend/internal/fanout"
)

// Registration wires handlers without touching the database, so a nil DB is
// enough to inspect the route table.
func registeredRoutes(t *testing.T) map[string]bool {
    t.Helper()
    gin.SetMode(gin.TestMode)
    r := gin.New()
    cfg := &config.Config{JWTSecret: "test-secret", JWTExpiresIn: "60"}
    Register(r, nil, cfg, zap.NewNop(), fanout.NewBus())

    routes := make(map[string]bool)
    for _, ri := range r.Routes() {
        routes[ri.Method+" "+ri.Path] = true
    }
    return routes
}

func TestRegister_RouteTable(t *testing.T) {
    routes := registeredRoutes(t)

    want := []string{
        http.MethodPost + " /api/v1/auth/login",
        http.MethodGet + " /api/v1/auth/me",
        http.MethodPost + " /api/v1/admin/users",
        http.MethodPost + " /api/v1/formations",
        http.MethodGet + " /api/v1/formations",
        http.MethodGet + " /api/v1/formations/:id",
        http.MethodPost + " /api/v1/formations/:id/students",
        http.MethodDelete + " /api/v1/formations/:id/students/:user_id",
        http.MethodGet + " /api/v1/formations/:id/students",
        http.MethodPost + " /api/v1/sheets",
        http.MethodGet + " /api/v1/sheets/:id",
        http.MethodPost + " /api/v1/sheets/:id/codes",
        http.MethodPost + " /api/v1/sheets/:id/tokens",
        http.MethodPost + " /api/v1/sheets/:id/close",
        http.MethodPost + " /api/v1/sheets/:id/validate",
        http.MethodPost + " /api/v1/sheets/:id/absences",
        http.MethodGet + " /api/v1/sheets/:id/audit",
        http.MethodGet + " /api/v1/sheets/:id/live",
        http.MethodPost + " /api/v1/sign/code",
        http.MethodPost + " /api/v1/sign/token",
    }
    for _, route := range want {
        assert.True(t, routes[route], "missing route %s", route)
    }

    // Formation management lives at the top level, not under /admin.
    assert.False(t, routes[http.MethodPost+" /api/v1/admin/formations"])
}
