package ws

import (
    "net/http"

    "github.com/gin-gonic/gin"
    "github.com/gorilla/websocket"
    "go.uber.org/zap"

    "github.com/ydelhoste/emargement_backend/internal/fanout"
    "github.com/ydelhoste/emargement_backend/internal/store"
)

var upgrader = websocket.Upgrader{
    CheckOrigin: func(r *http.Request) bool {
        // Allow all origins; rely on JWT auth.
        return true
    },
}

// SheetHandler upgrades a viewer onto the sheet's live channel. The stream
// carries incremental signature events only; the viewer reconciles full
// state through GET /sheets/:id on (re)connect.
func SheetHandler(st *store.Store, bus *fanout.Bus, log *zap.Logger) gin.HandlerFunc {
    return func(c *gin.Context) {
        if bus == nil {
            c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "realtime not available"})
            return
        }
        sheetID := c.Param("id")
        if _, err := st.SheetByID(c.Request.Context(), sheetID); err != nil {
            c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "sheet not found"})
            return
        }

        conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
        if err != nil {
            log.Warn("websocket upgrade failed", zap.Error(err))
            return
        }
        sub := bus.Subscribe(sheetID)
        client := newSheetClient(bus, sub, conn)

        go client.writePump()
        client.readPump()
    }
}
