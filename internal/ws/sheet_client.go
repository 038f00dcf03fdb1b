package ws

import (
    "encoding/json"
    "sync"
    "time"

    "github.com/gorilla/websocket"

    "github.com/ydelhoste/emargement_backend/internal/fanout"
)

const (
    writeWait  = 10 * time.Second
    pongWait   = 60 * time.Second
    pingPeriod = (pongWait * 9) / 10
)

// sheetClient pumps bus events for one sheet onto one websocket connection.
type sheetClient struct {
    bus  *fanout.Bus
    sub  *fanout.Subscriber
    conn *websocket.Conn

    closeOnce sync.Once
}

func newSheetClient(bus *fanout.Bus, sub *fanout.Subscriber, conn *websocket.Conn) *sheetClient {
    return &sheetClient{bus: bus, sub: sub, conn: conn}
}

func (c *sheetClient) close() {
    c.closeOnce.Do(func() {
        c.bus.Unsubscribe(c.sub)
        c.conn.Close()
    })
}

func (c *sheetClient) readPump() {
    defer c.close()
    c.conn.SetReadLimit(512)
    c.conn.SetReadDeadline(time.Now().Add(pongWait))
    c.conn.SetPongHandler(func(string) error {
        c.conn.SetReadDeadline(time.Now().Add(pongWait))
        return nil
    })
    for {
        if _, _, err := c.conn.ReadMessage(); err != nil {
            break
        }
    }
}

func (c *sheetClient) writePump() {
    ticker := time.NewTicker(pingPeriod)
    defer func() {
        ticker.Stop()
        c.conn.Close()
    }()
    for {
        select {
        case event, ok := <-c.sub.C:
            c.conn.SetWriteDeadline(time.Now().Add(writeWait))
            if !ok {
                // Dropped by the bus (or unsubscribed); tell the viewer to
                // reconnect and reconcile.
                c.conn.WriteMessage(websocket.CloseMessage, []byte{})
                return
            }
            data, err := json.Marshal(event)
            if err != nil {
                continue
            }
            if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
                return
            }
        case <-ticker.C:
            c.conn.SetWriteDeadline(time.Now().Add(writeWait))
            if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
                return
            }
        }
    }
}
