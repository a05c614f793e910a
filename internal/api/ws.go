package api

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var wsLogger = log.New(os.Stdout, "[AlertWS] ", log.LstdFlags)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Delivery workers run on the same host or trusted network
		return true
	},
}

const (
	wsPollInterval = 5 * time.Second
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingPeriod   = 50 * time.Second
)

type alertAck struct {
	AlertID uint   `json:"alert_id"`
	Error   string `json:"error"`
}

// StreamAlerts pushes pending alerts to a connected delivery worker and
// consumes its acks. Each ack marks the alert delivered; failures are
// recorded but the alert still leaves the pending queue.
func (h *APIHandler) StreamAlerts(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Query("user_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}
	if _, err := h.store.Users.ByID(uint(userID)); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		wsLogger.Printf("upgrade failed for user %d: %v", userID, err)
		return
	}
	defer conn.Close()
	wsLogger.Printf("delivery worker connected for user %d", userID)

	done := make(chan struct{})
	go h.readAcks(conn, done)

	ticker := time.NewTicker(wsPollInterval)
	defer ticker.Stop()
	pinger := time.NewTicker(wsPingPeriod)
	defer pinger.Stop()

	// sent tracks alerts already pushed on this connection so a slow ack
	// does not cause a duplicate push
	sent := make(map[uint]struct{})

	for {
		select {
		case <-done:
			wsLogger.Printf("delivery worker for user %d disconnected", userID)
			return
		case <-pinger.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ticker.C:
			alerts, err := h.store.Alerts.Pending(uint(userID))
			if err != nil {
				wsLogger.Printf("pending query failed for user %d: %v", userID, err)
				continue
			}
			for i := range alerts {
				if _, already := sent[alerts[i].ID]; already {
					continue
				}
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(alerts[i]); err != nil {
					wsLogger.Printf("push failed for user %d: %v", userID, err)
					return
				}
				sent[alerts[i].ID] = struct{}{}
			}
		}
	}
}

func (h *APIHandler) readAcks(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		var ack alertAck
		if err := conn.ReadJSON(&ack); err != nil {
			return
		}
		if ack.AlertID == 0 {
			continue
		}
		if err := h.store.Alerts.MarkDelivered(ack.AlertID, ack.Error); err != nil {
			wsLogger.Printf("ack for alert %d failed: %v", ack.AlertID, err)
		}
	}
}
