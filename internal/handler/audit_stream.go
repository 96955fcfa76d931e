package handler

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yourusername/otp-api/internal/domain/repository"
)

const (
	streamPollInterval = 2 * time.Second
	streamWriteWait    = 10 * time.Second
	streamPingPeriod   = 30 * time.Second
	streamBatchLimit   = 100
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Доступ уже ограничен админским middleware
		return true
	},
}

// AuditStreamHandler транслирует новые события аудита по WebSocket
// (живой хвост журнала для админской консоли)
type AuditStreamHandler struct {
	auditRepo repository.AuditEventRepository
}

// NewAuditStreamHandler создает новый обработчик live-трансляции аудита
func NewAuditStreamHandler(auditRepo repository.AuditEventRepository) *AuditStreamHandler {
	return &AuditStreamHandler{auditRepo: auditRepo}
}

// Stream обрабатывает GET /api/admin/audit/stream
func (h *AuditStreamHandler) Stream(c *gin.Context) {
	conn, err := streamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[AuditStream] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Клиент может продолжить с известной ему позиции
	var lastID uint
	if v, err := strconv.ParseUint(c.Query("after_id"), 10, 32); err == nil {
		lastID = uint(v)
	} else {
		// По умолчанию — только новые события, без истории
		if latest, _, err := h.auditRepo.List(repository.AuditEventFilter{Limit: 1}); err == nil && len(latest) > 0 {
			lastID = latest[0].ID
		}
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	poll := time.NewTicker(streamPollInterval)
	defer poll.Stop()
	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-poll.C:
			events, err := h.auditRepo.ListAfter(lastID, streamBatchLimit)
			if err != nil {
				log.Printf("[AuditStream] poll failed: %v", err)
				continue
			}
			for _, event := range events {
				conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
				if err := conn.WriteJSON(event); err != nil {
					return
				}
				if event.ID > lastID {
					lastID = event.ID
				}
			}
		}
	}
}
