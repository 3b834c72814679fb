package server

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type realtimeEventPayload struct {
	RoomID    string `json:"room_id"`
	UserID    string `json:"user_id,omitempty"`
	Timestamp int64  `json:"timestamp_s"`
	Source    string `json:"source"`
}

// handleRoomStream keeps a server-sent event stream open for one room. A heartbeat is sent
// on connect and then periodically so proxies keep the connection alive. The stream ends
// when the viewer leaves the room.
func (h *httpHandler) handleRoomStream(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	roomID := c.Param("roomId")
	if err := h.policy.AuthorizeView(ctx, userID, roomID); err != nil {
		h.respondError(c, err)
		return
	}

	stream, cleanup := h.realtime.Subscribe(ctx, roomID, userID)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	h.writeEvent(c, realtimeEventHeartbeat, RealtimeMessage{RoomID: roomID, Timestamp: h.clock().UTC()})
	c.Writer.Flush()

	h.logger.Debug("realtime stream opened",
		zap.String("room_id", roomID),
		zap.String("user_id", userID),
		zap.Int("room_streams", h.realtime.SubscriberCount(roomID)))
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, open := <-stream:
			if !open {
				return false
			}
			h.writeEvent(c, message.EventType, message)
			return true
		case <-ticker.C:
			h.writeEvent(c, realtimeEventHeartbeat, RealtimeMessage{RoomID: roomID, Timestamp: h.clock().UTC()})
			return true
		}
	})
	h.logger.Debug("realtime stream closed", zap.String("room_id", roomID), zap.String("user_id", userID))
}

func (h *httpHandler) writeEvent(c *gin.Context, eventType string, message RealtimeMessage) {
	c.SSEvent(eventType, realtimeEventPayload{
		RoomID:    message.RoomID,
		UserID:    message.UserID,
		Timestamp: message.Timestamp.Unix(),
		Source:    realtimeSourceBackend,
	})
}
