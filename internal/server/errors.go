package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/pulse/internal/rooms"
	"github.com/MarcoPoloResearchLab/pulse/internal/sessions"
	"github.com/MarcoPoloResearchLab/pulse/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type codedError interface {
	Code() string
}

type errorMapping struct {
	target error
	status int
	reason string
}

var errorMappings = []errorMapping{
	{target: rooms.ErrRoomNotFound, status: http.StatusNotFound, reason: "room_not_found"},
	{target: users.ErrProfileNotFound, status: http.StatusNotFound, reason: "profile_not_found"},
	{target: rooms.ErrForbidden, status: http.StatusForbidden, reason: "forbidden"},
	{target: rooms.ErrInvalidRoomID, status: http.StatusBadRequest, reason: "invalid_room_id"},
	{target: rooms.ErrInvalidUserID, status: http.StatusBadRequest, reason: "invalid_user_id"},
	{target: rooms.ErrInvalidRoomName, status: http.StatusBadRequest, reason: "invalid_room_name"},
	{target: rooms.ErrInvalidIcon, status: http.StatusBadRequest, reason: "invalid_icon"},
	{target: sessions.ErrInvalidUserID, status: http.StatusBadRequest, reason: "invalid_user_id"},
	{target: sessions.ErrInvalidDuration, status: http.StatusBadRequest, reason: "invalid_duration"},
	{target: sessions.ErrInvalidXP, status: http.StatusBadRequest, reason: "invalid_xp"},
	{target: sessions.ErrInvalidTimeRange, status: http.StatusBadRequest, reason: "invalid_time_range"},
	{target: users.ErrInvalidProfile, status: http.StatusBadRequest, reason: "invalid_profile"},
	{target: users.ErrInvalidIdentity, status: http.StatusBadRequest, reason: "invalid_identity"},
}

func classifyError(err error) (int, string) {
	for _, mapping := range errorMappings {
		if errors.Is(err, mapping.target) {
			return mapping.status, mapping.reason
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// respondError writes {"error": reason} and, for service errors, the operation code.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	status, reason := classifyError(err)
	body := gin.H{"error": reason}
	var coded codedError
	if errors.As(err, &coded) {
		body["code"] = coded.Code()
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, body)
}

func respondInvalidRequest(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
}
