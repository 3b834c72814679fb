package server

import (
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/pulse/internal/rooms"
	"github.com/gin-gonic/gin"
)

type createRoomPayload struct {
	Name string `json:"name" binding:"required"`
	Icon string `json:"icon"`
}

type updateRoomPayload struct {
	Name *string `json:"name"`
	Icon *string `json:"icon"`
}

type joinRoomPayload struct {
	Reference string `json:"reference" binding:"required"`
}

type roomPayload struct {
	RoomID           string `json:"room_id"`
	ShortID          string `json:"short_id"`
	Name             string `json:"name"`
	Icon             string `json:"icon"`
	CreatedBy        string `json:"created_by"`
	CreatedAtSeconds int64  `json:"created_at_s"`
}

type roomSummaryPayload struct {
	RoomID string `json:"room_id"`
	Name   string `json:"name"`
	Icon   string `json:"icon"`
}

type invitePayload struct {
	RoomID      string `json:"room_id"`
	ShortID     string `json:"short_id"`
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	MemberCount int64  `json:"member_count"`
}

type memberPayload struct {
	UserID          string `json:"user_id"`
	JoinedAtSeconds int64  `json:"joined_at_s"`
}

type standingPayload struct {
	Rank              int     `json:"rank"`
	UserID            string  `json:"user_id"`
	DisplayName       string  `json:"display_name"`
	PhotoURL          *string `json:"photo_url,omitempty"`
	TotalPoints       int64   `json:"total_points"`
	TotalSessions     int64   `json:"total_sessions"`
	LastActiveSeconds int64   `json:"last_active_s"`
}

type roomLeaderboardPayload struct {
	RoomID  string            `json:"room_id"`
	Entries []standingPayload `json:"entries"`
	Skipped []string          `json:"skipped"`
	Partial bool              `json:"partial"`
}

func (h *httpHandler) handleCreateRoom(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var request createRoomPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c)
		return
	}
	room, err := h.rooms.CreateRoom(c.Request.Context(), userID, request.Name, request.Icon)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newRoomPayload(room))
}

func (h *httpHandler) handleListRooms(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	summaries, err := h.rooms.ListUserRooms(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload := make([]roomSummaryPayload, 0, len(summaries))
	for _, summary := range summaries {
		payload = append(payload, roomSummaryPayload{RoomID: summary.RoomID, Name: summary.Name, Icon: summary.Icon})
	}
	c.JSON(http.StatusOK, gin.H{"rooms": payload})
}

func (h *httpHandler) handleResolveShortID(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		return
	}
	roomID, found, err := h.rooms.ResolveShortID(c.Request.Context(), c.Param("shortId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "room_not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_id": roomID})
}

func (h *httpHandler) handleInvitePreview(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		return
	}
	preview, err := h.rooms.InvitePreview(c.Request.Context(), c.Param("shortId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invitePayload{
		RoomID:      preview.Room.RoomID,
		ShortID:     preview.Room.ShortID,
		Name:        preview.Room.Name,
		Icon:        preview.Room.Icon,
		MemberCount: preview.MemberCount,
	})
}

func (h *httpHandler) handleJoinRoom(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var request joinRoomPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Reference) == "" {
		respondInvalidRequest(c)
		return
	}

	ctx := c.Request.Context()
	roomID, err := h.rooms.ResolveRoomReference(ctx, request.Reference)
	if err != nil {
		h.respondError(c, err)
		return
	}
	joined, err := h.rooms.JoinRoom(ctx, userID, roomID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if joined {
		h.realtime.PublishToRooms([]string{roomID}, RealtimeEventMembershipChanged, userID)
	}
	c.JSON(http.StatusOK, gin.H{"room_id": roomID, "joined": joined})
}

func (h *httpHandler) handleGetRoom(c *gin.Context) {
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
	room, err := h.rooms.GetRoom(ctx, roomID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRoomPayload(room))
}

func (h *httpHandler) handleUpdateRoom(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var request updateRoomPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c)
		return
	}

	ctx := c.Request.Context()
	roomID := c.Param("roomId")
	if err := h.policy.AuthorizeUpdate(ctx, userID, roomID); err != nil {
		h.respondError(c, err)
		return
	}
	update := rooms.MetadataUpdate{Name: request.Name, Icon: request.Icon}
	if err := h.rooms.UpdateRoomMetadata(ctx, roomID, update); err != nil {
		h.respondError(c, err)
		return
	}
	if !update.IsEmpty() {
		h.realtime.PublishToRooms([]string{roomID}, RealtimeEventRoomUpdated, userID)
	}

	room, err := h.rooms.GetRoom(ctx, roomID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRoomPayload(room))
}

func (h *httpHandler) handleLeaveRoom(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	roomID := c.Param("roomId")
	left, err := h.rooms.LeaveRoom(c.Request.Context(), userID, roomID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if left {
		h.realtime.Disconnect(roomID, userID)
		h.realtime.PublishToRooms([]string{roomID}, RealtimeEventMembershipChanged, userID)
	}
	c.JSON(http.StatusOK, gin.H{"room_id": roomID, "left": left})
}

func (h *httpHandler) handleListMembers(c *gin.Context) {
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
	members, err := h.rooms.ListMembers(ctx, roomID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload := make([]memberPayload, 0, len(members))
	for _, member := range members {
		payload = append(payload, memberPayload{UserID: member.UserID, JoinedAtSeconds: member.JoinedAtSeconds})
	}
	c.JSON(http.StatusOK, gin.H{"room_id": roomID, "members": payload})
}

func (h *httpHandler) handleRoomLeaderboard(c *gin.Context) {
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
	board, err := h.rooms.GetRoomLeaderboard(ctx, roomID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRoomLeaderboardPayload(board))
}

func newRoomPayload(room rooms.Room) roomPayload {
	return roomPayload{
		RoomID:           room.RoomID,
		ShortID:          room.ShortID,
		Name:             room.Name,
		Icon:             room.Icon,
		CreatedBy:        room.CreatedBy,
		CreatedAtSeconds: room.CreatedAtSeconds,
	}
}

func newRoomLeaderboardPayload(board rooms.Leaderboard) roomLeaderboardPayload {
	payload := roomLeaderboardPayload{
		RoomID:  board.RoomID,
		Entries: make([]standingPayload, 0, len(board.Entries)),
		Skipped: make([]string, 0, len(board.Skipped)),
		Partial: board.Partial(),
	}
	payload.Skipped = append(payload.Skipped, board.Skipped...)
	for index, entry := range board.Entries {
		payload.Entries = append(payload.Entries, standingPayload{
			Rank:              index + 1,
			UserID:            entry.UserID,
			DisplayName:       entry.DisplayName,
			PhotoURL:          entry.PhotoURL,
			TotalPoints:       entry.TotalPoints,
			TotalSessions:     entry.TotalSessions,
			LastActiveSeconds: entry.LastActive.Unix(),
		})
	}
	return payload
}
