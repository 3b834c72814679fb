package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/pulse/internal/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultHistoryDays = 35
	maxHistoryDays     = 366
)

type saveSessionPayload struct {
	DurationSeconds  int64  `json:"duration_s"`
	XPEarned         *int64 `json:"xp_earned"`
	StartedAtSeconds *int64 `json:"started_at_s"`
	EndedAtSeconds   *int64 `json:"ended_at_s"`
}

type sessionPayload struct {
	SessionID        string `json:"session_id"`
	DurationSeconds  int64  `json:"duration_s"`
	XPEarned         int64  `json:"xp_earned"`
	StartedAtSeconds int64  `json:"started_at_s"`
	EndedAtSeconds   int64  `json:"ended_at_s"`
}

type dailyTotalPayload struct {
	Date    string `json:"date"`
	Minutes int64  `json:"minutes"`
}

type sessionHistoryPayload struct {
	Days     int                 `json:"days"`
	Sessions []sessionPayload    `json:"sessions"`
	Daily    []dailyTotalPayload `json:"daily"`
}

func (h *httpHandler) handleSaveSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var request saveSessionPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c)
		return
	}

	input := sessions.SessionInput{
		UserID:          userID,
		DurationSeconds: request.DurationSeconds,
		XPEarned:        request.XPEarned,
		StartedAt:       unixPointer(request.StartedAtSeconds),
		EndedAt:         unixPointer(request.EndedAtSeconds),
	}
	ctx := c.Request.Context()
	session, err := h.sessions.SaveStudySession(ctx, input)
	if err != nil {
		h.respondError(c, err)
		return
	}

	roomIDs, err := h.rooms.MemberRoomIDs(ctx, userID)
	if err != nil {
		h.logger.Warn("leaderboard notification skipped", zap.String("user_id", userID), zap.Error(err))
	} else {
		h.realtime.PublishToRooms(roomIDs, RealtimeEventLeaderboardChanged, userID)
	}

	c.JSON(http.StatusCreated, newSessionPayload(session))
}

func (h *httpHandler) handleListSessions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	days := defaultHistoryDays
	if raw := strings.TrimSpace(c.Query("days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxHistoryDays {
			respondInvalidRequest(c)
			return
		}
		days = parsed
	}

	now := h.clock().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	since := today.AddDate(0, 0, -(days - 1))

	history, err := h.sessions.ListSessions(c.Request.Context(), userID, since)
	if err != nil {
		h.respondError(c, err)
		return
	}

	response := sessionHistoryPayload{
		Days:     days,
		Sessions: make([]sessionPayload, 0, len(history)),
		Daily:    make([]dailyTotalPayload, 0, days),
	}
	for _, session := range history {
		response.Sessions = append(response.Sessions, newSessionPayload(session))
	}
	for _, total := range sessions.SummarizeDaily(history, days, now) {
		response.Daily = append(response.Daily, dailyTotalPayload{Date: total.Date, Minutes: total.Minutes})
	}
	c.JSON(http.StatusOK, response)
}

func newSessionPayload(session sessions.StudySession) sessionPayload {
	return sessionPayload{
		SessionID:        session.SessionID,
		DurationSeconds:  session.DurationSeconds,
		XPEarned:         session.Points(),
		StartedAtSeconds: session.StartedAtSeconds,
		EndedAtSeconds:   session.EndedAtSeconds,
	}
}

func unixPointer(seconds *int64) *time.Time {
	if seconds == nil {
		return nil
	}
	value := time.Unix(*seconds, 0).UTC()
	return &value
}
