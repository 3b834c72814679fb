package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/pulse/internal/auth"
	"github.com/MarcoPoloResearchLab/pulse/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type authRequestPayload struct {
	IDToken string `json:"id_token"`
}

type authResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
	UserID      string `json:"user_id"`
}

type profilePayload struct {
	UserID            string  `json:"user_id"`
	Email             *string `json:"email"`
	DisplayName       *string `json:"display_name"`
	Nickname          *string `json:"nickname"`
	PhotoURL          *string `json:"photo_url"`
	PreferredName     string  `json:"preferred_name"`
	TotalXP           int64   `json:"total_xp"`
	TotalFocusSeconds int64   `json:"total_focus_s"`
}

type profileUpdatePayload struct {
	DisplayName *string `json:"display_name"`
	Email       *string `json:"email"`
	Nickname    *string `json:"nickname"`
}

type globalLeaderboardEntryPayload struct {
	Rank              int     `json:"rank"`
	UserID            string  `json:"user_id"`
	DisplayName       string  `json:"display_name"`
	PhotoURL          *string `json:"photo_url,omitempty"`
	TotalXP           int64   `json:"total_xp"`
	TotalFocusSeconds int64   `json:"total_focus_s"`
}

func (h *httpHandler) handleGoogleAuth(c *gin.Context) {
	var request authRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.IDToken) == "" {
		respondInvalidRequest(c)
		return
	}

	ctx := c.Request.Context()
	claims, err := h.verifier.Verify(ctx, request.IDToken)
	if err != nil {
		h.logger.Warn("google token verification failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	userID, err := h.users.ResolveCanonicalUserID(ctx, auth.SessionClaims{
		UserID:          googleProviderName + ":" + claims.Subject,
		UserEmail:       claims.Email,
		UserDisplayName: claims.Name,
		UserAvatarURL:   claims.Picture,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: claims.Subject,
		},
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	seed := users.ProfileSeed{Email: claims.Email, DisplayName: claims.Name, PhotoURL: claims.Picture}
	if _, err := h.users.EnsureProfile(ctx, userID, seed); err != nil {
		h.respondError(c, err)
		return
	}

	token, expiresIn, err := h.tokens.IssueBackendToken(ctx, userID)
	if err != nil {
		h.logger.Error("failed to issue backend token", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, authResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		UserID:      userID,
	})
}

func (h *httpHandler) handleGetProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	profile, err := h.users.GetProfile(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newProfilePayload(profile))
}

func (h *httpHandler) handleUpdateProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var request profileUpdatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c)
		return
	}
	profile, err := h.users.UpdateProfile(c.Request.Context(), userID, users.ProfileUpdate{
		DisplayName: request.DisplayName,
		Email:       request.Email,
		Nickname:    request.Nickname,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newProfilePayload(profile))
}

func (h *httpHandler) handleGlobalLeaderboard(c *gin.Context) {
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondInvalidRequest(c)
			return
		}
		limit = parsed
	}

	profiles, err := h.users.TopProfiles(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	entries := make([]globalLeaderboardEntryPayload, 0, len(profiles))
	for index, profile := range profiles {
		entries = append(entries, globalLeaderboardEntryPayload{
			Rank:              index + 1,
			UserID:            profile.UserID,
			DisplayName:       profile.PreferredName(),
			PhotoURL:          profile.PhotoURL,
			TotalXP:           profile.TotalXP,
			TotalFocusSeconds: profile.TotalFocusSeconds,
		})
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func newProfilePayload(profile users.Profile) profilePayload {
	return profilePayload{
		UserID:            profile.UserID,
		Email:             profile.Email,
		DisplayName:       profile.DisplayName,
		Nickname:          profile.Nickname,
		PhotoURL:          profile.PhotoURL,
		PreferredName:     profile.PreferredName(),
		TotalXP:           profile.TotalXP,
		TotalFocusSeconds: profile.TotalFocusSeconds,
	}
}
