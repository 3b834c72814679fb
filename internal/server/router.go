package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/pulse/internal/auth"
	"github.com/MarcoPoloResearchLab/pulse/internal/rooms"
	"github.com/MarcoPoloResearchLab/pulse/internal/sessions"
	"github.com/MarcoPoloResearchLab/pulse/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	userIDContextKey   = "pulse_user_id"
	accessTokenParam   = "access_token"
	googleProviderName = "google"
)

var (
	errMissingTokenManager   = errors.New("token manager dependency required")
	errMissingUsersService   = errors.New("users service dependency required")
	errMissingSessionService = errors.New("sessions service dependency required")
	errMissingRoomsService   = errors.New("rooms service dependency required")
	errInvalidAuthorization  = errors.New("authorization header missing or invalid")
)

type GoogleVerifier interface {
	Verify(ctx context.Context, token string) (auth.GoogleClaims, error)
}

type BackendTokenManager interface {
	IssueBackendToken(ctx context.Context, userID string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// Dependencies wires the HTTP layer. GoogleVerifier and SessionValidator are optional;
// leaving them nil disables /auth/google and cookie sessions respectively.
type Dependencies struct {
	GoogleVerifier    GoogleVerifier
	TokenManager      BackendTokenManager
	SessionValidator  SessionValidator
	Users             *users.Service
	Sessions          *sessions.Service
	Rooms             *rooms.Service
	Policy            rooms.Policy
	Realtime          *RealtimeDispatcher
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	Clock             func() time.Time
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Users == nil {
		return nil, errMissingUsersService
	}
	if deps.Sessions == nil {
		return nil, errMissingSessionService
	}
	if deps.Rooms == nil {
		return nil, errMissingRoomsService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := deps.Policy
	if policy == nil {
		policy = rooms.NewMembershipPolicy(deps.Rooms)
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = realtimeHeartbeatInterval
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware(deps.AllowedOrigins...))

	handler := &httpHandler{
		verifier:          deps.GoogleVerifier,
		tokens:            deps.TokenManager,
		sessionValidator:  deps.SessionValidator,
		users:             deps.Users,
		sessions:          deps.Sessions,
		rooms:             deps.Rooms,
		policy:            policy,
		realtime:          realtime,
		heartbeatInterval: heartbeat,
		clock:             clock,
		logger:            logger,
	}

	router.GET("/healthz", handler.handleHealth)
	if handler.verifier != nil {
		router.POST("/auth/google", handler.handleGoogleAuth)
	}

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/me", handler.handleGetProfile)
	protected.PATCH("/me", handler.handleUpdateProfile)
	protected.POST("/sessions", handler.handleSaveSession)
	protected.GET("/sessions", handler.handleListSessions)
	protected.GET("/leaderboard", handler.handleGlobalLeaderboard)
	protected.POST("/rooms", handler.handleCreateRoom)
	protected.GET("/rooms", handler.handleListRooms)
	protected.POST("/rooms/join", handler.handleJoinRoom)
	protected.GET("/resolve/:shortId", handler.handleResolveShortID)
	protected.GET("/invites/:shortId", handler.handleInvitePreview)
	protected.GET("/rooms/:roomId", handler.handleGetRoom)
	protected.PATCH("/rooms/:roomId", handler.handleUpdateRoom)
	protected.DELETE("/rooms/:roomId/membership", handler.handleLeaveRoom)
	protected.GET("/rooms/:roomId/members", handler.handleListMembers)
	protected.GET("/rooms/:roomId/leaderboard", handler.handleRoomLeaderboard)
	protected.GET("/rooms/:roomId/stream", handler.handleRoomStream)

	return router, nil
}

type httpHandler struct {
	verifier          GoogleVerifier
	tokens            BackendTokenManager
	sessionValidator  SessionValidator
	users             *users.Service
	sessions          *sessions.Service
	rooms             *rooms.Service
	policy            rooms.Policy
	realtime          *RealtimeDispatcher
	heartbeatInterval time.Duration
	clock             func() time.Time
	logger            *zap.Logger
}

func corsMiddleware(allowedOrigins ...string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-TAuth-Tenant"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	origins := make([]string, 0, len(allowedOrigins))
	wildcard := len(allowedOrigins) == 0
	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "*" {
			wildcard = true
			continue
		}
		if trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if wildcard {
		// Credentialed requests need the origin echoed back rather than "*".
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token, present := extractBearerToken(c)
	if present {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
			return
		}
		subject, err := h.tokens.ValidateToken(token)
		if err != nil {
			h.logTokenFailure(err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(userIDContextKey, subject)
		c.Next()
		return
	}

	if h.sessionValidator != nil {
		userID, err := h.authorizeSessionCookie(c)
		if err == nil {
			c.Set(userIDContextKey, userID)
			c.Next()
			return
		}
		if !errors.Is(err, auth.ErrMissingSessionToken) {
			h.logTokenFailure(err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
	}

	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
}

// authorizeSessionCookie maps a TAuth session cookie onto a canonical user and makes sure
// the user has a profile.
func (h *httpHandler) authorizeSessionCookie(c *gin.Context) (string, error) {
	claims, err := h.sessionValidator.ValidateRequest(c.Request)
	if err != nil {
		return "", err
	}
	ctx := c.Request.Context()
	userID, err := h.users.ResolveCanonicalUserID(ctx, claims)
	if err != nil {
		return "", err
	}
	seed := users.ProfileSeed{
		Email:       claims.UserEmail,
		DisplayName: claims.UserDisplayName,
		PhotoURL:    claims.UserAvatarURL,
	}
	if _, err := h.users.EnsureProfile(ctx, userID, seed); err != nil {
		return "", err
	}
	return userID, nil
}

// extractBearerToken reads the Authorization header. Event streams may pass the token as a
// query parameter because EventSource cannot set headers.
func extractBearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header != "" {
		if !strings.HasPrefix(header, "Bearer ") {
			return "", true
		}
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")), true
	}
	if c.Request.Method == http.MethodGet && strings.HasSuffix(c.FullPath(), "/stream") {
		if token := strings.TrimSpace(c.Query(accessTokenParam)); token != "" {
			return token, true
		}
	}
	return "", false
}

func (h *httpHandler) logTokenFailure(err error) {
	if errors.Is(err, jwt.ErrTokenExpired) || errors.Is(err, auth.ErrExpiredSessionToken) {
		h.logger.Info("token validation failed", zap.Error(err))
		return
	}
	h.logger.Warn("token validation failed", zap.Error(err))
}

func currentUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return userID, true
}
