package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/pulse/internal/auth"
	"github.com/MarcoPoloResearchLab/pulse/internal/identifiers"
	"github.com/MarcoPoloResearchLab/pulse/internal/rooms"
	"github.com/MarcoPoloResearchLab/pulse/internal/sessions"
	"github.com/MarcoPoloResearchLab/pulse/internal/users"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnvironment struct {
	server     *httptest.Server
	db         *gorm.DB
	tokens     *auth.TokenIssuer
	realtime   *RealtimeDispatcher
	roomsSvc   *rooms.Service
	usersSvc   *users.Service
	sessionSvc *sessions.Service
}

type testEnvironmentOptions struct {
	verifier         GoogleVerifier
	sessionValidator SessionValidator
	heartbeat        time.Duration
}

func newTestEnvironment(t *testing.T, options testEnvironmentOptions) *testEnvironment {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:pulse_server_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&users.Identity{}, &users.Profile{}, &sessions.StudySession{}, &rooms.Room{}, &rooms.Membership{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	usersService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct users service: %v", err)
	}
	sessionService, err := sessions.NewService(sessions.ServiceConfig{Database: db, IDProvider: identifiers.NewUUIDProvider()})
	if err != nil {
		t.Fatalf("failed to construct sessions service: %v", err)
	}
	roomsService, err := rooms.NewService(rooms.ServiceConfig{Database: db, IDProvider: identifiers.NewUUIDProvider()})
	if err != nil {
		t.Fatalf("failed to construct rooms service: %v", err)
	}
	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        auth.DefaultTokenIssuer,
		Audience:      auth.DefaultTokenAudience,
		TokenTTL:      time.Minute,
	})
	if err != nil {
		t.Fatalf("failed to construct token issuer: %v", err)
	}

	dispatcher := NewRealtimeDispatcher()
	handler, err := NewHTTPHandler(Dependencies{
		GoogleVerifier:    options.verifier,
		TokenManager:      tokenIssuer,
		SessionValidator:  options.sessionValidator,
		Users:             usersService,
		Sessions:          sessionService,
		Rooms:             roomsService,
		Realtime:          dispatcher,
		HeartbeatInterval: options.heartbeat,
		Logger:            zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &testEnvironment{
		server:     server,
		db:         db,
		tokens:     tokenIssuer,
		realtime:   dispatcher,
		roomsSvc:   roomsService,
		usersSvc:   usersService,
		sessionSvc: sessionService,
	}
}

func (e *testEnvironment) tokenFor(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := e.tokens.IssueBackendToken(context.Background(), userID)
	if err != nil {
		t.Fatalf("failed to issue backend token: %v", err)
	}
	return token
}

// do sends a JSON request as userID (anonymous when empty) and decodes the response into target.
func (e *testEnvironment) do(t *testing.T, method, path, userID, body string, target any) int {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	request, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to construct request: %v", err)
	}
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		request.Header.Set("Authorization", "Bearer "+e.tokenFor(t, userID))
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer response.Body.Close()
	if target != nil {
		if err := json.NewDecoder(response.Body).Decode(target); err != nil {
			t.Fatalf("failed to decode %s %s response: %v", method, path, err)
		}
	}
	return response.StatusCode
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type stubVerifier struct {
	claims auth.GoogleClaims
	err    error
}

func (s stubVerifier) Verify(_ context.Context, _ string) (auth.GoogleClaims, error) {
	return s.claims, s.err
}
