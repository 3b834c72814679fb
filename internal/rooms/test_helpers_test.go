package rooms

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/pulse/internal/sessions"
	"github.com/MarcoPoloResearchLab/pulse/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const testClockSeconds = 1700000600

type staticIDGenerator struct {
	mutex sync.Mutex
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

type sequenceShortIDs struct {
	values []string
	index  int
}

func (g *sequenceShortIDs) NewShortID() (string, error) {
	if g.index >= len(g.values) {
		return "", errors.New("exhausted short ids")
	}
	value := g.values[g.index]
	g.index++
	return value, nil
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:pulse_rooms_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&Room{}, &Membership{}, &users.Profile{}, &sessions.StudySession{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, roomIDs []string, shortIDs []string) (*Service, *gorm.DB) {
	t.Helper()

	db := openTestDatabase(t)
	cfg := ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return time.Unix(testClockSeconds, 0).UTC() },
		IDProvider: &staticIDGenerator{ids: roomIDs},
	}
	if shortIDs != nil {
		cfg.ShortIDs = &sequenceShortIDs{values: shortIDs}
	}
	service, err := NewService(cfg)
	if err != nil {
		t.Fatalf("failed to construct rooms service: %v", err)
	}
	return service, db
}

func mustCreateRoom(t *testing.T, service *Service, userID, name string) Room {
	t.Helper()
	room, err := service.CreateRoom(t.Context(), userID, name, "")
	if err != nil {
		t.Fatalf("failed to create room: %v", err)
	}
	return room
}

func mustJoin(t *testing.T, service *Service, userID, roomID string) {
	t.Helper()
	if _, err := service.JoinRoom(t.Context(), userID, roomID); err != nil {
		t.Fatalf("failed to join room: %v", err)
	}
}

func seedSessions(t *testing.T, db *gorm.DB, userID string, entries ...sessions.StudySession) {
	t.Helper()
	for index := range entries {
		entries[index].UserID = userID
		if entries[index].SessionID == "" {
			entries[index].SessionID = fmt.Sprintf("%s-session-%d", userID, index)
		}
		if entries[index].DurationSeconds == 0 {
			entries[index].DurationSeconds = 60
		}
	}
	if err := db.Create(&entries).Error; err != nil {
		t.Fatalf("failed to seed sessions: %v", err)
	}
}

func int64Pointer(value int64) *int64 {
	return &value
}

func stringPointer(value string) *string {
	return &value
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("expected service error %s, got %v", code, err)
	}
	if serviceErr.Code() != code {
		t.Fatalf("expected code %s, got %s", code, serviceErr.Code())
	}
}
