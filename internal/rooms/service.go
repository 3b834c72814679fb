package rooms

import (
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/pulse/internal/identifiers"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	defaultLeaderboardConcurrency = 4
	maxShortIDAttempts            = 5
)

// ServiceError carries a stable operation.reason code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew         = "rooms.service.new"
	opCreateRoom         = "rooms.create_room"
	opResolveShortID     = "rooms.resolve_short_id"
	opResolveReference   = "rooms.resolve_reference"
	opUpdateMetadata     = "rooms.update_metadata"
	opGetRoom            = "rooms.get_room"
	opInvitePreview      = "rooms.invite_preview"
	opJoinRoom           = "rooms.join_room"
	opLeaveRoom          = "rooms.leave_room"
	opListUserRooms      = "rooms.list_user_rooms"
	opListMembers        = "rooms.list_members"
	opIsMember           = "rooms.is_member"
	opGetLeaderboard     = "rooms.get_leaderboard"
	reasonMissingDB      = "missing_database"
	reasonInvalidInput   = "invalid_input"
	reasonRoomNotFound   = "room_not_found"
	reasonQueryFailed    = "query_failed"
	reasonInsertFailed   = "insert_failed"
	reasonUpdateFailed   = "update_failed"
	reasonDeleteFailed   = "delete_failed"
	reasonIDFailed       = "id_generation_failed"
	reasonShortIDFailed  = "short_id_generation_failed"
	reasonShortIDExhaust = "short_id_exhausted"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// newStorageError wraps a store failure so callers can match both ErrStorage and the driver error.
func newStorageError(operation, reason string, cause error) error {
	return newServiceError(operation, reason, errors.Join(ErrStorage, cause))
}

type ServiceConfig struct {
	Database               *gorm.DB
	Clock                  func() time.Time
	IDProvider             identifiers.Provider
	ShortIDs               ShortIDGenerator
	LeaderboardConcurrency int
	Logger                 *zap.Logger
}

// Service implements the room registry, the membership ledger and the leaderboard aggregator.
// It holds no per-room state; every call reads the store.
type Service struct {
	db          *gorm.DB
	clock       func() time.Time
	idProvider  identifiers.Provider
	shortIDs    ShortIDGenerator
	concurrency int
	statsLoader memberStatsLoader
	logger      *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDB, errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	shortIDs := cfg.ShortIDs
	if shortIDs == nil {
		shortIDs = NewRandomShortIDGenerator()
	}

	concurrency := cfg.LeaderboardConcurrency
	if concurrency <= 0 {
		concurrency = defaultLeaderboardConcurrency
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:          cfg.Database,
		clock:       clock,
		idProvider:  cfg.IDProvider,
		shortIDs:    shortIDs,
		concurrency: concurrency,
		statsLoader: gormStatsLoader{db: cfg.Database},
		logger:      logger,
	}, nil
}

func (s *Service) nowSeconds() int64 {
	return s.clock().UTC().Unix()
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("rooms service error", attrs...)
}

func (s *Service) missingDatabase(operation string) error {
	if s.db != nil {
		return nil
	}
	s.logError(operation, reasonMissingDB, errMissingDatabase)
	return newServiceError(operation, reasonMissingDB, errMissingDatabase)
}
