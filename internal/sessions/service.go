package sessions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/pulse/internal/identifiers"
	"github.com/MarcoPoloResearchLab/pulse/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
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
	opServiceNew   = "sessions.service.new"
	opSaveSession  = "sessions.save_session"
	opListSessions = "sessions.list_sessions"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider identifiers.Provider
	Logger     *zap.Logger
}

// Service records study sessions and keeps the owner's profile totals in step.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider identifiers.Provider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// SaveStudySession appends a session and increments the owner's totalXp and totalFocusSec
// in the same transaction. Every call records a new session.
func (s *Service) SaveStudySession(ctx context.Context, input SessionInput) (StudySession, error) {
	if s.db == nil {
		s.logError(opSaveSession, "missing_database", errMissingDatabase)
		return StudySession{}, newServiceError(opSaveSession, "missing_database", errMissingDatabase)
	}

	session, err := s.buildSession(input)
	if err != nil {
		return StudySession{}, newServiceError(opSaveSession, "invalid_input", err)
	}

	sessionID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opSaveSession, "id_generation_failed", err, zap.String("user_id", session.UserID))
		return StudySession{}, newServiceError(opSaveSession, "id_generation_failed", err)
	}
	session.SessionID = sessionID

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&session).Error; err != nil {
			s.logError(opSaveSession, "session_insert_failed", err, zap.String("user_id", session.UserID))
			return newServiceError(opSaveSession, "session_insert_failed", err)
		}

		profile := users.Profile{
			UserID:           session.UserID,
			CreatedAtSeconds: session.CreatedAtSeconds,
			UpdatedAtSeconds: session.CreatedAtSeconds,
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&profile).Error; err != nil {
			s.logError(opSaveSession, "profile_insert_failed", err, zap.String("user_id", session.UserID))
			return newServiceError(opSaveSession, "profile_insert_failed", err)
		}

		if err := tx.Model(&users.Profile{}).
			Where("user_id = ?", session.UserID).
			Updates(map[string]interface{}{
				"total_xp":      gorm.Expr("total_xp + ?", session.Points()),
				"total_focus_s": gorm.Expr("total_focus_s + ?", session.DurationSeconds),
				"updated_at_s":  session.CreatedAtSeconds,
			}).Error; err != nil {
			s.logError(opSaveSession, "profile_increment_failed", err, zap.String("user_id", session.UserID))
			return newServiceError(opSaveSession, "profile_increment_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return StudySession{}, txErr
	}

	return session, nil
}

// ListSessions returns the user's sessions started at or after since, newest first.
func (s *Service) ListSessions(ctx context.Context, userID string, since time.Time) ([]StudySession, error) {
	if s.db == nil {
		s.logError(opListSessions, "missing_database", errMissingDatabase)
		return nil, newServiceError(opListSessions, "missing_database", errMissingDatabase)
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, newServiceError(opListSessions, "missing_user_id", ErrInvalidUserID)
	}

	sessions := make([]StudySession, 0)
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND started_at_s >= ?", userID, since.UTC().Unix()).
		Order("started_at_s DESC").
		Find(&sessions).Error; err != nil {
		s.logError(opListSessions, "query_failed", err, zap.String("user_id", userID))
		return nil, newServiceError(opListSessions, "query_failed", err)
	}
	return sessions, nil
}

func (s *Service) buildSession(input SessionInput) (StudySession, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return StudySession{}, ErrInvalidUserID
	}
	if input.DurationSeconds <= 0 {
		return StudySession{}, fmt.Errorf("%w: %d", ErrInvalidDuration, input.DurationSeconds)
	}

	xp := DefaultXP(input.DurationSeconds)
	if input.XPEarned != nil {
		if *input.XPEarned < 0 {
			return StudySession{}, fmt.Errorf("%w: %d", ErrInvalidXP, *input.XPEarned)
		}
		xp = *input.XPEarned
	}

	now := s.clock().UTC()
	startedAt := now
	if input.StartedAt != nil {
		startedAt = input.StartedAt.UTC()
	}
	endedAt := now
	if input.EndedAt != nil {
		endedAt = input.EndedAt.UTC()
	}
	if endedAt.Before(startedAt) {
		return StudySession{}, ErrInvalidTimeRange
	}

	return StudySession{
		UserID:           userID,
		DurationSeconds:  input.DurationSeconds,
		XPEarned:         &xp,
		StartedAtSeconds: startedAt.Unix(),
		EndedAtSeconds:   endedAt.Unix(),
		CreatedAtSeconds: now.Unix(),
	}, nil
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
	s.loggerOrDefault().Error("sessions service error", attrs...)
}
