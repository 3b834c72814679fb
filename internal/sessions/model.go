package sessions

import (
	"errors"
	"time"
)

var (
	// ErrInvalidUserID indicates that the session owner is empty.
	ErrInvalidUserID = errors.New("sessions: invalid user id")
	// ErrInvalidDuration indicates that a session duration is not a positive number of seconds.
	ErrInvalidDuration = errors.New("sessions: duration must be positive")
	// ErrInvalidXP indicates that an explicit XP value is negative.
	ErrInvalidXP = errors.New("sessions: xp must not be negative")
	// ErrInvalidTimeRange indicates that a session ends before it starts.
	ErrInvalidTimeRange = errors.New("sessions: end precedes start")
)

// StudySession is one timed focus interval. Rows are append-only.
type StudySession struct {
	SessionID        string `gorm:"column:session_id;primaryKey;size:190;not null"`
	UserID           string `gorm:"column:user_id;size:190;not null;index:idx_sessions_user_started,priority:1"`
	DurationSeconds  int64  `gorm:"column:duration_s;not null"`
	XPEarned         *int64 `gorm:"column:xp_earned"`
	StartedAtSeconds int64  `gorm:"column:started_at_s;not null;index:idx_sessions_user_started,priority:2"`
	EndedAtSeconds   int64  `gorm:"column:ended_at_s;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (StudySession) TableName() string {
	return "study_sessions"
}

// Points returns the XP earned, counting a missing value as zero.
func (s StudySession) Points() int64 {
	if s.XPEarned == nil {
		return 0
	}
	return *s.XPEarned
}

// StartedAt exposes the start time in UTC.
func (s StudySession) StartedAt() time.Time {
	return time.Unix(s.StartedAtSeconds, 0).UTC()
}

// SessionInput describes a session reported by a client when a timer stops.
type SessionInput struct {
	UserID          string
	DurationSeconds int64
	StartedAt       *time.Time
	EndedAt         *time.Time
	XPEarned        *int64
}

// DefaultXP is the XP awarded when a client does not report one: a point per whole minute.
func DefaultXP(durationSeconds int64) int64 {
	if durationSeconds <= 0 {
		return 0
	}
	return durationSeconds / 60
}
