package rooms

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxIdentifierLength = 190
	maxRoomNameLength   = 80
	maxRoomIconLength   = 16
	// DefaultRoomIcon is stored when a room is created without an icon.
	DefaultRoomIcon = "📚"
)

var (
	// ErrInvalidRoomID indicates that a room identifier is empty or exceeds storage bounds.
	ErrInvalidRoomID = errors.New("rooms: invalid room id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("rooms: invalid user id")
	// ErrInvalidRoomName indicates that a room name is empty or too long.
	ErrInvalidRoomName = errors.New("rooms: invalid room name")
	// ErrInvalidIcon indicates that a room icon is too long.
	ErrInvalidIcon = errors.New("rooms: invalid room icon")
	// ErrRoomNotFound indicates that no room matches the identifier.
	ErrRoomNotFound = errors.New("rooms: room not found")
	// ErrForbidden indicates that the actor may not perform the operation on the room.
	ErrForbidden = errors.New("rooms: forbidden")
	// ErrStorage marks failures of the underlying store.
	ErrStorage = errors.New("rooms: storage failure")
)

// NeverActive is the lastActive value reported for members without any sessions.
var NeverActive = time.Unix(0, 0).UTC()

// Room is a named group with a shareable short identifier.
type Room struct {
	RoomID           string `gorm:"column:room_id;primaryKey;size:190;not null"`
	Name             string `gorm:"column:name;size:320;not null"`
	Icon             string `gorm:"column:icon;size:64;not null"`
	ShortID          string `gorm:"column:short_id;size:16;not null;uniqueIndex:idx_rooms_short_id"`
	CreatedBy        string `gorm:"column:created_by;size:190;not null;index:idx_rooms_created_by"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Room) TableName() string {
	return "rooms"
}

// Membership records that a user belongs to a room. The (room, user) pair is the primary key,
// so repeated or concurrent joins collapse onto a single row.
type Membership struct {
	RoomID          string `gorm:"column:room_id;primaryKey;size:190;not null"`
	UserID          string `gorm:"column:user_id;primaryKey;size:190;not null;index:idx_room_members_user"`
	JoinedAtSeconds int64  `gorm:"column:joined_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Membership) TableName() string {
	return "room_members"
}

// RoomSummary is the listing shape for a user's rooms.
type RoomSummary struct {
	RoomID string `gorm:"column:room_id"`
	Name   string `gorm:"column:name"`
	Icon   string `gorm:"column:icon"`
}

// MetadataUpdate is a partial room edit; nil fields are left untouched.
type MetadataUpdate struct {
	Name *string
	Icon *string
}

// IsEmpty reports whether the update changes nothing.
func (u MetadataUpdate) IsEmpty() bool {
	return u.Name == nil && u.Icon == nil
}

// InvitePreview is what an invitee sees before joining.
type InvitePreview struct {
	Room        Room
	MemberCount int64
}

// MemberStats is one leaderboard row.
type MemberStats struct {
	UserID        string
	DisplayName   string
	PhotoURL      *string
	TotalPoints   int64
	TotalSessions int64
	LastActive    time.Time
}

// Leaderboard holds the ranked members of a room. Skipped lists members whose data could
// not be loaded; they are absent from Entries.
type Leaderboard struct {
	RoomID  string
	Entries []MemberStats
	Skipped []string
}

// Partial reports whether any member was left out.
func (l Leaderboard) Partial() bool {
	return len(l.Skipped) > 0
}

func validateIdentifier(raw string, sentinel error) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", sentinel)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", sentinel, maxIdentifierLength)
	}
	return trimmed, nil
}

func validateRoomName(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidRoomName)
	}
	if utf8.RuneCountInString(trimmed) > maxRoomNameLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidRoomName, maxRoomNameLength)
	}
	return trimmed, nil
}

func validateRoomIcon(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return DefaultRoomIcon, nil
	}
	if utf8.RuneCountInString(trimmed) > maxRoomIconLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidIcon, maxRoomIconLength)
	}
	return trimmed, nil
}
