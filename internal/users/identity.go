package users

import (
	"strings"
	"time"
)

// Identity captures the mapping between a canonical Pulse user id and a provider-specific login.
type Identity struct {
	Provider    string    `gorm:"column:provider;primaryKey;size:32;not null"`
	Subject     string    `gorm:"column:subject;primaryKey;size:190;not null"`
	UserID      string    `gorm:"column:user_id;size:190;not null;index"`
	Email       string    `gorm:"column:user_email;size:320"`
	DisplayName string    `gorm:"column:user_display_name;size:320"`
	AvatarURL   string    `gorm:"column:user_avatar_url;size:512"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at;autoUpdateTime"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user identities.
func (Identity) TableName() string {
	return "user_identities"
}

const anonymousDisplayName = "Anonymous"

// Profile is the per-user document holding display data and running study totals.
// TotalXP and TotalFocusSeconds only ever grow; they are incremented alongside each logged session.
type Profile struct {
	UserID            string  `gorm:"column:user_id;primaryKey;size:190;not null"`
	Email             *string `gorm:"column:email;size:320"`
	DisplayName       *string `gorm:"column:display_name;size:320"`
	Nickname          *string `gorm:"column:nickname;size:320"`
	PhotoURL          *string `gorm:"column:photo_url;size:512"`
	TotalXP           int64   `gorm:"column:total_xp;not null;default:0;index:idx_profiles_total_xp"`
	TotalFocusSeconds int64   `gorm:"column:total_focus_s;not null;default:0"`
	CreatedAtSeconds  int64   `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds  int64   `gorm:"column:updated_at_s;not null"`
}

// TableName exposes the table backing user profiles.
func (Profile) TableName() string {
	return "user_profiles"
}

// PreferredName returns the nickname, then the display name, then a fixed placeholder.
func (p Profile) PreferredName() string {
	if name := derefTrimmed(p.Nickname); name != "" {
		return name
	}
	if name := derefTrimmed(p.DisplayName); name != "" {
		return name
	}
	return anonymousDisplayName
}

// PreferredNameOf is PreferredName for an optional profile.
func PreferredNameOf(profile *Profile) string {
	if profile == nil {
		return anonymousDisplayName
	}
	return profile.PreferredName()
}

// normalize value helper used across service implementation.
func normalize(value string) string {
	return strings.TrimSpace(value)
}

func derefTrimmed(value *string) string {
	if value == nil {
		return ""
	}
	return normalize(*value)
}

func optionalString(value string) *string {
	trimmed := normalize(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
