package users

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/pulse/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultTopProfilesLimit = 20
	maxTopProfilesLimit     = 100
	maxNicknameLength       = 80
	maxDisplayNameLength    = 320
)

var (
	// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
	ErrInvalidIdentity = errors.New("users: invalid identity")
	// ErrProfileNotFound indicates no profile exists for the requested user.
	ErrProfileNotFound = errors.New("users: profile not found")
	// ErrInvalidProfile indicates a profile field failed validation.
	ErrInvalidProfile = errors.New("users: invalid profile field")
)

// ServiceConfig describes the dependencies required for user identity resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages canonical user identifiers, provider-specific identities and profiles.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
	cache  sync.Map
}

// NewService constructs the identity service and ensures the schema is present.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		now:    clock,
		logger: logger,
		cache:  sync.Map{},
	}, nil
}

// ProfileSeed carries identity-provider data used to create or refresh a profile.
type ProfileSeed struct {
	Email       string
	DisplayName string
	PhotoURL    string
}

// ProfileUpdate is a partial profile edit. Nil fields are left untouched; empty strings clear the field.
type ProfileUpdate struct {
	DisplayName *string
	Email       *string
	Nickname    *string
}

// ResolveCanonicalUserID returns the canonical user id for the provided session claims.
// It creates a new identity mapping when the provider+subject pair has not been seen before.
func (s *Service) ResolveCanonicalUserID(ctx context.Context, claims auth.SessionClaims) (string, error) {
	provider, subject := claims.ProviderSubject()
	if subject == "" {
		return "", ErrInvalidIdentity
	}

	cacheKey := provider + ":" + subject
	if cachedIdentifier, ok := s.cache.Load(cacheKey); ok {
		canonicalIdentifier, ok := cachedIdentifier.(string)
		if ok {
			return canonicalIdentifier, nil
		}
	}

	db := s.db.WithContext(ctx)
	var identity Identity
	err := db.
		Where("provider = ? AND subject = ?", provider, subject).
		First(&identity).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		identity = Identity{
			Provider:    provider,
			Subject:     subject,
			UserID:      subject,
			Email:       normalize(claims.UserEmail),
			DisplayName: normalize(claims.UserDisplayName),
			AvatarURL:   normalize(claims.UserAvatarURL),
			LastSeenAt:  s.now(),
		}
		if err := db.Create(&identity).Error; err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	} else {
		updates := map[string]interface{}{}
		if email := normalize(claims.UserEmail); email != "" && email != identity.Email {
			updates["user_email"] = email
		}
		if display := normalize(claims.UserDisplayName); display != "" && display != identity.DisplayName {
			updates["user_display_name"] = display
		}
		if avatar := normalize(claims.UserAvatarURL); avatar != "" && avatar != identity.AvatarURL {
			updates["user_avatar_url"] = avatar
		}
		updates["last_seen_at"] = s.now()
		if err := db.Model(&Identity{}).
			Where("provider = ? AND subject = ?", provider, subject).
			Updates(updates).
			Error; err != nil {
			s.logger.Warn("identity refresh failed", zap.String("user_id", identity.UserID), zap.Error(err))
		}
	}

	s.cache.Store(cacheKey, identity.UserID)
	return identity.UserID, nil
}

// EnsureProfile creates the profile when absent and otherwise refreshes the non-empty seed fields.
// Running totals are never touched here.
func (s *Service) EnsureProfile(ctx context.Context, userID string, seed ProfileSeed) (Profile, error) {
	userID = normalize(userID)
	if userID == "" {
		return Profile{}, ErrInvalidIdentity
	}
	nowSeconds := s.now().UTC().Unix()

	db := s.db.WithContext(ctx)
	candidate := Profile{
		UserID:           userID,
		Email:            optionalString(seed.Email),
		DisplayName:      optionalString(seed.DisplayName),
		PhotoURL:         optionalString(seed.PhotoURL),
		CreatedAtSeconds: nowSeconds,
		UpdatedAtSeconds: nowSeconds,
	}
	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&candidate)
	if result.Error != nil {
		s.logger.Error("profile insert failed", zap.String("user_id", userID), zap.Error(result.Error))
		return Profile{}, result.Error
	}

	if result.RowsAffected == 0 {
		updates := map[string]interface{}{}
		if candidate.Email != nil {
			updates["email"] = *candidate.Email
		}
		if candidate.DisplayName != nil {
			updates["display_name"] = *candidate.DisplayName
		}
		if candidate.PhotoURL != nil {
			updates["photo_url"] = *candidate.PhotoURL
		}
		if len(updates) > 0 {
			updates["updated_at_s"] = nowSeconds
			if err := db.Model(&Profile{}).Where("user_id = ?", userID).Updates(updates).Error; err != nil {
				s.logger.Error("profile refresh failed", zap.String("user_id", userID), zap.Error(err))
				return Profile{}, err
			}
		}
	}

	return s.GetProfile(ctx, userID)
}

// UpdateProfile applies a partial edit, creating an empty profile first when none exists.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (Profile, error) {
	userID = normalize(userID)
	if userID == "" {
		return Profile{}, ErrInvalidIdentity
	}

	updates := map[string]interface{}{}
	if err := collectProfileField(updates, "display_name", update.DisplayName, maxDisplayNameLength); err != nil {
		return Profile{}, err
	}
	if err := collectProfileField(updates, "email", update.Email, maxDisplayNameLength); err != nil {
		return Profile{}, err
	}
	if err := collectProfileField(updates, "nickname", update.Nickname, maxNicknameLength); err != nil {
		return Profile{}, err
	}

	nowSeconds := s.now().UTC().Unix()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		empty := Profile{UserID: userID, CreatedAtSeconds: nowSeconds, UpdatedAtSeconds: nowSeconds}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&empty).Error; err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		updates["updated_at_s"] = nowSeconds
		return tx.Model(&Profile{}).Where("user_id = ?", userID).Updates(updates).Error
	})
	if err != nil {
		s.logger.Error("profile update failed", zap.String("user_id", userID), zap.Error(err))
		return Profile{}, err
	}

	return s.GetProfile(ctx, userID)
}

// GetProfile loads a single profile.
func (s *Service) GetProfile(ctx context.Context, userID string) (Profile, error) {
	var profile Profile
	err := s.db.WithContext(ctx).Where("user_id = ?", normalize(userID)).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, ErrProfileNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// TopProfiles returns the global leaderboard ordered by total XP.
func (s *Service) TopProfiles(ctx context.Context, limit int) ([]Profile, error) {
	if limit <= 0 {
		limit = defaultTopProfilesLimit
	}
	if limit > maxTopProfilesLimit {
		limit = maxTopProfilesLimit
	}

	profiles := make([]Profile, 0, limit)
	if err := s.db.WithContext(ctx).
		Order("total_xp DESC").
		Order("user_id ASC").
		Limit(limit).
		Find(&profiles).Error; err != nil {
		s.logger.Error("top profiles query failed", zap.Error(err))
		return nil, err
	}
	return profiles, nil
}

func collectProfileField(updates map[string]interface{}, column string, value *string, maxLength int) error {
	if value == nil {
		return nil
	}
	trimmed := normalize(*value)
	if utf8.RuneCountInString(trimmed) > maxLength {
		return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidProfile, column, maxLength)
	}
	if trimmed == "" {
		updates[column] = nil
		return nil
	}
	updates[column] = trimmed
	return nil
}
