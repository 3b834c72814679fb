package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillProfileTotals = "2026-10-12_backfill_profile_totals"
	migrationNormalizeShortIDs     = "2026-10-14_normalize_room_short_ids"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func registeredMigrations() []migrationDefinition {
	return []migrationDefinition{
		{name: migrationBackfillProfileTotals, apply: backfillProfileTotals},
		{name: migrationNormalizeShortIDs, apply: normalizeRoomShortIDs},
	}
}

// applyMigrations runs each pending migration once, recording it in the same transaction.
func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	for _, migration := range registeredMigrations() {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			logger.Error("database migration failed", zap.String("migration", migration.name), zap.Error(err))
			return err
		}
		logger.Info("database migration applied", zap.String("migration", migration.name))
	}
	return nil
}

// backfillProfileTotals creates missing profiles for users with sessions and recomputes the
// running totals from the session log.
func backfillProfileTotals(db *gorm.DB) error {
	insertMissing := `INSERT INTO user_profiles (user_id, total_xp, total_focus_s, created_at_s, updated_at_s)
SELECT user_id, 0, 0, MIN(created_at_s), MIN(created_at_s)
FROM study_sessions
WHERE user_id NOT IN (SELECT user_id FROM user_profiles)
GROUP BY user_id`
	if err := db.Exec(insertMissing).Error; err != nil {
		return err
	}

	recompute := `UPDATE user_profiles SET
total_xp = (SELECT COALESCE(SUM(COALESCE(xp_earned, 0)), 0) FROM study_sessions WHERE study_sessions.user_id = user_profiles.user_id),
total_focus_s = (SELECT COALESCE(SUM(duration_s), 0) FROM study_sessions WHERE study_sessions.user_id = user_profiles.user_id)`
	return db.Exec(recompute).Error
}

func normalizeRoomShortIDs(db *gorm.DB) error {
	return db.Exec("UPDATE rooms SET short_id = UPPER(TRIM(short_id)) WHERE short_id <> UPPER(TRIM(short_id))").Error
}
