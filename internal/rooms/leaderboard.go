package rooms

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/pulse/internal/sessions"
	"github.com/MarcoPoloResearchLab/pulse/internal/users"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// memberStatsLoader loads the standings of one member.
type memberStatsLoader interface {
	LoadMemberStats(ctx context.Context, userID string) (MemberStats, error)
}

type gormStatsLoader struct {
	db *gorm.DB
}

type sessionAggregate struct {
	TotalPoints   int64  `gorm:"column:total_points"`
	TotalSessions int64  `gorm:"column:total_sessions"`
	LastStarted   *int64 `gorm:"column:last_started"`
}

func (l gormStatsLoader) LoadMemberStats(ctx context.Context, userID string) (MemberStats, error) {
	var profile *users.Profile
	var loaded users.Profile
	err := l.db.WithContext(ctx).Where("user_id = ?", userID).Take(&loaded).Error
	switch {
	case err == nil:
		profile = &loaded
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return MemberStats{}, err
	}

	var aggregate sessionAggregate
	err = l.db.WithContext(ctx).
		Model(&sessions.StudySession{}).
		Select("COALESCE(SUM(COALESCE(xp_earned, 0)), 0) AS total_points, COUNT(*) AS total_sessions, MAX(started_at_s) AS last_started").
		Where("user_id = ?", userID).
		Scan(&aggregate).Error
	if err != nil {
		return MemberStats{}, err
	}

	stats := MemberStats{
		UserID:        userID,
		DisplayName:   users.PreferredNameOf(profile),
		TotalPoints:   aggregate.TotalPoints,
		TotalSessions: aggregate.TotalSessions,
		LastActive:    NeverActive,
	}
	if profile != nil {
		stats.PhotoURL = profile.PhotoURL
	}
	if aggregate.LastStarted != nil && aggregate.TotalSessions > 0 {
		stats.LastActive = time.Unix(*aggregate.LastStarted, 0).UTC()
	}
	return stats, nil
}

// GetRoomLeaderboard ranks the members of a room by total points, highest first, ties by
// user ID. Members are loaded concurrently up to the configured limit. A member whose data
// cannot be loaded is listed in Skipped instead of failing the whole read.
func (s *Service) GetRoomLeaderboard(ctx context.Context, roomID string) (Leaderboard, error) {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return Leaderboard{}, err
	}

	var memberIDs []string
	err = s.db.WithContext(ctx).
		Model(&Membership{}).
		Where("room_id = ?", room.RoomID).
		Pluck("user_id", &memberIDs).Error
	if err != nil {
		s.logError(opGetLeaderboard, reasonQueryFailed, err, zap.String("room_id", room.RoomID))
		return Leaderboard{}, newStorageError(opGetLeaderboard, reasonQueryFailed, err)
	}

	board := Leaderboard{
		RoomID:  room.RoomID,
		Entries: make([]MemberStats, 0, len(memberIDs)),
	}
	if len(memberIDs) == 0 {
		return board, nil
	}

	var (
		mutex   sync.Mutex
		skipped []string
	)
	group, groupCtx := errgroup.WithContext(ctx)
	// Caps in-flight member loads. A single-connection store still runs them one at a time.
	group.SetLimit(s.concurrency)
	for _, memberID := range memberIDs {
		memberID := memberID
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return groupCtx.Err()
			}
			stats, loadErr := s.statsLoader.LoadMemberStats(groupCtx, memberID)
			mutex.Lock()
			defer mutex.Unlock()
			if loadErr != nil {
				s.loggerOrDefault().Warn("leaderboard member skipped",
					zap.String("room_id", room.RoomID),
					zap.String("user_id", memberID),
					zap.Error(loadErr))
				skipped = append(skipped, memberID)
				return nil
			}
			board.Entries = append(board.Entries, stats)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Leaderboard{}, err
	}
	if err := ctx.Err(); err != nil {
		return Leaderboard{}, err
	}

	sortStandings(board.Entries)
	if len(skipped) > 0 {
		sort.Strings(skipped)
		board.Skipped = skipped
	}
	return board, nil
}

func sortStandings(entries []MemberStats) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].TotalPoints != entries[j].TotalPoints {
			return entries[i].TotalPoints > entries[j].TotalPoints
		}
		return entries[i].UserID < entries[j].UserID
	})
}
