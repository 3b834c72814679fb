package rooms

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"
)

// JoinRoom adds userID to the room. The insert is keyed by (room, user) and ignores conflicts,
// so repeated and concurrent joins leave exactly one membership. changed is false when the
// user already belonged to the room.
func (s *Service) JoinRoom(ctx context.Context, userID, roomID string) (bool, error) {
	if err := s.missingDatabase(opJoinRoom); err != nil {
		return false, err
	}
	memberID, err := validateIdentifier(userID, ErrInvalidUserID)
	if err != nil {
		return false, newServiceError(opJoinRoom, reasonInvalidInput, err)
	}
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return false, err
	}

	membership := Membership{
		RoomID:          room.RoomID,
		UserID:          memberID,
		JoinedAtSeconds: s.nowSeconds(),
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&membership)
	if result.Error != nil {
		s.logError(opJoinRoom, reasonInsertFailed, result.Error, zap.String("room_id", room.RoomID), zap.String("user_id", memberID))
		return false, newStorageError(opJoinRoom, reasonInsertFailed, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// LeaveRoom removes the membership if present. Leaving a room the user is not in is not an error.
func (s *Service) LeaveRoom(ctx context.Context, userID, roomID string) (bool, error) {
	if err := s.missingDatabase(opLeaveRoom); err != nil {
		return false, err
	}
	memberID, err := validateIdentifier(userID, ErrInvalidUserID)
	if err != nil {
		return false, newServiceError(opLeaveRoom, reasonInvalidInput, err)
	}
	id, err := validateIdentifier(roomID, ErrInvalidRoomID)
	if err != nil {
		return false, newServiceError(opLeaveRoom, reasonInvalidInput, err)
	}

	result := s.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", id, memberID).
		Delete(&Membership{})
	if result.Error != nil {
		s.logError(opLeaveRoom, reasonDeleteFailed, result.Error, zap.String("room_id", id), zap.String("user_id", memberID))
		return false, newStorageError(opLeaveRoom, reasonDeleteFailed, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ListUserRooms returns the rooms userID belongs to, oldest membership first.
func (s *Service) ListUserRooms(ctx context.Context, userID string) ([]RoomSummary, error) {
	if err := s.missingDatabase(opListUserRooms); err != nil {
		return nil, err
	}
	memberID, err := validateIdentifier(userID, ErrInvalidUserID)
	if err != nil {
		return nil, newServiceError(opListUserRooms, reasonInvalidInput, err)
	}

	summaries := make([]RoomSummary, 0)
	err = s.db.WithContext(ctx).
		Table("room_members").
		Select("rooms.room_id, rooms.name, rooms.icon").
		Joins("JOIN rooms ON rooms.room_id = room_members.room_id").
		Where("room_members.user_id = ?", memberID).
		Order("room_members.joined_at_s ASC").
		Order("rooms.room_id ASC").
		Scan(&summaries).Error
	if err != nil {
		s.logError(opListUserRooms, reasonQueryFailed, err, zap.String("user_id", memberID))
		return nil, newStorageError(opListUserRooms, reasonQueryFailed, err)
	}
	return summaries, nil
}

// ListMembers returns the memberships of a room in join order.
func (s *Service) ListMembers(ctx context.Context, roomID string) ([]Membership, error) {
	if err := s.missingDatabase(opListMembers); err != nil {
		return nil, err
	}
	id, err := validateIdentifier(roomID, ErrInvalidRoomID)
	if err != nil {
		return nil, newServiceError(opListMembers, reasonInvalidInput, err)
	}

	members := make([]Membership, 0)
	err = s.db.WithContext(ctx).
		Where("room_id = ?", id).
		Order("joined_at_s ASC").
		Order("user_id ASC").
		Find(&members).Error
	if err != nil {
		s.logError(opListMembers, reasonQueryFailed, err, zap.String("room_id", id))
		return nil, newStorageError(opListMembers, reasonQueryFailed, err)
	}
	return members, nil
}

// IsMember reports whether userID currently belongs to the room.
func (s *Service) IsMember(ctx context.Context, userID, roomID string) (bool, error) {
	if err := s.missingDatabase(opIsMember); err != nil {
		return false, err
	}
	memberID, err := validateIdentifier(userID, ErrInvalidUserID)
	if err != nil {
		return false, newServiceError(opIsMember, reasonInvalidInput, err)
	}
	id, err := validateIdentifier(roomID, ErrInvalidRoomID)
	if err != nil {
		return false, newServiceError(opIsMember, reasonInvalidInput, err)
	}

	var count int64
	err = s.db.WithContext(ctx).
		Model(&Membership{}).
		Where("room_id = ? AND user_id = ?", id, memberID).
		Count(&count).Error
	if err != nil {
		s.logError(opIsMember, reasonQueryFailed, err, zap.String("room_id", id), zap.String("user_id", memberID))
		return false, newStorageError(opIsMember, reasonQueryFailed, err)
	}
	return count > 0, nil
}

// MemberRoomIDs lists the room IDs userID belongs to. Used to fan realtime events out after
// a user's standings change.
func (s *Service) MemberRoomIDs(ctx context.Context, userID string) ([]string, error) {
	summaries, err := s.ListUserRooms(ctx, userID)
	if err != nil {
		return nil, err
	}
	roomIDs := make([]string, 0, len(summaries))
	for _, summary := range summaries {
		roomIDs = append(roomIDs, summary.RoomID)
	}
	return roomIDs, nil
}
