package rooms

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateRoom inserts a room with a fresh short ID and makes the creator its first member.
// Both rows are written in one transaction.
func (s *Service) CreateRoom(ctx context.Context, userID, name, icon string) (Room, error) {
	if err := s.missingDatabase(opCreateRoom); err != nil {
		return Room{}, err
	}

	creatorID, err := validateIdentifier(userID, ErrInvalidUserID)
	if err != nil {
		return Room{}, newServiceError(opCreateRoom, reasonInvalidInput, err)
	}
	roomName, err := validateRoomName(name)
	if err != nil {
		return Room{}, newServiceError(opCreateRoom, reasonInvalidInput, err)
	}
	roomIcon, err := validateRoomIcon(icon)
	if err != nil {
		return Room{}, newServiceError(opCreateRoom, reasonInvalidInput, err)
	}

	roomID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateRoom, reasonIDFailed, err, zap.String("user_id", creatorID))
		return Room{}, newServiceError(opCreateRoom, reasonIDFailed, err)
	}

	now := s.nowSeconds()
	room := Room{
		RoomID:           roomID,
		Name:             roomName,
		Icon:             roomIcon,
		CreatedBy:        creatorID,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		shortID, err := s.allocateShortID(tx)
		if err != nil {
			return err
		}
		room.ShortID = shortID

		if err := tx.Create(&room).Error; err != nil {
			s.logError(opCreateRoom, reasonInsertFailed, err, zap.String("room_id", roomID))
			return newStorageError(opCreateRoom, reasonInsertFailed, err)
		}
		membership := Membership{RoomID: roomID, UserID: creatorID, JoinedAtSeconds: now}
		if err := tx.Create(&membership).Error; err != nil {
			s.logError(opCreateRoom, reasonInsertFailed, err, zap.String("room_id", roomID), zap.String("user_id", creatorID))
			return newStorageError(opCreateRoom, reasonInsertFailed, err)
		}
		return nil
	})
	if txErr != nil {
		return Room{}, txErr
	}

	s.loggerOrDefault().Info("room created",
		zap.String("room_id", room.RoomID),
		zap.String("short_id", room.ShortID),
		zap.String("user_id", creatorID))
	return room, nil
}

// allocateShortID draws candidates until one is unused. The unique index on short_id backs this check.
func (s *Service) allocateShortID(tx *gorm.DB) (string, error) {
	for attempt := 1; attempt <= maxShortIDAttempts; attempt++ {
		candidate, err := s.shortIDs.NewShortID()
		if err != nil {
			s.logError(opCreateRoom, reasonShortIDFailed, err)
			return "", newServiceError(opCreateRoom, reasonShortIDFailed, err)
		}
		candidate = NormalizeShortID(candidate)

		var count int64
		if err := tx.Model(&Room{}).Where("short_id = ?", candidate).Count(&count).Error; err != nil {
			s.logError(opCreateRoom, reasonQueryFailed, err, zap.String("short_id", candidate))
			return "", newStorageError(opCreateRoom, reasonQueryFailed, err)
		}
		if count == 0 {
			return candidate, nil
		}
		s.loggerOrDefault().Warn("short id collision",
			zap.String("short_id", candidate),
			zap.Int("attempt", attempt))
	}
	err := fmt.Errorf("no free short id after %d attempts", maxShortIDAttempts)
	s.logError(opCreateRoom, reasonShortIDExhaust, err)
	return "", newServiceError(opCreateRoom, reasonShortIDExhaust, err)
}

// ResolveShortID maps a short ID onto its room ID. A miss is reported as found=false, not as an error.
func (s *Service) ResolveShortID(ctx context.Context, shortID string) (string, bool, error) {
	if err := s.missingDatabase(opResolveShortID); err != nil {
		return "", false, err
	}
	normalized := NormalizeShortID(shortID)
	if normalized == "" {
		return "", false, nil
	}

	var room Room
	err := s.db.WithContext(ctx).
		Select("room_id").
		Where("short_id = ?", normalized).
		Limit(1).
		Take(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		s.logError(opResolveShortID, reasonQueryFailed, err, zap.String("short_id", normalized))
		return "", false, newStorageError(opResolveShortID, reasonQueryFailed, err)
	}
	return room.RoomID, true, nil
}

// ResolveRoomReference accepts either a short ID or a room ID. Short references are tried as
// short IDs first and fall back to a room ID lookup.
func (s *Service) ResolveRoomReference(ctx context.Context, reference string) (string, error) {
	trimmed, err := validateIdentifier(reference, ErrInvalidRoomID)
	if err != nil {
		return "", newServiceError(opResolveReference, reasonInvalidInput, err)
	}

	if len(trimmed) <= maxShortReferenceLength {
		roomID, found, err := s.ResolveShortID(ctx, trimmed)
		if err != nil {
			return "", err
		}
		if found {
			return roomID, nil
		}
	}

	room, err := s.GetRoom(ctx, trimmed)
	if err != nil {
		return "", err
	}
	return room.RoomID, nil
}

// UpdateRoomMetadata changes the provided fields only. Authorization is the caller's concern;
// see Policy.
func (s *Service) UpdateRoomMetadata(ctx context.Context, roomID string, update MetadataUpdate) error {
	if err := s.missingDatabase(opUpdateMetadata); err != nil {
		return err
	}
	id, err := validateIdentifier(roomID, ErrInvalidRoomID)
	if err != nil {
		return newServiceError(opUpdateMetadata, reasonInvalidInput, err)
	}

	updates := map[string]interface{}{}
	if update.Name != nil {
		name, err := validateRoomName(*update.Name)
		if err != nil {
			return newServiceError(opUpdateMetadata, reasonInvalidInput, err)
		}
		updates["name"] = name
	}
	if update.Icon != nil {
		icon, err := validateRoomIcon(*update.Icon)
		if err != nil {
			return newServiceError(opUpdateMetadata, reasonInvalidInput, err)
		}
		updates["icon"] = icon
	}

	if len(updates) == 0 {
		_, err := s.GetRoom(ctx, id)
		return err
	}
	updates["updated_at_s"] = s.nowSeconds()

	result := s.db.WithContext(ctx).Model(&Room{}).Where("room_id = ?", id).Updates(updates)
	if result.Error != nil {
		s.logError(opUpdateMetadata, reasonUpdateFailed, result.Error, zap.String("room_id", id))
		return newStorageError(opUpdateMetadata, reasonUpdateFailed, result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opUpdateMetadata, reasonRoomNotFound, ErrRoomNotFound)
	}
	return nil
}

// GetRoom loads a room by its canonical identifier.
func (s *Service) GetRoom(ctx context.Context, roomID string) (Room, error) {
	if err := s.missingDatabase(opGetRoom); err != nil {
		return Room{}, err
	}
	id, err := validateIdentifier(roomID, ErrInvalidRoomID)
	if err != nil {
		return Room{}, newServiceError(opGetRoom, reasonInvalidInput, err)
	}

	var room Room
	err = s.db.WithContext(ctx).Where("room_id = ?", id).Take(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Room{}, newServiceError(opGetRoom, reasonRoomNotFound, ErrRoomNotFound)
	}
	if err != nil {
		s.logError(opGetRoom, reasonQueryFailed, err, zap.String("room_id", id))
		return Room{}, newStorageError(opGetRoom, reasonQueryFailed, err)
	}
	return room, nil
}

// InvitePreview resolves a short ID and reports the room with its member count.
func (s *Service) InvitePreview(ctx context.Context, shortID string) (InvitePreview, error) {
	roomID, found, err := s.ResolveShortID(ctx, shortID)
	if err != nil {
		return InvitePreview{}, err
	}
	if !found {
		return InvitePreview{}, newServiceError(opInvitePreview, reasonRoomNotFound, ErrRoomNotFound)
	}

	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return InvitePreview{}, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&Membership{}).Where("room_id = ?", roomID).Count(&count).Error; err != nil {
		s.logError(opInvitePreview, reasonQueryFailed, err, zap.String("room_id", roomID))
		return InvitePreview{}, newStorageError(opInvitePreview, reasonQueryFailed, err)
	}
	return InvitePreview{Room: room, MemberCount: count}, nil
}
