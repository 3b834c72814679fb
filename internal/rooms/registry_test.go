package rooms

import (
	"context"
	"errors"
	"testing"
)

func TestCreateRoomInsertsRoomAndCreatorMembership(t *testing.T) {
	service, db := newTestService(t, []string{"room-1"}, []string{"ab12cd"})

	room, err := service.CreateRoom(context.Background(), "user-1", "  Night owls  ", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if room.RoomID != "room-1" {
		t.Fatalf("unexpected room id %s", room.RoomID)
	}
	if room.ShortID != "AB12CD" {
		t.Fatalf("expected upper-cased short id, got %s", room.ShortID)
	}
	if room.Name != "Night owls" {
		t.Fatalf("expected trimmed name, got %q", room.Name)
	}
	if room.Icon != DefaultRoomIcon {
		t.Fatalf("expected default icon, got %q", room.Icon)
	}
	if room.CreatedBy != "user-1" || room.CreatedAtSeconds != testClockSeconds {
		t.Fatalf("unexpected creation metadata: %+v", room)
	}

	var memberships []Membership
	if err := db.Where("room_id = ?", "room-1").Find(&memberships).Error; err != nil {
		t.Fatalf("failed to load memberships: %v", err)
	}
	if len(memberships) != 1 || memberships[0].UserID != "user-1" {
		t.Fatalf("expected creator membership, got %+v", memberships)
	}
}

func TestCreateRoomRetriesShortIDCollision(t *testing.T) {
	service, _ := newTestService(t, []string{"room-1", "room-2"}, []string{"AAAAAA", "AAAAAA", "BBBBBB"})

	first := mustCreateRoom(t, service, "user-1", "First")
	second := mustCreateRoom(t, service, "user-2", "Second")

	if first.ShortID != "AAAAAA" {
		t.Fatalf("unexpected first short id %s", first.ShortID)
	}
	if second.ShortID != "BBBBBB" {
		t.Fatalf("expected retry to pick the next short id, got %s", second.ShortID)
	}
}

func TestCreateRoomGivesUpAfterRepeatedCollisions(t *testing.T) {
	shortIDs := []string{"AAAAAA"}
	for attempt := 0; attempt < maxShortIDAttempts; attempt++ {
		shortIDs = append(shortIDs, "AAAAAA")
	}
	service, db := newTestService(t, []string{"room-1", "room-2"}, shortIDs)
	mustCreateRoom(t, service, "user-1", "First")

	_, err := service.CreateRoom(context.Background(), "user-2", "Second", "")
	requireCode(t, err, "rooms.create_room.short_id_exhausted")

	var count int64
	if err := db.Model(&Membership{}).Where("room_id = ?", "room-2").Count(&count).Error; err != nil {
		t.Fatalf("failed to count memberships: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected failed creation to leave no membership, got %d", count)
	}
}

func TestCreateRoomValidatesInput(t *testing.T) {
	longName := make([]rune, maxRoomNameLength+1)
	for index := range longName {
		longName[index] = 'a'
	}
	testCases := []struct {
		name    string
		userID  string
		room    string
		icon    string
		wantErr error
	}{
		{name: "missing-user", userID: " ", room: "Room", wantErr: ErrInvalidUserID},
		{name: "empty-name", userID: "user-1", room: "   ", wantErr: ErrInvalidRoomName},
		{name: "long-name", userID: "user-1", room: string(longName), wantErr: ErrInvalidRoomName},
		{name: "long-icon", userID: "user-1", room: "Room", icon: "abcdefghijklmnopq", wantErr: ErrInvalidIcon},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			service, _ := newTestService(t, []string{"room-1"}, []string{"AAAAAA"})
			_, err := service.CreateRoom(context.Background(), testCase.userID, testCase.room, testCase.icon)
			if !errors.Is(err, testCase.wantErr) {
				t.Fatalf("expected %v, got %v", testCase.wantErr, err)
			}
			requireCode(t, err, "rooms.create_room.invalid_input")
		})
	}
}

func TestResolveShortIDFindsRoomCaseInsensitively(t *testing.T) {
	service, _ := newTestService(t, []string{"room-1"}, []string{"QWE123"})
	mustCreateRoom(t, service, "user-1", "Room")

	roomID, found, err := service.ResolveShortID(context.Background(), " qwe123 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found || roomID != "room-1" {
		t.Fatalf("expected room-1, got %q found=%v", roomID, found)
	}
}

func TestResolveShortIDReportsAbsenceWithoutError(t *testing.T) {
	service, _ := newTestService(t, nil, nil)

	roomID, found, err := service.ResolveShortID(context.Background(), "ZZZZZZ")
	if err != nil {
		t.Fatalf("expected no error for unknown short id, got %v", err)
	}
	if found || roomID != "" {
		t.Fatalf("expected not found, got %q", roomID)
	}
}

func TestResolveRoomReferenceAcceptsShortAndCanonicalIDs(t *testing.T) {
	service, _ := newTestService(t, []string{"0199f0a4-room"}, []string{"JOIN42"})
	mustCreateRoom(t, service, "user-1", "Room")

	for _, reference := range []string{"join42", "0199f0a4-room"} {
		roomID, err := service.ResolveRoomReference(context.Background(), reference)
		if err != nil {
			t.Fatalf("reference %q: unexpected error: %v", reference, err)
		}
		if roomID != "0199f0a4-room" {
			t.Fatalf("reference %q: unexpected room id %s", reference, roomID)
		}
	}

	_, err := service.ResolveRoomReference(context.Background(), "NOPE99")
	if !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateRoomMetadataLeavesOmittedFieldsUntouched(t *testing.T) {
	service, _ := newTestService(t, []string{"room-1"}, []string{"AAAAAA"})
	mustCreateRoom(t, service, "user-1", "Deep work")

	if err := service.UpdateRoomMetadata(context.Background(), "room-1", MetadataUpdate{Icon: stringPointer("🔥")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	room, err := service.GetRoom(context.Background(), "room-1")
	if err != nil {
		t.Fatalf("failed to load room: %v", err)
	}
	if room.Name != "Deep work" {
		t.Fatalf("expected name to stay, got %q", room.Name)
	}
	if room.Icon != "🔥" {
		t.Fatalf("expected icon update, got %q", room.Icon)
	}

	if err := service.UpdateRoomMetadata(context.Background(), "room-1", MetadataUpdate{Name: stringPointer("Shallow work")}); err != nil {
		t.Fatalf("unexpected error on rename: %v", err)
	}
	room, _ = service.GetRoom(context.Background(), "room-1")
	if room.Name != "Shallow work" || room.Icon != "🔥" {
		t.Fatalf("unexpected room after rename: %+v", room)
	}
}

func TestUpdateRoomMetadataRejectsUnknownRoom(t *testing.T) {
	service, _ := newTestService(t, nil, nil)

	err := service.UpdateRoomMetadata(context.Background(), "missing", MetadataUpdate{Name: stringPointer("x")})
	if !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	err = service.UpdateRoomMetadata(context.Background(), "missing", MetadataUpdate{})
	if !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected not found for empty update, got %v", err)
	}
}

func TestInvitePreviewCountsMembers(t *testing.T) {
	service, _ := newTestService(t, []string{"room-1"}, []string{"INVITE"})
	mustCreateRoom(t, service, "user-1", "Room")
	mustJoin(t, service, "user-2", "room-1")

	preview, err := service.InvitePreview(context.Background(), "invite")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if preview.Room.RoomID != "room-1" || preview.MemberCount != 2 {
		t.Fatalf("unexpected preview: %+v", preview)
	}

	_, err = service.InvitePreview(context.Background(), "NONE00")
	requireCode(t, err, "rooms.invite_preview.room_not_found")
}

func TestRegistryReportsMissingDatabase(t *testing.T) {
	service := &Service{}

	_, err := service.CreateRoom(context.Background(), "user-1", "Room", "")
	requireCode(t, err, "rooms.create_room.missing_database")

	_, _, err = service.ResolveShortID(context.Background(), "AAAAAA")
	requireCode(t, err, "rooms.resolve_short_id.missing_database")
}

func TestRandomShortIDGeneratorUsesAlphabet(t *testing.T) {
	generator := NewRandomShortIDGenerator()
	for iteration := 0; iteration < 50; iteration++ {
		value, err := generator.NewShortID()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(value) != ShortIDLength {
			t.Fatalf("expected %d characters, got %q", ShortIDLength, value)
		}
		for _, character := range value {
			if !(character >= '0' && character <= '9') && !(character >= 'A' && character <= 'Z') {
				t.Fatalf("unexpected character %q in %q", character, value)
			}
		}
	}
}
