package server

import (
	"context"
	"testing"
	"time"
)

func TestRealtimeDispatcherPublishesToSubscriber(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "room-1", "viewer")
	defer cleanup()

	dispatcher.Publish(RealtimeMessage{
		RoomID:    "room-1",
		EventType: RealtimeEventLeaderboardChanged,
		UserID:    "user-1",
		Timestamp: time.Now().UTC(),
	})

	select {
	case received := <-stream:
		if received.EventType != RealtimeEventLeaderboardChanged {
			t.Fatalf("expected event type %s, got %s", RealtimeEventLeaderboardChanged, received.EventType)
		}
		if received.UserID != "user-1" {
			t.Fatalf("expected user-1, got %s", received.UserID)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message within deadline")
	}
}

func TestRealtimeDispatcherIsolatedByRoom(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otherCtx, otherCancel := context.WithCancel(context.Background())
	defer otherCancel()

	roomStream, cleanup := dispatcher.Subscribe(ctx, "room-2", "viewer")
	defer cleanup()

	otherStream, otherCleanup := dispatcher.Subscribe(otherCtx, "room-3", "viewer")
	defer otherCleanup()

	dispatcher.PublishToRooms([]string{"room-3"}, RealtimeEventMembershipChanged, "user-9")

	select {
	case <-roomStream:
		t.Fatal("did not expect realtime message for unrelated room")
	case <-time.After(200 * time.Millisecond):
	}

	select {
	case msg := <-otherStream:
		if msg.RoomID != "room-3" {
			t.Fatalf("expected room-3, received %s", msg.RoomID)
		}
		if msg.Timestamp.IsZero() {
			t.Fatalf("expected timestamp to be set")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message for subscribed room")
	}
}

func TestRealtimeDispatcherDropsWhenBufferFull(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "room-1", "viewer")
	defer cleanup()

	for index := 0; index < realtimeBufferSize*2; index++ {
		dispatcher.Publish(RealtimeMessage{RoomID: "room-1", EventType: RealtimeEventRoomUpdated})
	}

	if len(stream) != realtimeBufferSize {
		t.Fatalf("expected buffer to hold %d messages, got %d", realtimeBufferSize, len(stream))
	}
}

func TestRealtimeDispatcherUnsubscribesOnCancel(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())

	_, cleanup := dispatcher.Subscribe(ctx, "room-1", "viewer")
	defer cleanup()
	if dispatcher.SubscriberCount("room-1") != 1 {
		t.Fatalf("expected one subscriber")
	}

	cancel()
	deadline := time.Now().Add(time.Second)
	for dispatcher.SubscriberCount("room-1") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected subscriber to be removed after cancellation")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRealtimeDispatcherIgnoresEmptyRoom(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()

	stream, cleanup := dispatcher.Subscribe(context.Background(), "", "viewer")
	defer cleanup()

	if _, open := <-stream; open {
		t.Fatalf("expected closed stream for empty room id")
	}
}

func TestRealtimeDispatcherDisconnectClosesOnlyThatUsersStreams(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	leaverStream, leaverCleanup := dispatcher.Subscribe(ctx, "room-1", "leaver")
	defer leaverCleanup()
	secondTab, secondCleanup := dispatcher.Subscribe(ctx, "room-1", "leaver")
	defer secondCleanup()
	stayerStream, stayerCleanup := dispatcher.Subscribe(ctx, "room-1", "stayer")
	defer stayerCleanup()
	otherRoom, otherCleanup := dispatcher.Subscribe(ctx, "room-2", "leaver")
	defer otherCleanup()

	if closed := dispatcher.Disconnect("room-1", "leaver"); closed != 2 {
		t.Fatalf("expected two streams closed, got %d", closed)
	}
	for _, stream := range []<-chan RealtimeMessage{leaverStream, secondTab} {
		if _, open := <-stream; open {
			t.Fatalf("expected leaver stream to be closed")
		}
	}

	dispatcher.PublishToRooms([]string{"room-1", "room-2"}, RealtimeEventLeaderboardChanged, "stayer")
	for name, stream := range map[string]<-chan RealtimeMessage{"stayer": stayerStream, "other-room": otherRoom} {
		select {
		case message, open := <-stream:
			if !open || message.EventType != RealtimeEventLeaderboardChanged {
				t.Fatalf("%s: unexpected message %+v open=%v", name, message, open)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("%s: expected message within deadline", name)
		}
	}
	if dispatcher.SubscriberCount("room-1") != 1 {
		t.Fatalf("expected one remaining subscriber, got %d", dispatcher.SubscriberCount("room-1"))
	}
}
