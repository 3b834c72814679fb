package server

import (
	"context"
	"sync"
	"time"
)

const (
	RealtimeEventLeaderboardChanged = "leaderboard-change"
	RealtimeEventMembershipChanged  = "membership-change"
	RealtimeEventRoomUpdated        = "room-updated"
	realtimeEventHeartbeat          = "heartbeat"
	realtimeSourceBackend           = "pulse-backend"
	realtimeBufferSize              = 16
	realtimeHeartbeatInterval       = 25 * time.Second
)

// RealtimeMessage announces a change in one room. Subscribers refetch what they display.
type RealtimeMessage struct {
	RoomID    string
	EventType string
	UserID    string
	Timestamp time.Time
}

// RealtimeDispatcher fans room events out to stream subscribers. Slow subscribers lose
// events instead of blocking publishers. Streams are closed when their owner leaves the room.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	userID string
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  realtimeBufferSize,
	}
}

// Subscribe registers a stream of roomID for userID until ctx ends, the returned cleanup runs
// or Disconnect removes it. The channel is closed when the subscription ends.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, roomID, userID string) (<-chan RealtimeMessage, func()) {
	if roomID == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := d.registerSubscriber(roomID, userID)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(roomID, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Disconnect closes every stream userID holds on roomID and reports how many were closed.
func (d *RealtimeDispatcher) Disconnect(roomID, userID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	closed := 0
	for id, subscriber := range d.subscribers[roomID] {
		if subscriber.userID != userID {
			continue
		}
		d.removeLocked(roomID, id)
		closed++
	}
	return closed
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.RoomID == "" || message.EventType == "" {
		return
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}
	// Sends run under the read lock; streams are only closed under the write lock.
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, subscriber := range d.subscribers[message.RoomID] {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// PublishToRooms sends the same event to several rooms.
func (d *RealtimeDispatcher) PublishToRooms(roomIDs []string, eventType, userID string) {
	now := time.Now().UTC()
	for _, roomID := range roomIDs {
		d.Publish(RealtimeMessage{
			RoomID:    roomID,
			EventType: eventType,
			UserID:    userID,
			Timestamp: now,
		})
	}
}

// SubscriberCount reports the open streams for a room.
func (d *RealtimeDispatcher) SubscriberCount(roomID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[roomID])
}

func (d *RealtimeDispatcher) registerSubscriber(roomID, userID string) *realtimeSubscriber {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	subscriber := &realtimeSubscriber{
		id:     d.nextID,
		userID: userID,
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	if _, ok := d.subscribers[roomID]; !ok {
		d.subscribers[roomID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[roomID][subscriber.id] = subscriber
	return subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(roomID string, subscriberID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeLocked(roomID, subscriberID)
}

// removeLocked drops and closes one subscriber. Callers hold d.mu for writing.
func (d *RealtimeDispatcher) removeLocked(roomID string, subscriberID int64) {
	subscribers := d.subscribers[roomID]
	subscriber, ok := subscribers[subscriberID]
	if !ok {
		return
	}
	delete(subscribers, subscriberID)
	close(subscriber.stream)
	if len(subscribers) == 0 {
		delete(d.subscribers, roomID)
	}
}
