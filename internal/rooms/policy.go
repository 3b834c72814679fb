package rooms

import (
	"context"
	"strings"
)

// Policy decides whether an actor may act on a room.
type Policy interface {
	AuthorizeUpdate(ctx context.Context, actorID, roomID string) error
	AuthorizeView(ctx context.Context, actorID, roomID string) error
}

// MembershipPolicy lets the creator edit a room and its members read it.
type MembershipPolicy struct {
	service *Service
}

func NewMembershipPolicy(service *Service) *MembershipPolicy {
	return &MembershipPolicy{service: service}
}

// AuthorizeUpdate returns ErrForbidden unless actorID created the room.
func (p *MembershipPolicy) AuthorizeUpdate(ctx context.Context, actorID, roomID string) error {
	room, err := p.service.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(actorID) != room.CreatedBy {
		return ErrForbidden
	}
	return nil
}

// AuthorizeView returns ErrForbidden unless actorID is a member. Unknown rooms report ErrRoomNotFound.
func (p *MembershipPolicy) AuthorizeView(ctx context.Context, actorID, roomID string) error {
	room, err := p.service.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	member, err := p.service.IsMember(ctx, actorID, room.RoomID)
	if err != nil {
		return err
	}
	if !member {
		return ErrForbidden
	}
	return nil
}
