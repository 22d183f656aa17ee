package spaces

import (
	"context"
	"time"

	"github.com/circles-chat/circles/rooms"
	"github.com/circles-chat/circles/session/api"
	"github.com/circles-chat/circles/timeline"
)

// CircleSpace is a circle: a space holding the timeline rooms of the people
// in it. The local user's own room in the circle is their wall.
//
// A CircleSpace is itself RoomLike, with the merged timeline of its children,
// so circles can be children of a SocialStream.
type CircleSpace struct {
	*TimelineSpace
}

var _ rooms.RoomLike = &CircleSpace{}

func NewCircleSpace(ctx context.Context, room *rooms.Room, session api.Session, registry *rooms.Registry) *CircleSpace {
	return &CircleSpace{
		TimelineSpace: NewTimelineSpace(ctx, room, session, registry),
	}
}

// Wall returns the first child created by the local user. If a circle
// somehow holds several, the earliest in child order wins.
func (s *CircleSpace) Wall() (*rooms.Room, bool) {
	self := s.session.UserID()
	for _, child := range s.Children() {
		if child.Creator() == self {
			return child, true
		}
	}
	return nil, false
}

// Followers returns the joined members of the wall other than the local user.
func (s *CircleSpace) Followers() []string {
	wall, ok := s.Wall()
	if !ok {
		return []string{}
	}
	self := s.session.UserID()
	members := wall.JoinedMembers()
	followers := make([]string, 0, len(members))
	for _, userID := range members {
		if userID != self {
			followers = append(followers, userID)
		}
	}
	return followers
}

// Following returns the creators of the other children, each once, in child
// order.
func (s *CircleSpace) Following() []string {
	self := s.session.UserID()
	seen := make(map[string]struct{})
	following := []string{}
	for _, child := range s.Children() {
		creator := child.Creator()
		if creator == "" || creator == self {
			continue
		}
		if _, ok := seen[creator]; ok {
			continue
		}
		seen[creator] = struct{}{}
		following = append(following, creator)
	}
	return following
}

func (s *CircleSpace) CanPaginate() bool {
	return s.CanPaginateRooms()
}

func (s *CircleSpace) Paginate(ctx context.Context, limit int) error {
	return s.PaginateRooms(ctx, limit)
}

// Messages returns the unfiltered merge of the children's timelines.
func (s *CircleSpace) Messages() []*rooms.Message {
	return timeline.Collate(s.Children(), time.Time{}, nil)
}
