package spaces

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/circles-chat/circles/rooms"
	"github.com/circles-chat/circles/session/api"
	"github.com/circles-chat/circles/timeline"
)

// DefaultSweepConcurrency bounds how many rooms PaginateEmptyTimelines
// fetches from at once.
const DefaultSweepConcurrency = 4

// TimelineSpace is a space whose children are plain rooms with timelines.
type TimelineSpace struct {
	*ContainerRoom[*rooms.Room]
	// SweepConcurrency defaults to DefaultSweepConcurrency when zero.
	SweepConcurrency int
}

// RegistryChildren returns a ChildFactory that resolves child rooms through
// the registry, so every space sees the same *rooms.Room for a given ID.
func RegistryChildren(registry *rooms.Registry) ChildFactory[*rooms.Room] {
	return func(ctx context.Context, roomID string, state []api.ClientEvent) (*rooms.Room, error) {
		return registry.Load(ctx, roomID, state)
	}
}

func NewTimelineSpace(ctx context.Context, room *rooms.Room, session api.Session, registry *rooms.Registry) *TimelineSpace {
	return &TimelineSpace{
		ContainerRoom: NewContainerRoom(ctx, room, session, RegistryChildren(registry)),
	}
}

// CanPaginateRooms reports whether any child has older history to fetch.
func (s *TimelineSpace) CanPaginateRooms() bool {
	return canPaginateAny(s.Children())
}

// LastFirstRoom returns the child to paginate next.
func (s *TimelineSpace) LastFirstRoom() (*rooms.Room, bool) {
	return timeline.LastFirstRoom(s.Children())
}

// PaginateRooms fetches older history for the child returned by
// LastFirstRoom. It does nothing if no child can paginate.
func (s *TimelineSpace) PaginateRooms(ctx context.Context, limit int) error {
	return paginateLastFirst(ctx, s.Children(), limit)
}

// PaginateEmptyTimelines makes one pagination request for every child that
// has no posts loaded yet. A failing room doesn't stop the others; all
// failures are returned together.
func (s *TimelineSpace) PaginateEmptyTimelines(ctx context.Context, limit int) error {
	return paginateEmpty(ctx, s.Children(), limit, s.SweepConcurrency)
}

// GetCollatedTimeline merges the children's timelines, see timeline.Collate.
func (s *TimelineSpace) GetCollatedTimeline(since time.Time, filter timeline.Filter) []*rooms.Message {
	msgs := timeline.Collate(s.Children(), since, filter)
	collatedTimelineSize.Observe(float64(len(msgs)))
	return msgs
}

// UnreadCount returns the number of unread posts across all children.
func (s *TimelineSpace) UnreadCount() int {
	self := s.session.UserID()
	n := 0
	for _, child := range s.Children() {
		n += child.UnreadCount(self)
	}
	return n
}

func canPaginateAny[R rooms.RoomLike](rs []R) bool {
	for _, r := range rs {
		if r.CanPaginate() {
			return true
		}
	}
	return false
}

func paginateLastFirst[R rooms.RoomLike](ctx context.Context, rs []R, limit int) error {
	room, ok := timeline.LastFirstRoom(rs)
	if !ok {
		return nil
	}
	err := room.Paginate(ctx, limit)
	observePagination(err)
	return err
}

func paginateEmpty(ctx context.Context, rs []*rooms.Room, limit, concurrency int) error {
	if concurrency <= 0 {
		concurrency = DefaultSweepConcurrency
	}
	var (
		g      errgroup.Group
		result *multierror.Error
		mu     sync.Mutex
	)
	g.SetLimit(concurrency)
	for _, room := range rs {
		if room.ContentCount() > 0 {
			continue
		}
		room := room
		g.Go(func() error {
			err := room.Paginate(ctx, limit)
			observePagination(err)
			if err != nil {
				logrus.WithError(err).WithField("room_id", room.RoomID()).Warn("Failed to paginate empty timeline")
				mu.Lock()
				result = multierror.Append(result, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return result.ErrorOrNil()
}
