package consumers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/circles-chat/circles/rooms"
	"github.com/circles-chat/circles/session/api"
	"github.com/circles-chat/circles/spaces"
	"github.com/circles-chat/circles/test"
)

type fixture struct {
	me       *test.User
	sess     *test.Session
	registry *rooms.Registry
	root     *test.Room
	circle   *test.Room
	wall     *test.Room
	stream   *spaces.SocialStream
	consumer *RoomEventConsumer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	me := test.NewUser(t)
	root := test.NewRoom(t, me, test.RoomType(api.RoomTypeSpace), test.RoomName("Circles"))
	circle := test.NewRoom(t, me, test.RoomType(api.RoomTypeSpace), test.RoomName("Friends"))
	wall := test.NewRoom(t, me, test.RoomType(api.RoomTypeTimeline))
	root.AddChild(t, me, circle.ID)
	circle.AddChild(t, me, wall.ID)
	sess := test.NewSession(t, me, root, circle, wall)
	registry := rooms.NewRegistry(sess, nil)

	stream, err := spaces.LoadSocialStream(context.Background(), sess, registry, root.ID)
	require.NoError(t, err)
	consumer := NewRoomEventConsumer(registry)
	consumer.SetStream(stream)
	return &fixture{
		me: me, sess: sess, registry: registry,
		root: root, circle: circle, wall: wall,
		stream: stream, consumer: consumer,
	}
}

func TestTimelineEventsReachRooms(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	post := f.wall.Post(t, f.me, "hello")

	err := f.consumer.OnRoomUpdate(ctx, f.wall.ID, &api.RoomUpdate{
		Timeline:  []api.ClientEvent{post},
		Limited:   true,
		PrevBatch: "p1",
	})
	require.NoError(t, err)

	room, ok := f.registry.Get(f.wall.ID)
	require.True(t, ok)
	require.Len(t, room.Messages(), 1)
	assert.Equal(t, post.EventID, room.Messages()[0].EventID)
	assert.Equal(t, "p1", room.PrevBatch())
	assert.True(t, room.CanPaginate())

	feed := f.stream.Feed(ctx, room.Messages()[0].Timestamp)
	require.Len(t, feed, 1)
	assert.Equal(t, post.EventID, feed[0].EventID)
}

func TestPrevBatchKeptWhenNotLimited(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.wall.Post(t, f.me, "first")
	require.NoError(t, f.consumer.OnRoomUpdate(ctx, f.wall.ID, &api.RoomUpdate{
		Timeline:  []api.ClientEvent{first},
		PrevBatch: "p1",
	}))
	second := f.wall.Post(t, f.me, "second")
	require.NoError(t, f.consumer.OnRoomUpdate(ctx, f.wall.ID, &api.RoomUpdate{
		Timeline:  []api.ClientEvent{second},
		PrevBatch: "p2",
	}))

	room, _ := f.registry.Get(f.wall.ID)
	assert.Equal(t, "p1", room.PrevBatch())
	assert.Len(t, room.Messages(), 2)
}

func TestSpaceChildEventsReachContainers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bob := test.NewUser(t)
	bobs := test.NewRoom(t, bob, test.RoomType(api.RoomTypeTimeline))
	f.sess.AddRoom(bobs)

	added := f.circle.AddChild(t, f.me, bobs.ID)
	require.NoError(t, f.consumer.OnRoomUpdate(ctx, f.circle.ID, &api.RoomUpdate{
		Timeline: []api.ClientEvent{added},
	}))
	circle, ok := f.stream.Circle(f.circle.ID)
	require.True(t, ok)
	assert.Equal(t, []string{bob.ID}, circle.Following())

	family := test.NewRoom(t, f.me, test.RoomType(api.RoomTypeSpace), test.RoomName("Family"))
	f.sess.AddRoom(family)
	newCircle := f.root.AddChild(t, f.me, family.ID)
	require.NoError(t, f.consumer.OnRoomUpdate(ctx, f.root.ID, &api.RoomUpdate{
		State: []api.ClientEvent{newCircle},
	}))
	assert.Len(t, f.stream.Circles(), 2)

	removed := f.circle.RemoveChild(t, f.me, bobs.ID)
	require.NoError(t, f.consumer.OnRoomUpdate(ctx, f.circle.ID, &api.RoomUpdate{
		Timeline: []api.ClientEvent{removed},
	}))
	assert.Empty(t, circle.Following())
}

func TestUnknownAndLeftRooms(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	stranger := test.NewRoom(t, test.NewUser(t))

	require.NoError(t, f.consumer.OnRoomUpdate(ctx, stranger.ID, &api.RoomUpdate{
		State: stranger.CurrentState(),
	}))
	_, ok := f.registry.Get(stranger.ID)
	assert.False(t, ok)

	require.NoError(t, f.consumer.OnLeaveRoom(ctx, f.wall.ID))
	_, ok = f.registry.Get(f.wall.ID)
	assert.False(t, ok)
}
