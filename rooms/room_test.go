package rooms_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/circles-chat/circles/rooms"
	"github.com/circles-chat/circles/session/api"
	"github.com/circles-chat/circles/test"
)

func newRoom(t *testing.T, sess *test.Session, r *test.Room) *rooms.Room {
	t.Helper()
	room, err := rooms.New(r.ID, sess, r.CurrentState(), nil)
	require.NoError(t, err)
	return room
}

func TestNewRoomRequiresCreateEvent(t *testing.T) {
	alice := test.NewUser(t)
	r := test.NewRoom(t, alice)

	var state []api.ClientEvent
	for _, ev := range r.CurrentState() {
		if ev.Type != "m.room.create" {
			state = append(state, ev)
		}
	}
	_, err := rooms.New(r.ID, nil, state, nil)
	assert.ErrorIs(t, err, rooms.ErrNoCreateEvent)

	_, err = rooms.New("not-a-room-id", nil, r.CurrentState(), nil)
	assert.Error(t, err)
}

func TestRoomState(t *testing.T) {
	alice := test.NewUser(t)
	bob := test.NewUser(t)
	r := test.NewRoom(t, alice, test.RoomName("Alice"), test.RoomType(api.RoomTypeTimeline))
	r.Join(t, bob)
	sess := test.NewSession(t, alice, r)

	room := newRoom(t, sess, r)
	assert.Equal(t, alice.ID, room.Creator())
	assert.Equal(t, "Alice", room.Name())
	assert.Equal(t, api.RoomTypeTimeline, room.Type())
	assert.False(t, room.IsSpace())
	assert.ElementsMatch(t, []string{alice.ID, bob.ID}, room.JoinedMembers())
	assert.Equal(t, int64(100), room.PowerLevel(alice.ID))
	assert.Equal(t, int64(0), room.PowerLevel(bob.ID))

	leave := r.CreateAndInsert(t, bob, "m.room.member", map[string]interface{}{
		"membership": "leave",
	}, test.WithStateKey(bob.ID))
	room.OnStateEvent(&leave)
	assert.Equal(t, []string{alice.ID}, room.JoinedMembers())
}

func TestCreatorFallsBackToSender(t *testing.T) {
	alice := test.NewUser(t)
	r := test.NewRoom(t, alice)
	create := r.CreateEvent(t, alice, "m.room.create", map[string]interface{}{
		"room_version": "11",
	}, test.WithStateKey(""))

	room, err := rooms.New(r.ID, nil, []api.ClientEvent{create}, nil)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, room.Creator())
}

func TestAddTimelineEventsDeduplicates(t *testing.T) {
	alice := test.NewUser(t)
	r := test.NewRoom(t, alice)
	sess := test.NewSession(t, alice, r)
	room := newRoom(t, sess, r)

	first := r.Post(t, alice, "one")
	second := r.Post(t, alice, "two")
	room.AddTimelineEvents([]api.ClientEvent{first, second})
	room.AddTimelineEvents([]api.ClientEvent{second})

	msgs := room.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, first.EventID, msgs[0].EventID)
	assert.Equal(t, second.EventID, msgs[1].EventID)
	assert.Equal(t, 2, room.ContentCount())
}

func TestPaginate(t *testing.T) {
	ctx := context.Background()
	alice := test.NewUser(t)
	r := test.NewRoom(t, alice)
	base := time.Now()
	var posts []api.ClientEvent
	for i := 0; i < 5; i++ {
		posts = append(posts, r.Post(t, alice, "post", test.WithTimestamp(base.Add(time.Duration(i)*time.Second))))
	}
	sess := test.NewSession(t, alice, r)
	room := newRoom(t, sess, r)
	require.True(t, room.CanPaginate())

	require.NoError(t, room.Paginate(ctx, 3))
	ids := messageIDs(room.Messages())
	test.AssertEventIDsEqual(t, ids, posts[2:])
	assert.True(t, room.CanPaginate())

	require.NoError(t, room.Paginate(ctx, 3))
	test.AssertEventIDsEqual(t, messageIDs(room.Messages()), posts)
	assert.False(t, room.CanPaginate())

	// no more requests once history is exhausted
	require.NoError(t, room.Paginate(ctx, 3))
	assert.Equal(t, 2, sess.MessagesCalls(r.ID))
	assert.False(t, room.Paginating())
}

func TestPaginateError(t *testing.T) {
	alice := test.NewUser(t)
	r := test.NewRoom(t, alice)
	sess := test.NewSession(t, alice, r)
	room := newRoom(t, sess, r)

	boom := errors.New("boom")
	sess.FailWith("Messages", r.ID, boom)
	err := room.Paginate(context.Background(), 10)
	assert.ErrorIs(t, err, boom)
	assert.True(t, room.CanPaginate())
	assert.Empty(t, room.Messages())
}

func TestUnreadCount(t *testing.T) {
	alice := test.NewUser(t)
	bob := test.NewUser(t)
	r := test.NewRoom(t, alice)
	sess := test.NewSession(t, alice, r)
	room := newRoom(t, sess, r)

	a1 := r.Post(t, bob, "one")
	a2 := r.Post(t, alice, "mine")
	a3 := r.Post(t, bob, "two")
	room.AddTimelineEvents([]api.ClientEvent{a1, a2, a3})
	assert.Equal(t, 2, room.UnreadCount(alice.ID))

	room.MarkRead(a1.EventID)
	assert.Equal(t, 1, room.UnreadCount(alice.ID))
	room.MarkRead(a3.EventID)
	assert.Equal(t, 0, room.UnreadCount(alice.ID))
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	alice := test.NewUser(t)
	r := test.NewRoom(t, alice)
	sess := test.NewSession(t, alice, r)
	post := r.Post(t, alice, "stored")

	history := historyFunc(func(ctx context.Context, roomID string) ([]api.ClientEvent, string, error) {
		return []api.ClientEvent{post}, "token", nil
	})
	reg := rooms.NewRegistry(sess, history)

	room, err := reg.Load(ctx, r.ID, r.CurrentState())
	require.NoError(t, err)
	assert.Equal(t, "token", room.PrevBatch())
	require.Len(t, room.Messages(), 1)

	again, err := reg.Load(ctx, r.ID, r.CurrentState())
	require.NoError(t, err)
	assert.Same(t, room, again)
	assert.Len(t, reg.Rooms(), 1)

	reg.Remove(r.ID)
	_, ok := reg.Get(r.ID)
	assert.False(t, ok)
}

type historyFunc func(ctx context.Context, roomID string) ([]api.ClientEvent, string, error)

func (f historyFunc) LoadTimeline(ctx context.Context, roomID string) ([]api.ClientEvent, string, error) {
	return f(ctx, roomID)
}

func messageIDs(msgs []*rooms.Message) []string {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.EventID
	}
	return ids
}
