package spaces

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/circles-chat/circles/rooms"
	"github.com/circles-chat/circles/session/api"
	"github.com/circles-chat/circles/test"
)

type fixture struct {
	t        *testing.T
	me       *test.User
	sess     *test.Session
	registry *rooms.Registry
}

func newFixture(t *testing.T) *fixture {
	me := test.NewUser(t)
	sess := test.NewSession(t, me)
	return &fixture{
		t:        t,
		me:       me,
		sess:     sess,
		registry: rooms.NewRegistry(sess, nil),
	}
}

// room registers a new remote room with the session.
func (f *fixture) room(creator *test.User) *test.Room {
	f.t.Helper()
	r := test.NewRoom(f.t, creator)
	f.sess.AddRoom(r)
	return r
}

func (f *fixture) space() *test.Room {
	f.t.Helper()
	r := test.NewRoom(f.t, f.me, test.RoomType(api.RoomTypeSpace))
	f.sess.AddRoom(r)
	return r
}

func (f *fixture) load(r *test.Room) *rooms.Room {
	f.t.Helper()
	room, err := f.registry.Load(context.Background(), r.ID, r.CurrentState())
	require.NoError(f.t, err)
	return room
}

func (f *fixture) timelineSpace(space *test.Room) *TimelineSpace {
	return NewTimelineSpace(context.Background(), f.load(space), f.sess, f.registry)
}

func childIDs[T rooms.RoomLike](children []T) []string {
	ids := make([]string, len(children))
	for i, c := range children {
		ids[i] = c.RoomID()
	}
	return ids
}

func TestContainerInitialize(t *testing.T) {
	f := newFixture(t)
	space := f.space()
	a := f.room(f.me)
	b := f.room(f.me)
	c := f.room(f.me)
	space.AddChild(t, f.me, a.ID)
	space.AddChild(t, f.me, b.ID)
	space.AddChild(t, f.me, c.ID)
	space.RemoveChild(t, f.me, c.ID)
	space.AddChild(t, f.me, "!unknown:test")

	ts := f.timelineSpace(space)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, childIDs(ts.Children()))
}

func TestContainerConverges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	space := f.space()
	a := f.room(f.me)
	b := f.room(f.me)
	c := f.room(f.me)
	ts := f.timelineSpace(space)
	require.Empty(t, ts.Children())

	events := []api.ClientEvent{
		space.AddChild(t, f.me, a.ID),
		space.AddChild(t, f.me, b.ID),
		space.AddChild(t, f.me, a.ID),
		space.RemoveChild(t, f.me, b.ID),
		space.RemoveChild(t, f.me, b.ID),
		space.RemoveChild(t, f.me, "!never:test"),
		space.AddChild(t, f.me, c.ID),
	}
	for i := range events {
		ts.OnStateEvent(ctx, &events[i])
	}
	assert.Equal(t, []string{a.ID, c.ID}, childIDs(ts.Children()))

	// The space's own state follows along.
	ev := ts.Room().StateEvent("m.space.child", b.ID)
	require.NotNil(t, ev)
	assert.False(t, hasVia(ev))
}

func TestRemovalIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	space := f.space()
	a := f.room(f.me)
	b := f.room(f.me)
	space.AddChild(t, f.me, a.ID)
	space.AddChild(t, f.me, b.ID)
	ts := f.timelineSpace(space)

	updates, unsubscribe := ts.Subscribe()
	defer unsubscribe()

	remove := space.RemoveChild(t, f.me, a.ID)
	ts.OnStateEvent(ctx, &remove)
	after := ts.Children()
	ts.OnStateEvent(ctx, &remove)
	assert.Equal(t, after, ts.Children())
	assert.Equal(t, []string{b.ID}, childIDs(after))

	require.Len(t, updates, 1)
	update := <-updates
	assert.Equal(t, ChildrenUpdate{SpaceID: space.ID, RoomID: a.ID, Kind: ChildRemoved}, update)
}

func TestChildrenSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	space := f.space()
	a := f.room(f.me)
	b := f.room(f.me)
	space.AddChild(t, f.me, a.ID)
	ts := f.timelineSpace(space)

	snapshot := ts.Children()
	add := space.AddChild(t, f.me, b.ID)
	ts.OnStateEvent(ctx, &add)
	assert.Equal(t, []string{a.ID}, childIDs(snapshot))
	assert.Equal(t, []string{a.ID, b.ID}, childIDs(ts.Children()))
}

func TestRepeatedChildEventRefreshesInPlace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	space := f.space()
	a := f.room(f.me)
	space.AddChild(t, f.me, a.ID)
	ts := f.timelineSpace(space)
	before, ok := ts.Child(a.ID)
	require.True(t, ok)

	rename := a.CreateAndInsert(t, f.me, "m.room.name", map[string]interface{}{"name": "renamed"}, test.WithStateKey(""))
	again := space.AddChild(t, f.me, a.ID)
	ts.OnStateEvent(ctx, &again)

	after, ok := ts.Child(a.ID)
	require.True(t, ok)
	assert.Same(t, before, after)
	assert.Equal(t, []string{a.ID}, childIDs(ts.Children()))
	assert.Equal(t, rename.EventID, after.StateEvent("m.room.name", "").EventID)
}

func TestChildrenIsACopy(t *testing.T) {
	f := newFixture(t)
	space := f.space()
	a := f.room(f.me)
	b := f.room(f.me)
	space.AddChild(t, f.me, a.ID)
	space.AddChild(t, f.me, b.ID)
	ts := f.timelineSpace(space)

	children := ts.Children()
	children[0], children[1] = children[1], children[0]
	assert.Equal(t, []string{a.ID, b.ID}, childIDs(ts.Children()))
}

func TestAddChildRoomWaitsForSync(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	space := f.space()
	a := f.room(f.me)
	ts := f.timelineSpace(space)

	require.NoError(t, ts.AddChildRoom(ctx, a.ID))
	assert.Equal(t, []string{"AddSpaceChild " + a.ID + " " + space.ID}, f.sess.Calls())
	assert.Empty(t, ts.Children())

	events := space.Events()
	echo := events[len(events)-1]
	ts.OnStateEvent(ctx, &echo)
	assert.Equal(t, []string{a.ID}, childIDs(ts.Children()))

	boom := errors.New("boom")
	f.sess.FailWith("RemoveSpaceChild", space.ID, boom)
	assert.ErrorIs(t, ts.RemoveChildRoom(ctx, a.ID), boom)
	assert.Equal(t, []string{a.ID}, childIDs(ts.Children()))
}

func TestCreateChildRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	space := f.space()
	ts := f.timelineSpace(space)

	roomID, err := ts.CreateChildRoom(ctx, &CreateChildRequest{
		Name:      "My wall",
		Type:      api.RoomTypeTimeline,
		Encrypted: true,
		Avatar:    &api.Avatar{ContentType: "image/png", Data: []byte{1, 2, 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"CreateRoom",
		"SetRoomAvatar " + roomID,
		"AddSpaceChild " + roomID + " " + space.ID,
	}, f.sess.Calls())
	assert.Empty(t, ts.Children())
}

func TestCreateChildRoomAvatarFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	space := f.space()
	ts := f.timelineSpace(space)

	boom := errors.New("upload failed")
	f.sess.FailWith("SetRoomAvatar", "", boom)
	roomID, err := ts.CreateChildRoom(ctx, &CreateChildRequest{
		Name:   "My wall",
		Avatar: &api.Avatar{ContentType: "image/png", Data: []byte{1}},
	})
	assert.ErrorIs(t, err, boom)
	require.NotEmpty(t, roomID)
	assert.NotNil(t, f.sess.Room(roomID), "room is not rolled back")
	assert.Equal(t, []string{"CreateRoom", "SetRoomAvatar " + roomID}, f.sess.Calls())
}

func TestLeaveChildRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	space := f.space()
	a := f.room(f.me)
	space.AddChild(t, f.me, a.ID)
	ts := f.timelineSpace(space)

	require.NoError(t, ts.LeaveChildRoom(ctx, a.ID))
	assert.Equal(t, []string{
		"RemoveSpaceChild " + a.ID + " " + space.ID,
		"Leave " + a.ID,
	}, f.sess.Calls())
}
