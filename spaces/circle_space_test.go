package spaces

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/circles-chat/circles/test"
)

func TestCircleSpaceScenario(t *testing.T) {
	f := newFixture(t)
	alice := test.NewUser(t)
	bob := test.NewUser(t)

	circle := f.space()
	roomA := f.room(f.me)
	roomA.Join(t, bob)
	roomB := f.room(alice)
	circle.AddChild(t, f.me, roomA.ID)
	circle.AddChild(t, f.me, roomB.ID)

	cs := NewCircleSpace(context.Background(), f.load(circle), f.sess, f.registry)

	wall, ok := cs.Wall()
	require.True(t, ok)
	assert.Equal(t, roomA.ID, wall.RoomID())
	assert.Equal(t, []string{alice.ID}, cs.Following())
	assert.Equal(t, []string{bob.ID}, cs.Followers())
}

func TestCircleSpaceWithoutWall(t *testing.T) {
	f := newFixture(t)
	alice := test.NewUser(t)
	circle := f.space()
	roomB := f.room(alice)
	roomC := f.room(alice)
	circle.AddChild(t, f.me, roomB.ID)
	circle.AddChild(t, f.me, roomC.ID)

	cs := NewCircleSpace(context.Background(), f.load(circle), f.sess, f.registry)
	_, ok := cs.Wall()
	assert.False(t, ok)
	assert.Empty(t, cs.Followers())
	assert.Equal(t, []string{alice.ID}, cs.Following())
}

func TestCircleSpaceFirstWallWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	circle := f.space()
	first := f.room(f.me)
	second := f.room(f.me)
	cs := NewCircleSpace(ctx, f.load(circle), f.sess, f.registry)

	for _, id := range []string{second.ID, first.ID} {
		ev := circle.AddChild(t, f.me, id)
		cs.OnStateEvent(ctx, &ev)
	}
	wall, ok := cs.Wall()
	require.True(t, ok)
	assert.Equal(t, second.ID, wall.RoomID())
}

func TestPaginateRooms(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := test.NewUser(t)
	circle := f.space()
	mine := f.room(f.me)
	theirs := f.room(alice)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 4; i++ {
		mine.Post(t, f.me, "mine", test.WithTimestamp(base.Add(time.Duration(i)*time.Minute)))
		theirs.Post(t, alice, "theirs", test.WithTimestamp(base.Add(time.Duration(10+i)*time.Minute)))
	}
	circle.AddChild(t, f.me, mine.ID)
	circle.AddChild(t, f.me, theirs.ID)
	cs := NewCircleSpace(ctx, f.load(circle), f.sess, f.registry)

	require.True(t, cs.CanPaginateRooms())
	// both empty: the first child goes first
	next, ok := cs.LastFirstRoom()
	require.True(t, ok)
	assert.Equal(t, mine.ID, next.RoomID())

	require.NoError(t, cs.PaginateRooms(ctx, 2))
	next, _ = cs.LastFirstRoom()
	assert.Equal(t, theirs.ID, next.RoomID())

	require.NoError(t, cs.PaginateRooms(ctx, 2))
	// theirs now starts at base+12m, mine at base+2m
	next, _ = cs.LastFirstRoom()
	assert.Equal(t, theirs.ID, next.RoomID())

	for cs.CanPaginateRooms() {
		require.NoError(t, cs.PaginateRooms(ctx, 2))
	}
	msgs := cs.GetCollatedTimeline(time.Time{}, nil)
	require.Len(t, msgs, 8)
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].Timestamp.Before(msgs[i-1].Timestamp))
	}
	assert.NoError(t, cs.PaginateRooms(ctx, 2), "no-op once nothing can paginate")
}

func TestPaginateEmptyTimelines(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := test.NewUser(t)
	circle := f.space()
	loaded := f.room(f.me)
	empty := f.room(alice)
	broken := f.room(alice)
	for _, r := range []*test.Room{loaded, empty, broken} {
		r.Post(t, r.Creator, "hello")
		circle.AddChild(t, f.me, r.ID)
	}
	cs := NewCircleSpace(ctx, f.load(circle), f.sess, f.registry)
	loadedRoom, ok := cs.Child(loaded.ID)
	require.True(t, ok)
	loadedRoom.AddTimelineEvents(loaded.Timeline())

	boom := errors.New("boom")
	f.sess.FailWith("Messages", broken.ID, boom)
	err := cs.PaginateEmptyTimelines(ctx, 10)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 0, f.sess.MessagesCalls(loaded.ID))
	assert.Equal(t, 1, f.sess.MessagesCalls(empty.ID))
	assert.Equal(t, 1, f.sess.MessagesCalls(broken.ID))
	emptyRoom, _ := cs.Child(empty.ID)
	assert.Equal(t, 1, emptyRoom.ContentCount())
}

func TestUnreadCount(t *testing.T) {
	f := newFixture(t)
	alice := test.NewUser(t)
	circle := f.space()
	theirs := f.room(alice)
	theirs.Post(t, alice, "one")
	theirs.Post(t, alice, "two")
	circle.AddChild(t, f.me, theirs.ID)
	cs := NewCircleSpace(context.Background(), f.load(circle), f.sess, f.registry)
	room, _ := cs.Child(theirs.ID)
	room.AddTimelineEvents(theirs.Timeline())

	assert.Equal(t, 2, cs.UnreadCount())
}

func TestSocialStreamFeed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := test.NewUser(t)
	bob := test.NewUser(t)
	mallory := test.NewUser(t)
	now := time.Now()
	at := func(d time.Duration) func() time.Time {
		return func() time.Time { return now.Add(d) }
	}

	wall := f.room(f.me)
	aliceRoom := f.room(alice)
	bobRoom := f.room(bob)
	malloryRoom := f.room(mallory)
	aliceRoom.Join(t, bob)

	var want []string
	want = append(want, wall.Post(t, f.me, "mine", test.WithTimestamp(at(-5*time.Minute)())).EventID)
	first := aliceRoom.Post(t, alice, "first", test.WithTimestamp(at(-4*time.Minute)()))
	want = append(want, first.EventID)
	aliceRoom.Post(t, bob, "not the owner", test.WithTimestamp(at(-3*time.Minute)()))
	aliceRoom.Post(t, alice, "reply", test.WithTimestamp(at(-2*time.Minute)()), test.WithReplyTo(first.EventID))
	want = append(want, bobRoom.Post(t, bob, "bob", test.WithTimestamp(at(-1*time.Minute)())).EventID)
	malloryRoom.Post(t, mallory, "spam", test.WithTimestamp(at(0)()))
	want = append(want, aliceRoom.Post(t, alice, "soon", test.WithTimestamp(at(299*time.Second)())).EventID)
	aliceRoom.Post(t, alice, "pinned", test.WithTimestamp(at(301*time.Second)()))
	f.sess.Ignore(mallory.ID)

	friends := f.space()
	friends.AddChild(t, f.me, wall.ID)
	friends.AddChild(t, f.me, aliceRoom.ID)
	work := f.space()
	work.AddChild(t, f.me, aliceRoom.ID)
	work.AddChild(t, f.me, bobRoom.ID)
	work.AddChild(t, f.me, malloryRoom.ID)
	root := f.space()
	root.AddChild(t, f.me, friends.ID)
	root.AddChild(t, f.me, work.ID)

	stream := NewSocialStream(ctx, f.load(root), f.sess, f.registry)
	stream.Now = at(0)
	require.Len(t, stream.Circles(), 2)
	require.Len(t, stream.Rooms(), 4)

	for stream.CanPaginateRooms() {
		require.NoError(t, stream.PaginateRooms(ctx, 3))
	}

	got := make([]string, 0, len(want))
	for _, m := range stream.Feed(ctx, time.Time{}) {
		got = append(got, m.EventID)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("feed mismatch (-want +got):\n%s", diff)
	}

	recent := stream.Feed(ctx, now.Add(-90*time.Second))
	assert.Len(t, recent, 2)
}

func TestSocialStreamFollowsCircleChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := test.NewUser(t)
	root := f.space()
	circle := f.space()
	aliceRoom := f.room(alice)
	root.AddChild(t, f.me, circle.ID)
	stream := NewSocialStream(ctx, f.load(root), f.sess, f.registry)
	require.Empty(t, stream.Rooms())

	cs, ok := stream.Circle(circle.ID)
	require.True(t, ok)
	ev := circle.AddChild(t, f.me, aliceRoom.ID)
	cs.OnStateEvent(ctx, &ev)
	assert.Equal(t, []string{aliceRoom.ID}, childIDs(stream.Rooms()))

	removal := root.RemoveChild(t, f.me, circle.ID)
	stream.OnStateEvent(ctx, &removal)
	assert.Empty(t, stream.Circles())
	assert.Empty(t, stream.Rooms())
}

func TestSocialStreamKeepsCircleOnRepeatedChildEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := test.NewUser(t)
	root := f.space()
	circle := f.space()
	aliceRoom := f.room(alice)
	root.AddChild(t, f.me, circle.ID)
	stream := NewSocialStream(ctx, f.load(root), f.sess, f.registry)

	before, ok := stream.Circle(circle.ID)
	require.True(t, ok)
	updates, unsubscribe := before.Subscribe()
	defer unsubscribe()
	rootUpdates, rootUnsubscribe := stream.Subscribe()
	defer rootUnsubscribe()

	// Same relation again, as the server sends it when e.g. the order changes.
	again := root.AddChild(t, f.me, circle.ID)
	stream.OnStateEvent(ctx, &again)

	after, ok := stream.Circle(circle.ID)
	require.True(t, ok)
	assert.Same(t, before, after)
	require.Len(t, rootUpdates, 1)
	assert.Equal(t, ChildrenUpdate{SpaceID: root.ID, RoomID: circle.ID, Kind: ChildReplaced}, <-rootUpdates)

	ev := circle.AddChild(t, f.me, aliceRoom.ID)
	after.OnStateEvent(ctx, &ev)
	require.Len(t, updates, 1)
	assert.Equal(t, ChildrenUpdate{SpaceID: circle.ID, RoomID: aliceRoom.ID, Kind: ChildAdded}, <-updates)
	assert.Equal(t, []string{aliceRoom.ID}, childIDs(stream.Rooms()))
}
