package timeline

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/circles-chat/circles/rooms"
)

type fakeRoom struct {
	id          string
	creator     string
	canPaginate bool
	msgs        []*rooms.Message
}

func (r *fakeRoom) RoomID() string {
	return r.id
}

func (r *fakeRoom) Creator() string {
	return r.creator
}

func (r *fakeRoom) CanPaginate() bool {
	return r.canPaginate
}

func (r *fakeRoom) Paginate(ctx context.Context, limit int) error {
	return nil
}

func (r *fakeRoom) Messages() []*rooms.Message {
	return r.msgs
}

var epoch = time.Unix(1_700_000_000, 0)

func post(id, sender string, secs int) *rooms.Message {
	return &rooms.Message{
		EventID:   id,
		Sender:    sender,
		Type:      "m.room.message",
		Timestamp: epoch.Add(time.Duration(secs) * time.Second),
	}
}

func ids(msgs []*rooms.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.EventID
	}
	return out
}

func TestCollateOrdering(t *testing.T) {
	a := &fakeRoom{id: "!a", msgs: []*rooms.Message{post("$a1", "@a", 10), post("$a2", "@a", 30)}}
	b := &fakeRoom{id: "!b", msgs: []*rooms.Message{post("$b1", "@b", 20), post("$b2", "@b", 30)}}
	c := &fakeRoom{id: "!c"}

	got := ids(Collate([]*fakeRoom{a, b, c}, time.Time{}, nil))
	want := []string{"$a1", "$b1", "$a2", "$b2"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Collate mismatch (-want +got):\n%s", diff)
	}

	got = ids(Collate([]*fakeRoom{a, b, c}, epoch.Add(20*time.Second), nil))
	assert.Equal(t, []string{"$b1", "$a2", "$b2"}, got)

	assert.Equal(t, []string{"$b2", "$a2", "$b1", "$a1"}, ids(Reversed(Collate([]*fakeRoom{a, b}, time.Time{}, nil))))
	assert.Empty(t, Collate([]*fakeRoom{}, time.Time{}, nil))
}

func TestFeedFilter(t *testing.T) {
	now := epoch
	reply := post("$reply", "@a", 0)
	reply.RelatesTo = &rooms.RelatesTo{InReplyTo: "$a1"}
	reaction := post("$react", "@a", 0)
	reaction.Type = "m.reaction"
	encrypted := post("$enc", "@a", 1)
	encrypted.Type = "m.room.encrypted"

	a := &fakeRoom{id: "!a", creator: "@a", msgs: []*rooms.Message{
		post("$a1", "@a", -10),
		reply,
		reaction,
		encrypted,
		post("$guest", "@b", 2),
		post("$future299", "@a", 299),
		post("$future300", "@a", 300),
		post("$future301", "@a", 301),
	}}
	noCreator := &fakeRoom{id: "!x", msgs: []*rooms.Message{post("$x1", "@x", 0)}}
	ignored := &fakeRoom{id: "!i", creator: "@i", msgs: []*rooms.Message{post("$i1", "@i", 0)}}

	filter := FeedFilter{
		Ignored: map[string]struct{}{"@i": {}},
		Now:     func() time.Time { return now },
	}.Filter()
	got := ids(Collate([]*fakeRoom{a, noCreator, ignored}, time.Time{}, filter))
	want := []string{"$a1", "$enc", "$future299", "$future300"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("feed mismatch (-want +got):\n%s", diff)
	}
}

func TestLastFirstRoom(t *testing.T) {
	a := &fakeRoom{id: "!a", canPaginate: true, msgs: []*rooms.Message{post("$a", "@a", 100)}}
	b := &fakeRoom{id: "!b", canPaginate: true, msgs: []*rooms.Message{post("$b", "@b", 50)}}
	c := &fakeRoom{id: "!c", canPaginate: true}

	got, ok := LastFirstRoom([]*fakeRoom{a, b, c})
	require.True(t, ok)
	assert.Equal(t, "!c", got.id)

	c.msgs = []*rooms.Message{post("$c", "@c", 200)}
	got, ok = LastFirstRoom([]*fakeRoom{a, b, c})
	require.True(t, ok)
	assert.Equal(t, "!c", got.id)

	c.canPaginate = false
	got, ok = LastFirstRoom([]*fakeRoom{a, b, c})
	require.True(t, ok)
	assert.Equal(t, "!a", got.id)

	// ties go to the first room
	b.msgs = []*rooms.Message{post("$b", "@b", 100)}
	got, _ = LastFirstRoom([]*fakeRoom{b, a})
	assert.Equal(t, "!b", got.id)

	// first empty room wins among several
	d := &fakeRoom{id: "!d", canPaginate: true}
	e := &fakeRoom{id: "!e", canPaginate: true}
	got, _ = LastFirstRoom([]*fakeRoom{a, d, e})
	assert.Equal(t, "!d", got.id)

	a.canPaginate, b.canPaginate = false, false
	_, ok = LastFirstRoom([]*fakeRoom{a, b, c})
	assert.False(t, ok)
	_, ok = LastFirstRoom([]*fakeRoom{})
	assert.False(t, ok)
}
