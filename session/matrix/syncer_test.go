package matrix

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/matrix-org/gomatrix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/circles-chat/circles/session/api"
)

type recordingHandler struct {
	mu      sync.Mutex
	updates map[string]*api.RoomUpdate
	order   []string
	left    []string
}

func (h *recordingHandler) OnRoomUpdate(ctx context.Context, roomID string, update *api.RoomUpdate) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.updates == nil {
		h.updates = make(map[string]*api.RoomUpdate)
	}
	h.updates[roomID] = update
	h.order = append(h.order, roomID)
	return nil
}

func (h *recordingHandler) OnLeaveRoom(ctx context.Context, roomID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.left = append(h.left, roomID)
	return errors.New("handler errors are only logged")
}

const syncResponse = `{
	"next_batch": "s2",
	"rooms": {
		"join": {
			"!b:test": {
				"timeline": {
					"events": [
						{"type": "m.room.message", "event_id": "$1:test", "sender": "@bob:test", "origin_server_ts": 1000, "content": {"msgtype": "m.text", "body": "hi"}},
						{"type": "m.room.name", "state_key": "", "event_id": "$2:test", "sender": "@bob:test", "origin_server_ts": 2000, "content": {"name": "Bob"}}
					],
					"limited": true,
					"prev_batch": "p1"
				}
			},
			"!a:test": {
				"state": {"events": [
					{"type": "m.room.create", "state_key": "", "event_id": "$0:test", "sender": "@alice:test", "origin_server_ts": 1, "content": {}}
				]},
				"timeline": {"events": []}
			}
		},
		"leave": {
			"!gone:test": {"timeline": {"events": []}}
		}
	}
}`

func TestSyncerProcessResponse(t *testing.T) {
	client, db := newTestClient(t, &fakeHomeserver{})
	ctx := context.Background()
	client.stateCache.StoreRoomState("!b:test", nil)
	client.stateCache.StoreRoomState("!gone:test", nil)
	require.NoError(t, db.StorePrevBatchIfMissing(ctx, "!gone:test", "old"))

	handler := &recordingHandler{}
	syncer := NewSyncer(ctx, client, handler, time.Second)
	var res gomatrix.RespSync
	require.NoError(t, json.Unmarshal([]byte(syncResponse), &res))
	require.NoError(t, syncer.ProcessResponse(&res, "s1"))

	assert.Equal(t, []string{"!a:test", "!b:test"}, handler.order)
	assert.Equal(t, []string{"!gone:test"}, handler.left)

	b := handler.updates["!b:test"]
	require.Len(t, b.Timeline, 2)
	assert.True(t, b.Limited)
	assert.Equal(t, "p1", b.PrevBatch)
	assert.Equal(t, "!b:test", b.Timeline[0].RoomID)
	assert.Equal(t, "hi", b.Timeline[0].ContentField("body").Str)
	assert.True(t, b.Timeline[1].IsState())

	_, cached := client.stateCache.GetRoomState("!b:test")
	assert.False(t, cached)
	_, cached = client.stateCache.GetRoomState("!gone:test")
	assert.False(t, cached)

	state, err := db.RoomState(ctx, "!b:test")
	require.NoError(t, err)
	require.Len(t, state, 1)
	assert.Equal(t, "Bob", state[0].ContentField("name").Str)

	events, prevBatch, err := db.LoadTimeline(ctx, "!b:test")
	require.NoError(t, err)
	assert.Equal(t, "p1", prevBatch)
	require.Len(t, events, 1)
	assert.Equal(t, "$1:test", events[0].EventID)

	_, prevBatch, err = db.LoadTimeline(ctx, "!gone:test")
	require.NoError(t, err)
	assert.Empty(t, prevBatch)
}

func TestOnFailedSync(t *testing.T) {
	client, _ := newTestClient(t, &fakeHomeserver{})
	ctx, cancel := context.WithCancel(context.Background())
	syncer := NewSyncer(ctx, client, &recordingHandler{}, 3*time.Second)

	backoff, err := syncer.OnFailedSync(nil, errors.New("connection refused"))
	assert.NoError(t, err)
	assert.Equal(t, 3*time.Second, backoff)

	_, err = syncer.OnFailedSync(nil, gomatrix.HTTPError{Code: http.StatusUnauthorized})
	assert.Error(t, err)

	cancel()
	_, err = syncer.OnFailedSync(nil, errors.New("connection refused"))
	assert.ErrorIs(t, err, context.Canceled)
}
