package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/matrix-org/gomatrix"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/circles-chat/circles/internal/caching"
	"github.com/circles-chat/circles/session/api"
	"github.com/circles-chat/circles/session/storage"
	"github.com/circles-chat/circles/setup/config"
	"github.com/circles-chat/circles/test"
)

type sentStateEvent struct {
	RoomID    string
	EventType string
	StateKey  string
	Content   []byte
}

type fakeHomeserver struct {
	mu              sync.Mutex
	state           map[string][]api.ClientEvent
	stateRequests   int
	createBodies    [][]byte
	sent            []sentStateEvent
	messagesQueries []url.Values
	messages        api.MessagesResponse
	messagesDelay   time.Duration
	leaves          []string
	versions        []string
}

func (hs *fakeHomeserver) router() *mux.Router {
	r := mux.NewRouter()
	v := r.PathPrefix("/_matrix/client/r0").Subrouter()
	v.HandleFunc("/rooms/{roomID}/state", func(w http.ResponseWriter, req *http.Request) {
		hs.mu.Lock()
		defer hs.mu.Unlock()
		hs.stateRequests++
		state, ok := hs.state[mux.Vars(req)["roomID"]]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"errcode": "M_NOT_FOUND", "error": "no room"})
			return
		}
		writeJSON(w, http.StatusOK, state)
	}).Methods(http.MethodGet)
	sendState := func(w http.ResponseWriter, req *http.Request) {
		hs.mu.Lock()
		defer hs.mu.Unlock()
		vars := mux.Vars(req)
		var body bytes.Buffer
		_, _ = body.ReadFrom(req.Body)
		hs.sent = append(hs.sent, sentStateEvent{vars["roomID"], vars["eventType"], vars["stateKey"], body.Bytes()})
		writeJSON(w, http.StatusOK, map[string]string{"event_id": "$sent:test"})
	}
	v.HandleFunc("/rooms/{roomID}/state/{eventType}", sendState).Methods(http.MethodPut)
	v.HandleFunc("/rooms/{roomID}/state/{eventType}/{stateKey}", sendState).Methods(http.MethodPut)
	v.HandleFunc("/rooms/{roomID}/messages", func(w http.ResponseWriter, req *http.Request) {
		if hs.messagesDelay > 0 {
			select {
			case <-time.After(hs.messagesDelay):
			case <-req.Context().Done():
				return
			}
		}
		hs.mu.Lock()
		defer hs.mu.Unlock()
		hs.messagesQueries = append(hs.messagesQueries, req.URL.Query())
		writeJSON(w, http.StatusOK, hs.messages)
	}).Methods(http.MethodGet)
	v.HandleFunc("/rooms/{roomID}/leave", func(w http.ResponseWriter, req *http.Request) {
		hs.mu.Lock()
		defer hs.mu.Unlock()
		hs.leaves = append(hs.leaves, mux.Vars(req)["roomID"])
		writeJSON(w, http.StatusOK, struct{}{})
	}).Methods(http.MethodPost)
	v.HandleFunc("/createRoom", func(w http.ResponseWriter, req *http.Request) {
		hs.mu.Lock()
		defer hs.mu.Unlock()
		var body bytes.Buffer
		_, _ = body.ReadFrom(req.Body)
		hs.createBodies = append(hs.createBodies, body.Bytes())
		writeJSON(w, http.StatusOK, map[string]string{"room_id": "!new:test"})
	}).Methods(http.MethodPost)
	v.HandleFunc("/user/{userID}/account_data/{type}", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"errcode": "M_NOT_FOUND", "error": "no account data"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/_matrix/client/versions", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string][]string{"versions": hs.versions})
	}).Methods(http.MethodGet)
	r.HandleFunc("/_matrix/media/r0/upload", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"content_uri": "mxc://test/avatar"})
	}).Methods(http.MethodPost)
	return r
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// mapStateCache applies writes immediately, unlike ristretto.
type mapStateCache map[string]caching.RoomState

func (c mapStateCache) GetRoomState(roomID string) (caching.RoomState, bool) {
	s, ok := c[roomID]
	return s, ok
}

func (c mapStateCache) StoreRoomState(roomID string, state caching.RoomState) {
	c[roomID] = state
}

func (c mapStateCache) InvalidateRoomState(roomID string) {
	delete(c, roomID)
}

func newTestClient(t *testing.T, hs *fakeHomeserver) (*Client, storage.Database) {
	t.Helper()
	srv := httptest.NewServer(hs.router())
	t.Cleanup(srv.Close)
	connStr, closeDB := test.PrepareDBConnectionString(t, test.DBTypeSQLite)
	t.Cleanup(closeDB)
	ctx := context.Background()
	db, err := storage.NewDatabase(ctx, &config.DatabaseOptions{ConnectionString: config.DataSource(connStr)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	client, err := NewClient(ctx, &config.Session{
		HomeserverURL:   srv.URL,
		UserID:          "@alice:test",
		AccessToken:     "token",
		IgnoredUsersTTL: time.Minute,
		AvatarMaxSize:   64,
	}, db, mapStateCache{})
	require.NoError(t, err)
	return client, db
}

func TestGetRoomStateEventsCaches(t *testing.T) {
	alice := test.NewUser(t, test.WithLocalpart("alice"))
	room := test.NewRoom(t, alice)
	hs := &fakeHomeserver{state: map[string][]api.ClientEvent{room.ID: room.CurrentState()}}
	client, _ := newTestClient(t, hs)
	ctx := context.Background()

	state, err := client.GetRoomStateEvents(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, state, len(room.CurrentState()))
	_, err = client.GetRoomStateEvents(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, hs.stateRequests)

	client.stateCache.InvalidateRoomState(room.ID)
	_, err = client.GetRoomStateEvents(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, hs.stateRequests)

	_, err = client.GetRoomStateEvents(ctx, "!unknown:test")
	assert.True(t, errors.Is(err, api.ErrRoomNotFound), "got %v", err)
}

func TestCreateRoom(t *testing.T) {
	hs := &fakeHomeserver{}
	client, _ := newTestClient(t, hs)

	roomID, err := client.CreateRoom(context.Background(), &api.CreateRoomRequest{
		Name:      "Friends",
		Type:      api.RoomTypeSpace,
		Encrypted: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "!new:test", roomID)
	require.Len(t, hs.createBodies, 1)
	body := hs.createBodies[0]
	assert.Equal(t, "Friends", gjson.GetBytes(body, "name").Str)
	assert.Equal(t, api.RoomTypeSpace, gjson.GetBytes(body, "creation_content.type").Str)
	assert.Equal(t, "m.room.encryption", gjson.GetBytes(body, "initial_state.0.type").Str)
	assert.Equal(t, "m.megolm.v1.aes-sha2", gjson.GetBytes(body, "initial_state.0.content.algorithm").Str)

	_, err = client.CreateRoom(context.Background(), &api.CreateRoomRequest{Name: "plain"})
	require.NoError(t, err)
	assert.False(t, gjson.GetBytes(hs.createBodies[1], "creation_content").Exists())
	assert.False(t, gjson.GetBytes(hs.createBodies[1], "initial_state.0").Exists())
}

func TestSpaceChildRelations(t *testing.T) {
	hs := &fakeHomeserver{}
	client, _ := newTestClient(t, hs)
	ctx := context.Background()

	require.NoError(t, client.AddSpaceChild(ctx, "!child:test", "!space:test"))
	require.NoError(t, client.RemoveSpaceChild(ctx, "!child:test", "!space:test"))
	require.Len(t, hs.sent, 2)

	added := hs.sent[0]
	assert.Equal(t, "!space:test", added.RoomID)
	assert.Equal(t, "m.space.child", added.EventType)
	assert.Equal(t, "!child:test", added.StateKey)
	assert.Equal(t, `["test"]`, gjson.GetBytes(added.Content, "via").Raw)

	removed := hs.sent[1]
	assert.Equal(t, "!child:test", removed.StateKey)
	assert.JSONEq(t, `{}`, string(removed.Content))

	require.NoError(t, client.Leave(ctx, "!child:test"))
	assert.Equal(t, []string{"!child:test"}, hs.leaves)
}

func TestSetRoomAvatar(t *testing.T) {
	hs := &fakeHomeserver{}
	client, _ := newTestClient(t, hs)

	err := client.SetRoomAvatar(context.Background(), "!room:test", &api.Avatar{
		ContentType: "image/png",
		Data:        testPNG(t, 200, 100),
	})
	require.NoError(t, err)
	require.Len(t, hs.sent, 1)
	assert.Equal(t, "m.room.avatar", hs.sent[0].EventType)
	content := hs.sent[0].Content
	assert.Equal(t, "mxc://test/avatar", gjson.GetBytes(content, "url").Str)
	assert.Equal(t, "image/jpeg", gjson.GetBytes(content, "info.mimetype").Str)
	assert.Equal(t, int64(64), gjson.GetBytes(content, "info.w").Int())
	assert.Equal(t, int64(32), gjson.GetBytes(content, "info.h").Int())

	err = client.SetRoomAvatar(context.Background(), "!room:test", &api.Avatar{Data: []byte("not an image")})
	assert.Error(t, err)
	assert.Len(t, hs.sent, 1)
}

func TestMessagesPersistsHistory(t *testing.T) {
	alice := test.NewUser(t, test.WithLocalpart("alice"))
	room := test.NewRoom(t, alice)
	older := room.Post(t, alice, "older")
	newer := room.Post(t, alice, "newer")
	hs := &fakeHomeserver{messages: api.MessagesResponse{
		Start: "s",
		End:   "e",
		Chunk: []api.ClientEvent{newer, older},
	}}
	client, db := newTestClient(t, hs)
	ctx := context.Background()

	res, err := client.Messages(ctx, room.ID, "", 10)
	require.NoError(t, err)
	assert.Len(t, res.Chunk, 2)
	require.Len(t, hs.messagesQueries, 1)
	q := hs.messagesQueries[0]
	assert.Equal(t, "b", q.Get("dir"))
	assert.Equal(t, "10", q.Get("limit"))
	_, hasFrom := q["from"]
	assert.False(t, hasFrom)

	_, err = client.Messages(ctx, room.ID, "e", 10)
	require.NoError(t, err)
	assert.Equal(t, "e", hs.messagesQueries[1].Get("from"))

	events, prevBatch, err := db.LoadTimeline(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, "e", prevBatch)
	test.AssertEventIDsEqual(t, []string{older.EventID, newer.EventID}, events)
}

func TestMessagesHonoursDeadline(t *testing.T) {
	alice := test.NewUser(t, test.WithLocalpart("alice"))
	room := test.NewRoom(t, alice)
	post := room.Post(t, alice, "slow")
	hs := &fakeHomeserver{
		messages:      api.MessagesResponse{End: "e", Chunk: []api.ClientEvent{post}},
		messagesDelay: 2 * time.Second,
	}
	client, db := newTestClient(t, hs)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := client.Messages(ctx, room.ID, "", 10)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	events, prevBatch, err := db.LoadTimeline(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Empty(t, prevBatch)
}

func TestIgnoredUsers(t *testing.T) {
	hs := &fakeHomeserver{}
	client, _ := newTestClient(t, hs)
	ctx := context.Background()

	ignored, err := client.IgnoredUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, ignored)

	syncer := NewSyncer(ctx, client, &recordingHandler{}, time.Second)
	var res gomatrix.RespSync
	require.NoError(t, json.Unmarshal([]byte(`{
		"next_batch": "s2",
		"account_data": {"events": [
			{"type": "m.ignored_user_list", "content": {"ignored_users": {"@mallory:test": {}}}}
		]}
	}`), &res))
	require.NoError(t, syncer.ProcessResponse(&res, "s1"))

	ignored, err = client.IgnoredUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"@mallory:test": {}}, ignored)
}

func TestCheckVersions(t *testing.T) {
	testCases := []struct {
		name     string
		versions []string
		wantErr  bool
	}{
		{name: "legacy only", versions: []string{"r0.5.0", "r0.6.1"}, wantErr: true},
		{name: "too old", versions: []string{"r0.6.1", "v1.1"}, wantErr: true},
		{name: "spaces", versions: []string{"v1.1", "v1.2"}},
		{name: "newer", versions: []string{"v1.10"}},
		{name: "garbage", versions: []string{"banana"}, wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := checkSpecVersions(tc.versions)
			if tc.wantErr {
				assert.True(t, errors.Is(err, ErrUnsupportedHomeserver), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	hs := &fakeHomeserver{versions: []string{"v1.3"}}
	client, _ := newTestClient(t, hs)
	assert.NoError(t, client.CheckVersions())
}

func TestScaleAvatar(t *testing.T) {
	small := &api.Avatar{ContentType: "image/png", Data: testPNG(t, 32, 16)}
	got, err := ScaleAvatar(small, 64)
	require.NoError(t, err)
	assert.Same(t, small, got)

	got, err = ScaleAvatar(&api.Avatar{ContentType: "image/png", Data: testPNG(t, 200, 100)}, 64)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", got.ContentType)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(got.Data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 64, cfg.Width)
	assert.Equal(t, 32, cfg.Height)
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPrimeStateCache(t *testing.T) {
	alice := test.NewUser(t, test.WithLocalpart("alice"))
	room := test.NewRoom(t, alice)
	hs := &fakeHomeserver{state: map[string][]api.ClientEvent{}}
	client, db := newTestClient(t, hs)
	ctx := context.Background()

	require.NoError(t, db.StoreStateEvents(ctx, room.ID, room.CurrentState()))
	// State without a create event is incomplete and must not be cached.
	name := test.NewRoom(t, alice).CreateEvent(t, alice, "m.room.name", map[string]interface{}{"name": "x"}, test.WithStateKey(""))
	require.NoError(t, db.StoreStateEvents(ctx, "!partial:test", []api.ClientEvent{name}))

	primed, err := client.PrimeStateCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, primed, "nothing is primed before the first sync")

	require.NoError(t, db.StoreNextBatch(ctx, client.UserID(), "s1"))
	primed, err = client.PrimeStateCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, primed)

	state, err := client.GetRoomStateEvents(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, state, len(room.CurrentState()))

	_, err = client.GetRoomStateEvents(ctx, "!partial:test")
	assert.ErrorIs(t, err, api.ErrRoomNotFound)
	assert.Equal(t, 1, hs.stateRequests, "only the unprimed room hits the homeserver")
}
