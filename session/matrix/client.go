// Copyright 2026 The Circles Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package matrix implements the session on top of a homeserver's
// client-server API.
package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/matrix-org/gomatrix"
	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/circles-chat/circles/internal/caching"
	"github.com/circles-chat/circles/session/api"
	"github.com/circles-chat/circles/session/storage"
	"github.com/circles-chat/circles/setup/config"
)

const ignoredUsersKey = "ignored_users"

// Client is a api.Session talking to a homeserver through gomatrix.
//
// gomatrix builds its requests without a context, so each call gets a
// gomatrix client whose transport binds every request to the call's context.
type Client struct {
	cli           *gomatrix.Client
	transport     http.RoundTripper
	userID        string
	serverName    spec.ServerName
	db            storage.Database
	stateCache    caching.RoomStateCache
	ignored       *cache.Cache
	avatarMaxSize uint
}

var _ api.Session = (*Client)(nil)

// NewClient creates a client for the configured user. The database backs the
// gomatrix sync store and records paginated history.
func NewClient(
	ctx context.Context, cfg *config.Session, db storage.Database, stateCache caching.RoomStateCache,
) (*Client, error) {
	userID, err := spec.NewUserID(cfg.UserID, true)
	if err != nil {
		return nil, errors.Wrap(err, "invalid user ID")
	}
	cli, err := gomatrix.NewClient(cfg.HomeserverURL, cfg.UserID, cfg.AccessToken)
	if err != nil {
		return nil, errors.Wrap(err, "gomatrix.NewClient")
	}
	cli.Store = storage.NewStorer(ctx, db)
	transport := cli.Client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Client{
		cli:           cli,
		transport:     transport,
		userID:        userID.String(),
		serverName:    userID.Domain(),
		db:            db,
		stateCache:    stateCache,
		ignored:       cache.New(cfg.IgnoredUsersTTL, 2*cfg.IgnoredUsersTTL),
		avatarMaxSize: uint(cfg.AvatarMaxSize),
	}, nil
}

func (c *Client) UserID() string {
	return c.userID
}

// Gomatrix returns the underlying client, for the sync loop.
func (c *Client) Gomatrix() *gomatrix.Client {
	return c.cli
}

// contextTransport attaches ctx to every request it carries.
type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

// withContext returns a gomatrix client for a single call. Its requests are
// cancelled along with ctx.
func (c *Client) withContext(ctx context.Context) *gomatrix.Client {
	return &gomatrix.Client{
		HomeserverURL:    c.cli.HomeserverURL,
		Prefix:           c.cli.Prefix,
		UserID:           c.cli.UserID,
		AccessToken:      c.cli.AccessToken,
		AppServiceUserID: c.cli.AppServiceUserID,
		Client: &http.Client{
			Transport: &contextTransport{ctx: ctx, base: c.transport},
		},
	}
}

// requestError prefers the context's error, so callers can tell a deadline
// from a homeserver failure.
func requestError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func (c *Client) GetRoomStateEvents(ctx context.Context, roomID string) ([]api.ClientEvent, error) {
	if state, ok := c.stateCache.GetRoomState(roomID); ok {
		return state, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var state []api.ClientEvent
	cli := c.withContext(ctx)
	err := cli.MakeRequest(http.MethodGet, cli.BuildURL("rooms", roomID, "state"), nil, &state)
	if err != nil {
		err = requestError(ctx, err)
		if isHTTPStatus(err, http.StatusNotFound) || isHTTPStatus(err, http.StatusForbidden) {
			return nil, errors.Wrapf(api.ErrRoomNotFound, "room %s: %s", roomID, err)
		}
		return nil, errors.Wrapf(err, "GET /rooms/%s/state", roomID)
	}
	for i := range state {
		if state[i].RoomID == "" {
			state[i].RoomID = roomID
		}
	}
	c.stateCache.StoreRoomState(roomID, state)
	return state, nil
}

// PrimeStateCache fills the room state cache from the state stored by
// earlier syncs, so that a restart doesn't fetch every room's state again.
// It does nothing before the first sync has completed. Returns the number of
// rooms primed.
func (c *Client) PrimeStateCache(ctx context.Context) (int, error) {
	nextBatch, err := c.db.NextBatch(ctx, c.userID)
	if err != nil {
		return 0, errors.Wrap(err, "c.db.NextBatch")
	}
	if nextBatch == "" {
		return 0, nil
	}
	roomIDs, err := c.db.RoomIDs(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "c.db.RoomIDs")
	}
	states, err := c.db.BulkRoomState(ctx, roomIDs)
	if err != nil {
		return 0, errors.Wrap(err, "c.db.BulkRoomState")
	}
	primed := 0
	for roomID, state := range states {
		if !hasCreateEvent(state) {
			continue
		}
		c.stateCache.StoreRoomState(roomID, state)
		primed++
	}
	return primed, nil
}

func hasCreateEvent(state []api.ClientEvent) bool {
	for i := range state {
		if state[i].Type == event.StateCreate.Type && state[i].StateKey != nil && *state[i].StateKey == "" {
			return true
		}
	}
	return false
}

func (c *Client) CreateRoom(ctx context.Context, req *api.CreateRoomRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	creq := &gomatrix.ReqCreateRoom{
		Name:   req.Name,
		Topic:  req.Topic,
		Preset: "private_chat",
	}
	if req.Type != "" {
		creq.CreationContent = map[string]interface{}{"type": req.Type}
	}
	if req.Encrypted {
		content, err := toContentMap(&event.EncryptionEventContent{Algorithm: id.AlgorithmMegolmV1})
		if err != nil {
			return "", err
		}
		stateKey := ""
		creq.InitialState = append(creq.InitialState, gomatrix.Event{
			Type:     event.StateEncryption.Type,
			StateKey: &stateKey,
			Content:  content,
		})
	}
	res, err := c.withContext(ctx).CreateRoom(creq)
	if err != nil {
		return "", errors.Wrap(requestError(ctx, err), "cli.CreateRoom")
	}
	logrus.WithFields(logrus.Fields{
		"room_id": res.RoomID,
		"type":    req.Type,
	}).Info("Created room")
	return res.RoomID, nil
}

func (c *Client) SetRoomAvatar(ctx context.Context, roomID string, avatar *api.Avatar) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	scaled, err := ScaleAvatar(avatar, c.avatarMaxSize)
	if err != nil {
		return errors.Wrap(err, "ScaleAvatar")
	}
	cli := c.withContext(ctx)
	upload, err := cli.UploadToContentRepo(bytes.NewReader(scaled.Data), scaled.ContentType, int64(len(scaled.Data)))
	if err != nil {
		return errors.Wrap(requestError(ctx, err), "cli.UploadToContentRepo")
	}
	content, err := avatarContent(upload.ContentURI, scaled)
	if err != nil {
		return err
	}
	if _, err = cli.SendStateEvent(roomID, event.StateRoomAvatar.Type, "", content); err != nil {
		return errors.Wrapf(requestError(ctx, err), "set m.room.avatar in %s", roomID)
	}
	return nil
}

func (c *Client) AddSpaceChild(ctx context.Context, childID, parentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	content := &event.SpaceChildEventContent{Via: []string{string(c.serverName)}}
	if _, err := c.withContext(ctx).SendStateEvent(parentID, event.StateSpaceChild.Type, childID, content); err != nil {
		return errors.Wrapf(requestError(ctx, err), "add %s to space %s", childID, parentID)
	}
	return nil
}

func (c *Client) RemoveSpaceChild(ctx context.Context, childID, parentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.withContext(ctx).SendStateEvent(parentID, event.StateSpaceChild.Type, childID, struct{}{}); err != nil {
		return errors.Wrapf(requestError(ctx, err), "remove %s from space %s", childID, parentID)
	}
	return nil
}

func (c *Client) Leave(ctx context.Context, roomID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.withContext(ctx).LeaveRoom(roomID); err != nil {
		return errors.Wrapf(requestError(ctx, err), "leave %s", roomID)
	}
	c.stateCache.InvalidateRoomState(roomID)
	return nil
}

// Messages fetches older history and records it in the local store, so a
// restart resumes pagination where it stopped.
func (c *Client) Messages(ctx context.Context, roomID, from string, limit int) (*api.MessagesResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := map[string]string{
		"dir":   "b",
		"limit": strconv.Itoa(limit),
	}
	if from != "" {
		query["from"] = from
	}
	var res api.MessagesResponse
	cli := c.withContext(ctx)
	err := cli.MakeRequest(http.MethodGet, cli.BuildURLWithQuery([]string{"rooms", roomID, "messages"}, query), nil, &res)
	if err != nil {
		return nil, errors.Wrapf(requestError(ctx, err), "GET /rooms/%s/messages", roomID)
	}
	// A response that only arrived after the deadline is dropped, so the
	// caller's view and the store never disagree.
	if err = ctx.Err(); err != nil {
		return nil, err
	}
	older := make([]api.ClientEvent, 0, len(res.Chunk))
	for i := len(res.Chunk) - 1; i >= 0; i-- {
		older = append(older, res.Chunk[i])
	}
	// The history is already fetched; storing it must not fail because the
	// caller stopped waiting.
	if err = c.db.PrependTimelineEvents(context.WithoutCancel(ctx), roomID, older, res.End); err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to store paginated events")
	}
	return &res, nil
}

type ignoredUserList struct {
	IgnoredUsers map[string]json.RawMessage `json:"ignored_users"`
}

func (c *Client) IgnoredUsers(ctx context.Context) (map[string]struct{}, error) {
	if cached, ok := c.ignored.Get(ignoredUsersKey); ok {
		return cached.(map[string]struct{}), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var list ignoredUserList
	cli := c.withContext(ctx)
	err := cli.MakeRequest(
		http.MethodGet,
		cli.BuildURL("user", c.userID, "account_data", "m.ignored_user_list"),
		nil, &list,
	)
	if err != nil && !isHTTPStatus(err, http.StatusNotFound) {
		return nil, errors.Wrap(requestError(ctx, err), "GET m.ignored_user_list")
	}
	return c.setIgnoredUsers(&list), nil
}

func (c *Client) setIgnoredUsers(list *ignoredUserList) map[string]struct{} {
	ignored := make(map[string]struct{}, len(list.IgnoredUsers))
	for userID := range list.IgnoredUsers {
		ignored[userID] = struct{}{}
	}
	c.ignored.SetDefault(ignoredUsersKey, ignored)
	return ignored
}

func isHTTPStatus(err error, code int) bool {
	var httpErr gomatrix.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code == code
	}
	var httpErrPtr *gomatrix.HTTPError
	if errors.As(err, &httpErrPtr) {
		return httpErrPtr.Code == code
	}
	return false
}

func toContentMap(content interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, errors.Wrap(err, "json.Marshal")
	}
	var m map[string]interface{}
	if err = json.Unmarshal(raw, &m); err != nil {
		return nil, errors.Wrap(err, "json.Unmarshal")
	}
	return m, nil
}
