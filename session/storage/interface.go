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

package storage

import (
	"context"

	"github.com/circles-chat/circles/session/api"
)

// Database is the local store of a client session: where /sync resumes
// from, the last known room state and the timelines loaded so far.
type Database interface {
	StoreNextBatch(ctx context.Context, userID, nextBatch string) error
	NextBatch(ctx context.Context, userID string) (string, error)
	StoreFilterID(ctx context.Context, userID, filterID string) error
	FilterID(ctx context.Context, userID string) (string, error)

	// StoreStateEvents upserts state events; non-state events are ignored.
	StoreStateEvents(ctx context.Context, roomID string, evs []api.ClientEvent) error
	RoomState(ctx context.Context, roomID string) ([]api.ClientEvent, error)
	// BulkRoomState returns the stored state of each given room that has any.
	BulkRoomState(ctx context.Context, roomIDs []string) (map[string][]api.ClientEvent, error)
	RoomIDs(ctx context.Context) ([]string, error)

	// AppendTimelineEvents stores events delivered by sync, oldest first.
	AppendTimelineEvents(ctx context.Context, roomID string, evs []api.ClientEvent) error
	// PrependTimelineEvents stores a paginated chunk, oldest first, along
	// with the token to continue paginating from.
	PrependTimelineEvents(ctx context.Context, roomID string, evs []api.ClientEvent, prevBatch string) error
	// StorePrevBatchIfMissing records where pagination starts for a room
	// seen for the first time.
	StorePrevBatchIfMissing(ctx context.Context, roomID, prevBatch string) error

	// LoadTimeline returns the stored timeline, oldest first, and the
	// token to paginate backwards from.
	LoadTimeline(ctx context.Context, roomID string) ([]api.ClientEvent, string, error)

	// ForgetRoom drops everything stored about a room.
	ForgetRoom(ctx context.Context, roomID string) error

	// Ping checks the database is still reachable.
	Ping() error
	Close() error
}
