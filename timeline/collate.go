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

// Package timeline merges the timelines of many rooms into one and decides
// which room to fetch older history from next.
package timeline

import (
	"sort"
	"time"

	"github.com/circles-chat/circles/rooms"
)

// Filter decides whether a message from room makes it into a collated
// timeline. A nil Filter accepts everything.
type Filter func(room rooms.RoomLike, msg *rooms.Message) bool

// Collate merges the loaded messages of all rooms that are at or after since
// and pass filter, ordered by timestamp ascending. Messages with equal
// timestamps keep the order they were found in: room order first, then
// timeline order.
func Collate[R rooms.RoomLike](rs []R, since time.Time, filter Filter) []*rooms.Message {
	var out []*rooms.Message
	for _, room := range rs {
		for _, msg := range room.Messages() {
			if msg.Timestamp.Before(since) {
				continue
			}
			if filter != nil && !filter(room, msg) {
				continue
			}
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Reversed returns the messages newest first, the order a feed is shown in.
func Reversed(msgs []*rooms.Message) []*rooms.Message {
	out := make([]*rooms.Message, len(msgs))
	for i := range msgs {
		out[i] = msgs[len(msgs)-i-1]
	}
	return out
}

// DefaultMaxFutureSkew is how far ahead of the local clock a post may be
// timestamped and still be shown.
const DefaultMaxFutureSkew = 300 * time.Second

// FeedFilter selects what belongs in the unified feed: top-level posts by the
// owner of the room they were posted in, excluding ignored users and posts
// dated too far in the future.
type FeedFilter struct {
	// Ignored holds the user IDs whose posts are hidden.
	Ignored map[string]struct{}
	// MaxFutureSkew defaults to DefaultMaxFutureSkew when zero.
	MaxFutureSkew time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Filter returns the filter function. The clock is read once, so every
// message in one collation is judged against the same instant.
func (f FeedFilter) Filter() Filter {
	now := time.Now()
	if f.Now != nil {
		now = f.Now()
	}
	skew := f.MaxFutureSkew
	if skew == 0 {
		skew = DefaultMaxFutureSkew
	}
	return func(room rooms.RoomLike, msg *rooms.Message) bool {
		if !msg.IsTopLevel() || !msg.IsContent() {
			return false
		}
		if msg.Timestamp.Sub(now) > skew {
			return false
		}
		creator := room.Creator()
		if creator == "" || msg.Sender != creator {
			return false
		}
		if _, ignored := f.Ignored[msg.Sender]; ignored {
			return false
		}
		return true
	}
}
