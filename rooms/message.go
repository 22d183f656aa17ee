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

package rooms

import (
	"errors"
	"time"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"maunium.net/go/mautrix/event"

	"github.com/circles-chat/circles/session/api"
)

var (
	ErrStateEvent   = errors.New("state events are not timeline messages")
	ErrMissingEvent = errors.New("event has no event ID")
)

// RelatesTo is the m.relates_to of a message. Replies, threads, reactions and
// edits all carry one; top-level posts do not.
type RelatesTo struct {
	RelType   string `json:"rel_type,omitempty"`
	EventID   string `json:"event_id,omitempty"`
	InReplyTo string `json:"in_reply_to,omitempty"`
}

// Message is a single non-state timeline event belonging to exactly one room.
type Message struct {
	EventID   string       `json:"event_id"`
	RoomID    string       `json:"room_id"`
	Sender    string       `json:"sender"`
	Type      string       `json:"type"`
	MsgType   string       `json:"msgtype,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
	RelatesTo *RelatesTo   `json:"relates_to,omitempty"`
	Content   spec.RawJSON `json:"content"`
}

// NewMessage builds a Message from a timeline event.
func NewMessage(ev *api.ClientEvent) (*Message, error) {
	if ev.IsState() {
		return nil, ErrStateEvent
	}
	if ev.EventID == "" {
		return nil, ErrMissingEvent
	}
	m := &Message{
		EventID:   ev.EventID,
		RoomID:    ev.RoomID,
		Sender:    ev.Sender,
		Type:      ev.Type,
		MsgType:   ev.ContentField("msgtype").Str,
		Timestamp: ev.OriginServerTS.Time(),
		Content:   ev.Content,
	}
	// m.relates_to stays in cleartext on encrypted events, so this works for both.
	if rel := ev.ContentField(`m\.relates_to`); rel.IsObject() {
		m.RelatesTo = &RelatesTo{
			RelType:   rel.Get("rel_type").Str,
			EventID:   rel.Get("event_id").Str,
			InReplyTo: rel.Get(`m\.in_reply_to.event_id`).Str,
		}
	}
	return m, nil
}

// IsContent reports whether the message is a post (plain or encrypted) as
// opposed to reactions, redactions, call signalling and the like.
func (m *Message) IsContent() bool {
	return m.Type == event.EventMessage.Type || m.Type == event.EventEncrypted.Type
}

// IsTopLevel reports whether the message is a post in its own right rather
// than a reply, reaction or edit of another.
func (m *Message) IsTopLevel() bool {
	return m.RelatesTo == nil
}
