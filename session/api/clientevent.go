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

package api

import (
	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/tidwall/gjson"
)

// ClientEvent is an event in the format served by the Matrix client-server API.
type ClientEvent struct {
	Content        spec.RawJSON   `json:"content"`
	EventID        string         `json:"event_id,omitempty"`
	OriginServerTS spec.Timestamp `json:"origin_server_ts,omitempty"`
	RoomID         string         `json:"room_id,omitempty"` // RoomID is omitted on /sync responses
	Sender         string         `json:"sender,omitempty"`
	StateKey       *string        `json:"state_key,omitempty"`
	Type           string         `json:"type"`
	Unsigned       spec.RawJSON   `json:"unsigned,omitempty"`
	Redacts        string         `json:"redacts,omitempty"`
}

// IsState returns true if the event has a state key, even an empty one.
func (e *ClientEvent) IsState() bool {
	return e.StateKey != nil
}

// StateKeyEquals returns true if the event is a state event with the given state key.
func (e *ClientEvent) StateKeyEquals(stateKey string) bool {
	return e.StateKey != nil && *e.StateKey == stateKey
}

// ContentField returns a single field from the event content. Dots in the
// path must be escaped, e.g. `m\.relates_to`.
func (e *ClientEvent) ContentField(path string) gjson.Result {
	return gjson.GetBytes(e.Content, path)
}
