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

package test

import (
	"testing"
	"time"

	"github.com/circles-chat/circles/session/api"
)

type eventMods struct {
	originServerTS time.Time
	stateKey       *string
	unsigned       interface{}
	relatesTo      map[string]interface{}
}

type eventModifier func(e *eventMods)

func WithTimestamp(ts time.Time) eventModifier {
	return func(e *eventMods) {
		e.originServerTS = ts
	}
}

func WithStateKey(skey string) eventModifier {
	return func(e *eventMods) {
		e.stateKey = &skey
	}
}

func WithUnsigned(unsigned interface{}) eventModifier {
	return func(e *eventMods) {
		e.unsigned = unsigned
	}
}

// WithReplyTo makes the event a reply to eventID.
func WithReplyTo(eventID string) eventModifier {
	return func(e *eventMods) {
		e.relatesTo = map[string]interface{}{
			"m.in_reply_to": map[string]interface{}{"event_id": eventID},
		}
	}
}

// WithRelation attaches an m.relates_to of the given rel_type, e.g. m.annotation.
func WithRelation(relType, eventID string) eventModifier {
	return func(e *eventMods) {
		e.relatesTo = map[string]interface{}{
			"rel_type": relType,
			"event_id": eventID,
		}
	}
}

// Reverse a list of events
func Reversed(in []api.ClientEvent) []api.ClientEvent {
	out := make([]api.ClientEvent, len(in))
	for i := 0; i < len(in); i++ {
		out[i] = in[len(in)-i-1]
	}
	return out
}

func AssertEventIDsEqual(t *testing.T, gotEventIDs []string, wants []api.ClientEvent) {
	t.Helper()
	if len(gotEventIDs) != len(wants) {
		t.Fatalf("length mismatch: got %d events, want %d", len(gotEventIDs), len(wants))
	}
	for i := range wants {
		w := wants[i].EventID
		g := gotEventIDs[i]
		if w != g {
			t.Errorf("event at index %d mismatch:\ngot  %s\n\nwant %s", i, g, w)
		}
	}
}
