package rooms

import (
	"context"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/circles-chat/circles/session/api"
)

// History loads what a previous run persisted for a room: its timeline
// (oldest first) and the token to resume backwards pagination from.
type History interface {
	LoadTimeline(ctx context.Context, roomID string) (events []api.ClientEvent, prevBatch string, err error)
}

// Registry owns every known room by ID. Spaces and the feed hold the same
// *Room pointers but never create or drop rooms themselves.
type Registry struct {
	paginator api.Paginator
	history   History // may be nil

	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewRegistry(paginator api.Paginator, history History) *Registry {
	return &Registry{
		paginator: paginator,
		history:   history,
		rooms:     make(map[string]*Room),
	}
}

func (r *Registry) Get(roomID string) (*Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	return room, ok
}

// Load returns the room with the given ID, creating it from state if it isn't
// known yet. For a known room the state replaces what it had.
func (r *Registry) Load(ctx context.Context, roomID string, state []api.ClientEvent) (*Room, error) {
	if room, ok := r.Get(roomID); ok {
		if err := room.ReplaceState(state); err != nil {
			return nil, err
		}
		return room, nil
	}

	var (
		timeline  []api.ClientEvent
		prevBatch string
	)
	if r.history != nil {
		var err error
		timeline, prevBatch, err = r.history.LoadTimeline(ctx, roomID)
		if err != nil {
			logrus.WithError(err).WithField("room_id", roomID).Warn("Failed to load stored timeline")
			timeline, prevBatch = nil, ""
		}
	}

	room, err := New(roomID, r.paginator, state, timeline)
	if err != nil {
		return nil, err
	}
	if prevBatch != "" {
		room.SetPrevBatch(prevBatch)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another caller may have raced us here; keep the first.
	if existing, ok := r.rooms[roomID]; ok {
		return existing, existing.ReplaceState(state)
	}
	r.rooms[roomID] = room
	return room, nil
}

// Remove forgets a room, e.g. after leaving it.
func (r *Registry) Remove(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, roomID)
}

// Rooms returns all known rooms sorted by ID.
func (r *Registry) Rooms() []*Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].roomID < out[j].roomID
	})
	return out
}
