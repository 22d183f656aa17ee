package timeline

import (
	"github.com/circles-chat/circles/rooms"
)

// LastFirstRoom picks the room to paginate next so that the collated
// timeline grows backwards evenly. Of the rooms that can still paginate, one
// with nothing loaded wins (the first such room, if there are several);
// otherwise it is the room whose earliest loaded message is the most recent,
// since everything older than that is where the collated view has a gap.
// Ties go to the room found first. ok is false when no room can paginate.
func LastFirstRoom[R rooms.RoomLike](rs []R) (room R, ok bool) {
	var (
		best      R
		bestFirst *rooms.Message
		found     bool
	)
	for _, r := range rs {
		if !r.CanPaginate() {
			continue
		}
		msgs := r.Messages()
		if len(msgs) == 0 {
			return r, true
		}
		first := msgs[0]
		if !found || first.Timestamp.After(bestFirst.Timestamp) {
			best, bestFirst, found = r, first, true
		}
	}
	return best, found
}
