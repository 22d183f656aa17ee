package rooms

// Timeline is an ordered event map. Insertion order is the order events were
// delivered in: sync appends newer events, pagination prepends older ones.
// A Timeline is not safe for concurrent use; Room guards it.
type Timeline struct {
	order  []string
	events map[string]*Message
}

func NewTimeline() *Timeline {
	return &Timeline{
		events: make(map[string]*Message),
	}
}

// Append adds newer messages to the end of the timeline, oldest first.
// Messages already present are skipped. Returns how many were added.
func (t *Timeline) Append(msgs ...*Message) int {
	added := 0
	for _, m := range msgs {
		if _, ok := t.events[m.EventID]; ok {
			continue
		}
		t.events[m.EventID] = m
		t.order = append(t.order, m.EventID)
		added++
	}
	return added
}

// Prepend adds older messages to the start of the timeline. msgs must be in
// oldest-first order. Messages already present are skipped.
func (t *Timeline) Prepend(msgs []*Message) int {
	fresh := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if _, ok := t.events[m.EventID]; ok {
			continue
		}
		t.events[m.EventID] = m
		fresh = append(fresh, m.EventID)
	}
	if len(fresh) > 0 {
		t.order = append(fresh, t.order...)
	}
	return len(fresh)
}

func (t *Timeline) Len() int {
	return len(t.order)
}

func (t *Timeline) Get(eventID string) (*Message, bool) {
	m, ok := t.events[eventID]
	return m, ok
}

// Messages returns a copy of the timeline, oldest first.
func (t *Timeline) Messages() []*Message {
	msgs := make([]*Message, 0, len(t.order))
	for _, id := range t.order {
		msgs = append(msgs, t.events[id])
	}
	return msgs
}

// First returns the earliest loaded message.
func (t *Timeline) First() (*Message, bool) {
	if len(t.order) == 0 {
		return nil, false
	}
	return t.events[t.order[0]], true
}

// ContentCount returns the number of posts in the timeline.
func (t *Timeline) ContentCount() int {
	n := 0
	for _, m := range t.events {
		if m.IsContent() {
			n++
		}
	}
	return n
}

// After returns the messages delivered after the given event, or the whole
// timeline if the event isn't loaded.
func (t *Timeline) After(eventID string) []*Message {
	start := 0
	for i, id := range t.order {
		if id == eventID {
			start = i + 1
			break
		}
	}
	msgs := make([]*Message, 0, len(t.order)-start)
	for _, id := range t.order[start:] {
		msgs = append(msgs, t.events[id])
	}
	return msgs
}
