package midi

// EventList is a sorted, multi-map container of Events keyed by
// (Timestamp, Rank). See spec.md §4.1.
type EventList struct {
	Events []Event
}

// NewEventList returns an empty list.
func NewEventList() *EventList {
	return &EventList{}
}

// Len returns the number of events.
func (l *EventList) Len() int { return len(l.Events) }

// Add inserts an event in sorted order. Duplicates with an equal key are
// allowed; among equal keys the new event is placed after existing ones
// with the same key (stable insertion).
func (l *EventList) Add(e Event) {
	if e.Linked < 0 {
		e.Linked = -1
	}
	i := l.upperBound(e)
	l.Events = append(l.Events, Event{})
	copy(l.Events[i+1:], l.Events[i:])
	l.Events[i] = e
}

// upperBound returns the first index whose element e compares Less than
// — i.e. the insertion point that places e after all equal keys.
func (l *EventList) upperBound(e Event) int {
	lo, hi := 0, len(l.Events)
	for lo < hi {
		mid := (lo + hi) / 2
		if Less(e, l.Events[mid]) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// RemoveMarked removes every event whose Marked bit is set. Returns whether
// anything was removed. Indices stored in Linked become stale and are
// cleared on the events that survive if their partner was removed.
func (l *EventList) RemoveMarked() bool {
	if len(l.Events) == 0 {
		return false
	}
	kept := l.Events[:0]
	removedAny := false
	oldToNew := make(map[int]int, len(l.Events))
	for i, e := range l.Events {
		if e.Marked {
			removedAny = true
			continue
		}
		oldToNew[i] = len(kept)
		kept = append(kept, e)
	}
	if removedAny {
		for i := range kept {
			if kept[i].Linked >= 0 {
				if nn, ok := oldToNew[kept[i].Linked]; ok {
					kept[i].Linked = nn
				} else {
					kept[i].Linked = -1
				}
			}
		}
	}
	l.Events = kept
	return removedAny
}

// MarkSelected copies the selection bit into the mark bit on every event.
// Returns whether anything is now marked.
func (l *EventList) MarkSelected() bool {
	any := false
	for i := range l.Events {
		l.Events[i].Marked = l.Events[i].Selected
		if l.Events[i].Marked {
			any = true
		}
	}
	return any
}

// ClearMarks resets the Marked bit on every event — used to clean up after
// a transaction that decided not to commit.
func (l *EventList) ClearMarks() {
	for i := range l.Events {
		l.Events[i].Marked = false
	}
}

// VerifyAndLink walks events; for each un-linked Note On, it finds the
// earliest subsequent Note Off on the same pitch and channel within
// `length` pulses and wires both events to reference each other by index.
// Un-pairable note-ons are left unlinked but remain valid (spec.md §4.1,
// testable property 2).
func (l *EventList) VerifyAndLink(length int64) {
	for i := range l.Events {
		l.Events[i].Linked = -1
	}
	for i := range l.Events {
		on := &l.Events[i]
		if !on.IsNoteOn() {
			continue
		}
		for j := i + 1; j < len(l.Events); j++ {
			off := &l.Events[j]
			if off.Timestamp-on.Timestamp > length {
				break
			}
			if off.Linked != -1 {
				continue
			}
			if off.IsNoteOff() && off.Data0 == on.Data0 && off.Channel == on.Channel &&
				off.Timestamp >= on.Timestamp+1 {
				on.Linked = j
				off.Linked = i
				break
			}
		}
	}
}

// SelectAction is the verb applied by range-selection operations.
type SelectAction int

const (
	ActionSelect SelectAction = iota
	ActionSelectOne
	ActionIsSelected
	ActionWouldSelect
	ActionDeselect
	ActionToggle
	ActionRemoveOne
)

// SelectFilter restricts a selection action to events matching a status
// and/or an optional CC number. A zero Status matches every event.
type SelectFilter struct {
	Status byte
	HasCC  bool
	CC     byte
}

func (f SelectFilter) matches(e Event) bool {
	if f.Status != 0 && e.Status != f.Status {
		return false
	}
	if f.HasCC && (e.Status&0xF0 != StatusControlChange || e.Data0 != f.CC) {
		return false
	}
	return true
}

// Select applies action to every event whose timestamp falls in the
// closed range [t0, t1] (both ends inclusive) and that matches filter. Returns true if the
// action's predicate (is-selected / would-select) holds for at least one
// event, or if a mutating action touched at least one event.
func (l *EventList) Select(t0, t1 int64, filter SelectFilter, action SelectAction) bool {
	any := false
	oneDone := false
	for i := range l.Events {
		e := &l.Events[i]
		if e.Timestamp < t0 || e.Timestamp > t1 || !filter.matches(*e) {
			continue
		}
		switch action {
		case ActionSelect:
			e.Selected = true
			any = true
		case ActionSelectOne:
			if !oneDone {
				e.Selected = true
				oneDone = true
				any = true
			}
		case ActionIsSelected:
			if e.Selected {
				any = true
			}
		case ActionWouldSelect:
			any = true
		case ActionDeselect:
			e.Selected = false
			any = true
		case ActionToggle:
			e.Selected = !e.Selected
			any = true
		case ActionRemoveOne:
			if !oneDone {
				l.removeAt(i)
				oneDone = true
				any = true
				return any
			}
		}
	}
	return any
}

func (l *EventList) removeAt(i int) {
	l.Events = append(l.Events[:i], l.Events[i+1:]...)
}
