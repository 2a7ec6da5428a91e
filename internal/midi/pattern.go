package midi

import "sync"

// PlayState is the pattern's playback-facing state machine (spec.md §4.3).
type PlayState int

const (
	StateIdle PlayState = iota
	StateArmed
	StatePlaying
)

// Emitter receives events a Pattern dispatches during playback or thru. It
// is implemented by internal/bus.MasterBus; Pattern does not import bus
// directly to keep the dependency direction leaf-ward.
type Emitter interface {
	Play(busIndex int, channel byte, e Event)
}

// Pattern is the central musical object: events + triggers + playback and
// recording state (spec.md §3 "Pattern" / §4.3).
type Pattern struct {
	mu sync.Mutex

	Length      int64 // pulses, multiple of one quarter note
	BeatsPerBar int
	BeatWidth   int
	PPQN        int

	Bus          int
	Channel      byte
	Transposable bool

	playing       bool
	queued        bool
	oneshot       bool
	songMute      bool
	recording     bool
	thru          bool
	quantizeIn    bool
	channelFilter int // -1 means accept all channels

	state PlayState

	lastTick int64

	Events   *EventList
	Triggers *Triggers

	noteCounts [128]uint16 // Note On/Off count per pitch, for All-Notes-Off safety

	eventsUndo [][]Event
	eventsRedo [][]Event

	armedSince int64
	songRecord bool

	modified bool
}

// NewPattern creates a pattern of the given length (clamped to at least one
// quarter note) at the given resolution.
func NewPattern(length int64, beatsPerBar, beatWidth, ppqn int) *Pattern {
	minLen := int64(ppqn)
	if length < minLen {
		length = minLen
	}
	return &Pattern{
		Length:        length,
		BeatsPerBar:   beatsPerBar,
		BeatWidth:     beatWidth,
		PPQN:          ppqn,
		Channel:       0,
		Events:        NewEventList(),
		Triggers:      NewTriggers(),
		state:         StateIdle,
		channelFilter: -1,
	}
}

func (p *Pattern) setModified() { p.modified = true }

// Modified reports whether the pattern has unsaved changes.
func (p *Pattern) Modified() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.modified
}

// ClearModified resets the modified flag (called after a save).
func (p *Pattern) ClearModified() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.modified = false
}

// --- undo/redo for events ---

const patternUndoDepth = 64

func (p *Pattern) pushEventsUndo() {
	snap := make([]Event, len(p.Events.Events))
	copy(snap, p.Events.Events)
	p.eventsUndo = append(p.eventsUndo, snap)
	if len(p.eventsUndo) > patternUndoDepth {
		p.eventsUndo = p.eventsUndo[1:]
	}
	p.eventsRedo = nil
}

// UndoEvents restores the previous event snapshot, if any.
func (p *Pattern) UndoEvents() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.eventsUndo) == 0 {
		return false
	}
	n := len(p.eventsUndo) - 1
	prev := p.eventsUndo[n]
	p.eventsUndo = p.eventsUndo[:n]
	cur := make([]Event, len(p.Events.Events))
	copy(cur, p.Events.Events)
	p.eventsRedo = append(p.eventsRedo, cur)
	p.Events.Events = prev
	return true
}

// RedoEvents re-applies a snapshot undone by UndoEvents, if any.
func (p *Pattern) RedoEvents() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.eventsRedo) == 0 {
		return false
	}
	n := len(p.eventsRedo) - 1
	next := p.eventsRedo[n]
	p.eventsRedo = p.eventsRedo[:n]
	cur := make([]Event, len(p.Events.Events))
	copy(cur, p.Events.Events)
	p.eventsUndo = append(p.eventsUndo, cur)
	p.Events.Events = next
	return true
}

// --- state flags ---

func (p *Pattern) SetPlaying(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = on
	if on {
		p.state = StateArmed
	} else {
		p.queued = false
		p.state = StateIdle
	}
}

func (p *Pattern) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *Pattern) SetQueued(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queued = on
}

func (p *Pattern) Queued() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queued
}

func (p *Pattern) SetOneshot(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.oneshot = on
}

func (p *Pattern) SetSongMute(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.songMute = on
	p.setModified()
}

func (p *Pattern) SongMuted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.songMute
}

func (p *Pattern) SetRecording(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recording = on
}

func (p *Pattern) Recording() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recording
}

func (p *Pattern) SetThru(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.thru = on
}

func (p *Pattern) Thru() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.thru
}

func (p *Pattern) SetQuantizedInput(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quantizeIn = on
}

func (p *Pattern) QuantizedInput() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quantizeIn
}

func (p *Pattern) SetChannelFilter(ch int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channelFilter = ch
}

func (p *Pattern) SetSongRecord(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.songRecord = on
}

// LastTick returns the scheduler's high-water mark for this pattern.
func (p *Pattern) LastTick() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTick
}

// SetLastTick seeds lastTick (e.g. after a loop-boundary reset to the left
// marker, per spec.md §4.6 step f).
func (p *Pattern) SetLastTick(tick int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastTick = tick
}

// --- note editing ---

// AddNote inserts paired Note On/Note Off events for pitch at [tick, tick+len).
// If paint, any previously-painted event at the same tick and pitch is
// first removed (piano-roll drag-insert UX). Invalid input (zero length or
// out-of-range pitch) is a silent no-op per spec.md §4.3 failure semantics.
func (p *Pattern) AddNote(tick, length int64, pitch byte, velocity byte, paint bool) {
	if length <= 0 || pitch > 127 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if paint {
		p.removePaintedAt(tick, pitch)
	}
	p.pushEventsUndo()
	on := NewEvent(tick, StatusNoteOn, p.Channel, pitch, velocity)
	off := NewEvent(tick+length, StatusNoteOff, p.Channel, pitch, 0)
	on.Painted = paint
	off.Painted = paint
	p.Events.Add(on)
	p.Events.Add(off)
	p.Events.VerifyAndLink(p.Length)
	p.setModified()
}

func (p *Pattern) removePaintedAt(tick int64, pitch byte) {
	kept := p.Events.Events[:0]
	for _, e := range p.Events.Events {
		if e.Painted && e.Timestamp == tick && e.Data0 == pitch {
			continue
		}
		kept = append(kept, e)
	}
	p.Events.Events = kept
}

// Transpose shifts the pitch of every selected Note event by steps scale
// degrees along scale.
func (p *Pattern) Transpose(steps int, scale Scale) {
	p.mu.Lock()
	defer p.mu.Unlock()
	any := false
	for i := range p.Events.Events {
		e := &p.Events.Events[i]
		if !e.Selected {
			continue
		}
		if e.Status&0xF0 != StatusNoteOn && e.Status&0xF0 != StatusNoteOff {
			continue
		}
		e.Data0 = TransposePitch(e.Data0, steps, scale)
		any = true
	}
	if any {
		p.setModified()
	}
}

// Quantize rounds the timestamp of every selected event matching filter to
// the nearest snap tick, attenuated by 1/divide. If linked, the paired
// Note Off is shifted by the same delta to preserve note length.
func (p *Pattern) Quantize(filter SelectFilter, snap int64, divide int, linked bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	any := false
	for i := range p.Events.Events {
		e := &p.Events.Events[i]
		if !e.Selected || !filter.matches(*e) {
			continue
		}
		orig := e.Timestamp
		newTick := QuantizeTick(orig, snap, divide)
		delta := newTick - orig
		if delta == 0 {
			continue
		}
		e.Timestamp = newTick
		any = true
		if linked && e.Linked >= 0 && e.Linked < len(p.Events.Events) {
			p.Events.Events[e.Linked].Timestamp += delta
		}
	}
	if any {
		sortEvents(p.Events.Events)
		p.setModified()
	}
}

// --- recording ---

// StreamEvent is called from the input thread when recording. Returns
// false if the pattern's channel filter rejects the event's channel. If
// the pattern has thru enabled, the event is also re-emitted to out.
func (p *Pattern) StreamEvent(e Event, out Emitter) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.recording {
		return false
	}
	if p.channelFilter >= 0 && e.Channel != NullChannel && int(e.Channel) != p.channelFilter {
		return false
	}
	if p.quantizeIn {
		snap := int64(p.PPQN) / 4
		e.Timestamp = QuantizeTick(e.Timestamp, snap, 1)
	}
	e.Timestamp = WrapTick(e.Timestamp, p.Length)
	p.Events.Add(e)
	p.setModified()
	if p.thru && out != nil {
		ch := p.Channel
		if e.Channel != NullChannel {
			ch = e.Channel
		}
		out.Play(p.Bus, ch, e)
	}
	return true
}

// --- playback ---

// Play advances the pattern from lastTick to endTick. In song mode it
// consults Triggers for the on/off envelope; in live mode the pattern
// plays whenever armed. Matching events are dispatched to out via bus
// busIndex/channel. If muted, no emission occurs but lastTick still
// advances. If queued (and not one-shot-dominated), the queued toggle
// fires at the next pattern-length boundary (spec.md §4.3, Open Question
// decision #3: one-shot dominates a pending queue toggle).
func (p *Pattern) Play(endTick int64, songMode bool, resumeNoteOns bool, out Emitter) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := p.lastTick
	frameEnd := endTick
	turnOffAfter := false

	active := p.playing
	if songMode {
		active = p.Triggers.Play(start, &frameEnd)
		turnOffAfter = active && frameEnd < endTick
	}

	if p.oneshot {
		p.queued = false
	} else if p.queued {
		if p.crossesBoundary(start, frameEnd) {
			p.playing = !p.playing
			p.queued = false
			active = p.playing
		}
	}

	muted := p.songMute || !active
	if !muted && out != nil {
		p.emitWindow(start, frameEnd, out)
	}

	p.lastTick = frameEnd
	if turnOffAfter && out != nil {
		p.emitAllNotesOff(out)
	}
	if p.oneshot && turnOffAfter {
		p.oneshot = false
	}
}

// crossesBoundary reports whether (start, end] contains a multiple of
// Length, or start is 0 and end is past it — the queued-toggle resolution
// point.
func (p *Pattern) crossesBoundary(start, end int64) bool {
	if p.Length <= 0 {
		return false
	}
	return LoopCount(end, p.Length) > LoopCount(start, p.Length) || (start == 0 && end > 0)
}

// emitWindow dispatches every event whose wrapped timestamp (across however
// many loop iterations have elapsed since the pattern started) falls in
// [start, end).
func (p *Pattern) emitWindow(start, end int64, out Emitter) {
	if p.Length <= 0 {
		return
	}
	loStart := LoopCount(start, p.Length)
	loEnd := LoopCount(end, p.Length)
	for n := loStart; n <= loEnd; n++ {
		base := n * p.Length
		for _, e := range p.Events.Events {
			abs := base + e.Timestamp
			if abs >= start && abs < end {
				p.dispatch(e, out)
			}
		}
	}
}

func (p *Pattern) dispatch(e Event, out Emitter) {
	ch := p.Channel
	if e.Channel != NullChannel {
		ch = e.Channel
	}
	if e.IsNoteOn() {
		p.noteCounts[e.Data0]++
	} else if e.IsNoteOff() && p.noteCounts[e.Data0] > 0 {
		p.noteCounts[e.Data0]--
	}
	out.Play(p.Bus, ch, e)
}

// emitAllNotesOff sends a Note Off for every pitch with a nonzero
// outstanding count, then zeroes the counts (spec.md §3 "Note On/Off count
// per pitch... so we can emit All-Notes-Off even under interleaved
// activations").
func (p *Pattern) emitAllNotesOff(out Emitter) {
	for pitch, n := range p.noteCounts {
		if n == 0 {
			continue
		}
		out.Play(p.Bus, p.Channel, NewEvent(p.lastTick, StatusNoteOff, p.Channel, byte(pitch), 0))
		p.noteCounts[pitch] = 0
	}
}

// RecordTrigger, called by the engine when song-record is enabled, appends
// a trigger bracketing the period during which the pattern was armed
// (spec.md §4.3 state machine note).
func (p *Pattern) RecordTrigger(armedAtTick, disarmedAtTick int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.songRecord || disarmedAtTick <= armedAtTick {
		return
	}
	p.Triggers.Add(armedAtTick, disarmedAtTick-armedAtTick, 0, true)
	p.setModified()
}
