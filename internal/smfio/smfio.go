// Package smfio reads and writes Standard MIDI Files, bridging
// internal/midi.Pattern to gitlab.com/gomidi/midi/v2/smf's track/event
// model (spec.md §6's file-format section).
package smfio

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"sequencer64/internal/midi"
)

// File is the in-memory result of loading (or the input to saving) an SMF:
// one pattern per non-tempo track plus the file-global tempo and
// resolution, matching spec.md §6's format 1 layout (track 0 is the tempo/
// meter track, tracks 1..N are patterns).
type File struct {
	PPQN        int
	BPM         float64
	BeatsPerBar int
	BeatWidth   int
	Patterns    []*midi.Pattern
}

// Load reads path as an SMF and returns one Pattern per non-tempo track.
func Load(path string) (*File, error) {
	rd, err := smf.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("smfio: reading %q: %w", path, err)
	}

	ppqn := ticksPerQuarterNote(rd)
	f := &File{PPQN: ppqn, BPM: midi.DefaultBPM, BeatsPerBar: 4, BeatWidth: 4}

	if changes := rd.TempoChanges(); len(changes) > 0 {
		f.BPM = changes[0].BPM
	}

	for trackIdx, track := range rd.Tracks {
		var currentTick uint32
		var meterNum, meterDenom uint8
		isTempoTrack := trackIdx == 0

		var p *midi.Pattern
		if !isTempoTrack {
			p = midi.NewPattern(int64(ppqn)*4*4, 4, 4, ppqn)
		}

		for _, ev := range track {
			currentTick += ev.Delta

			var num, denom uint8
			if ev.Message.GetMetaMeter(&num, &denom) {
				meterNum, meterDenom = num, denom
				if !isTempoTrack {
					continue
				}
			}
			var bpm float64
			if ev.Message.GetMetaTempo(&bpm) && bpm > 0 {
				f.BPM = bpm
				continue
			}
			if p == nil {
				continue
			}
			if e, ok := decodeChannelEvent(ev.Message, int64(currentTick)); ok {
				p.Events.Add(e)
			}
		}

		if meterNum > 0 && meterDenom > 0 {
			f.BeatsPerBar = int(meterNum)
			f.BeatWidth = int(meterDenom)
		}
		if p != nil {
			p.Events.VerifyAndLink(p.Length)
			f.Patterns = append(f.Patterns, p)
		}
	}

	return f, nil
}

func ticksPerQuarterNote(rd *smf.SMF) int {
	if mt, ok := rd.TimeFormat.(smf.MetricTicks); ok {
		return int(mt.Ticks4th())
	}
	return midi.DefaultPPQN
}

// decodeChannelEvent recognizes the channel-voice message kinds spec.md §4.1
// lists (Note On/Off, Control Change, Program Change, Channel Pressure,
// Pitch Bend) and maps them to an internal/midi.Event. Anything else
// (System Exclusive, unrecognized meta) is reported as not-ok so the caller
// skips it rather than guessing at its shape.
func decodeChannelEvent(msg gomidi.Message, tick int64) (midi.Event, bool) {
	var ch, key, vel uint8
	if msg.GetNoteOn(&ch, &key, &vel) {
		return midi.NewEvent(tick, midi.StatusNoteOn, ch, key, vel), true
	}
	if msg.GetNoteOff(&ch, &key, &vel) {
		return midi.NewEvent(tick, midi.StatusNoteOff, ch, key, vel), true
	}
	var cc, val uint8
	if msg.GetControlChange(&ch, &cc, &val) {
		return midi.NewEvent(tick, midi.StatusControlChange, ch, cc, val), true
	}
	var program uint8
	if msg.GetProgramChange(&ch, &program) {
		return midi.NewEvent(tick, midi.StatusProgramChange, ch, program, 0), true
	}
	var pressure uint8
	if msg.GetAfterTouch(&ch, &pressure) {
		return midi.NewEvent(tick, midi.StatusChannelPressure, ch, pressure, 0), true
	}
	var rel int16
	var abs uint16
	if msg.GetPitchBend(&ch, &rel, &abs) {
		return midi.NewEvent(tick, midi.StatusPitchWheel, ch, byte(abs&0x7F), byte((abs>>7)&0x7F)), true
	}
	return midi.Event{}, false
}

// Save writes f as a format-1 SMF: track 0 carries tempo/meter, one
// subsequent track per pattern.
func Save(path string, f *File) error {
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(uint16(f.PPQN))

	var tempoTrack smf.Track
	tempoTrack.Add(0, smf.MetaMeter(uint8(f.BeatsPerBar), uint8(f.BeatWidth)))
	tempoTrack.Add(0, smf.MetaTempo(f.BPM))
	tempoTrack.Close(0)
	if err := sm.Add(tempoTrack); err != nil {
		return fmt.Errorf("smfio: adding tempo track: %w", err)
	}

	for i, p := range f.Patterns {
		track, err := patternTrack(p)
		if err != nil {
			return fmt.Errorf("smfio: pattern %d: %w", i, err)
		}
		if err := sm.Add(track); err != nil {
			return fmt.Errorf("smfio: adding track for pattern %d: %w", i, err)
		}
	}

	if err := sm.WriteFile(path); err != nil {
		return fmt.Errorf("smfio: writing %q: %w", path, err)
	}
	return nil
}

func patternTrack(p *midi.Pattern) (smf.Track, error) {
	var track smf.Track

	events := append([]midi.Event(nil), p.Events.Events...)
	sortEventsByTick(events)

	var lastTick int64
	for _, e := range events {
		delta := e.Timestamp - lastTick
		if delta < 0 {
			delta = 0
		}
		lastTick = e.Timestamp

		msg, ok := channelEventToMessage(e, p.Channel)
		if !ok {
			continue
		}
		track.Add(uint32(delta), msg)
	}

	endTick := p.Length
	if endTick < lastTick {
		endTick = lastTick
	}
	track.Close(uint32(endTick - lastTick))
	return track, nil
}

func sortEventsByTick(events []midi.Event) {
	for i := 1; i < len(events); i++ {
		for j := i; j > 0 && events[j].Timestamp < events[j-1].Timestamp; j-- {
			events[j], events[j-1] = events[j-1], events[j]
		}
	}
}

func channelEventToMessage(e midi.Event, defaultChannel byte) (gomidi.Message, bool) {
	ch := defaultChannel
	if e.Channel != midi.NullChannel {
		ch = e.Channel
	}
	switch e.Status & 0xF0 {
	case midi.StatusNoteOn:
		return gomidi.NoteOn(ch, e.Data0, e.Data1), true
	case midi.StatusNoteOff:
		return gomidi.NoteOff(ch, e.Data0), true
	case midi.StatusControlChange:
		return gomidi.ControlChange(ch, e.Data0, e.Data1), true
	case midi.StatusProgramChange:
		return gomidi.ProgramChange(ch, e.Data0), true
	case midi.StatusChannelPressure:
		return gomidi.AfterTouch(ch, e.Data0), true
	case midi.StatusPitchWheel:
		abs := uint16(e.Data0) | uint16(e.Data1)<<7
		return gomidi.Pitchbend(ch, int16(abs)-8192), true
	}
	return nil, false
}
