package midi

// EncodeWire renders an Event as raw MIDI wire bytes (status+data for
// channel-voice events, a complete SysEx frame for SysEx, or nil for Meta
// events, which never leave the file/pattern domain). channel overrides
// e.Channel when e.Channel is NullChannel, letting the caller supply the
// pattern's default channel.
func EncodeWire(e Event, channel byte) []byte {
	switch e.Kind {
	case KindMeta:
		return nil
	case KindSysEx:
		out := make([]byte, 0, len(e.Extra)+2)
		out = append(out, StatusSysEx)
		out = append(out, e.Extra...)
		out = append(out, StatusSysExEnd)
		return out
	default:
		ch := channel
		if e.Channel != NullChannel {
			ch = e.Channel
		}
		status := e.Status | (ch & 0x0F)
		switch e.Status & 0xF0 {
		case StatusProgramChange, StatusChannelPressure:
			return []byte{status, e.Data0}
		default:
			return []byte{status, e.Data0, e.Data1}
		}
	}
}

// DecodeWire builds an Event from raw MIDI bytes received at timestamp
// (engine ticks). Running status is not handled here — callers that read a
// byte stream with running status compression must expand it before
// calling DecodeWire (gomidi's smf/drivers readers already do this).
func DecodeWire(raw []byte, timestamp int64) Event {
	if len(raw) == 0 {
		return NewEvent(timestamp, 0, NullChannel, 0, 0)
	}
	status := raw[0]
	if status&0xF0 == StatusSysEx || status >= StatusSysEx {
		if status == StatusSysEx && len(raw) >= 2 {
			payload := raw[1:]
			if payload[len(payload)-1] == StatusSysExEnd {
				payload = payload[:len(payload)-1]
			}
			return NewSysEx(timestamp, append([]byte(nil), payload...))
		}
		return NewEvent(timestamp, status, NullChannel, 0, 0)
	}
	ch := status & 0x0F
	top := status & 0xF0
	var d0, d1 byte
	if len(raw) > 1 {
		d0 = raw[1]
	}
	if len(raw) > 2 {
		d1 = raw[2]
	}
	return NewEvent(timestamp, top, ch, d0, d1)
}
