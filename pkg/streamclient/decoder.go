package streamclient

import (
	"bytes"
	"encoding/json"
	"io"
)

var frameSep = []byte("\n\n")

// Decoder splits an SSE byte stream into StreamEvents. Pushes are chunk-wise:
// a chunk may hold zero, one or many complete frames plus a trailing partial
// frame, which is kept until a later push completes it.
type Decoder struct {
	buf []byte
}

// Push appends a chunk and returns every event completed by it. Malformed
// frames are logged and dropped; they never abort decoding.
func (d *Decoder) Push(p []byte) []StreamEvent {
	d.buf = append(d.buf, p...)

	var events []StreamEvent
	for {
		i := bytes.Index(d.buf, frameSep)
		if i < 0 {
			return events
		}
		frame := d.buf[:i]
		d.buf = d.buf[i+len(frameSep):]

		ev, ok := decodeFrame(frame)
		if ok {
			events = append(events, ev)
		}
	}
}

func decodeFrame(frame []byte) (StreamEvent, bool) {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 {
		return StreamEvent{}, false
	}
	rest, ok := bytes.CutPrefix(frame, []byte("data:"))
	if !ok {
		log.Warn().Str("frame", string(frame)).Msg("dropping frame without data prefix")
		return StreamEvent{}, false
	}
	rest = bytes.TrimSpace(rest)

	var ev StreamEvent
	if err := json.Unmarshal(rest, &ev); err != nil || ev.Event == "" {
		log.Warn().Str("frame", string(frame)).Msg("dropping malformed frame")
		return StreamEvent{}, false
	}
	return ev, true
}

// Scanner reads frames from an io.Reader chunk-wise. At end of stream any
// retained partial frame is a truncated unit and is discarded.
type Scanner struct {
	r       io.Reader
	dec     Decoder
	pending []StreamEvent
	err     error
}

func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: r}
}

// Next returns the next event, reading more chunks as needed. It returns
// io.EOF once the underlying stream is exhausted.
func (s *Scanner) Next() (StreamEvent, error) {
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}
		if s.err != nil {
			return StreamEvent{}, s.err
		}

		chunk := make([]byte, 4096)
		n, err := s.r.Read(chunk)
		if n > 0 {
			s.pending = s.dec.Push(chunk[:n])
		}
		if err != nil {
			if err != io.EOF {
				s.err = err
			} else {
				s.err = io.EOF
				if len(s.dec.buf) > 0 {
					log.Debug().Int("bytes", len(s.dec.buf)).Msg("discarding truncated trailing frame")
					s.dec.buf = nil
				}
			}
		}
	}
}
