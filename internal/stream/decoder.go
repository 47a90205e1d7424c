package stream

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Decoder turns arbitrarily chunked bytes back into frames. Incomplete lines
// stay buffered until their newline arrives, so chunk boundaries may fall
// anywhere, including inside a UTF-8 sequence. Lines whose JSON cannot be
// parsed are dropped. Once Done is decoded every further byte is ignored.
type Decoder struct {
	buf     []byte
	done    bool
	dropped int
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed consumes a chunk and returns the frames completed by it.
func (d *Decoder) Feed(chunk []byte) []Frame {
	if d.done {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var frames []Frame
	for !d.done {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := d.buf[:i]
		d.buf = d.buf[i+1:]
		if f, ok := d.parseLine(line); ok {
			frames = append(frames, f)
		}
	}
	if d.done {
		d.buf = nil
	}
	return frames
}

// Flush decodes whatever unterminated line remains once the transport has
// ended.
func (d *Decoder) Flush() []Frame {
	if d.done || len(d.buf) == 0 {
		d.buf = nil
		return nil
	}
	line := d.buf
	d.buf = nil
	if f, ok := d.parseLine(line); ok {
		return []Frame{f}
	}
	return nil
}

func (d *Decoder) parseLine(line []byte) (Frame, bool) {
	s := strings.TrimSuffix(string(line), "\r")
	data, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return Frame{}, false
	}
	data = strings.TrimPrefix(data, " ")

	if data == Sentinel {
		d.done = true
		return Done(), true
	}

	var p payload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		d.dropped++
		return Frame{}, false
	}
	if p.Content == "" {
		return Frame{}, false
	}
	return Content(p.Content), true
}

// Done reports whether the terminal frame has been decoded.
func (d *Decoder) Done() bool { return d.done }

// Dropped counts lines discarded because their payload was not valid JSON.
func (d *Decoder) Dropped() int { return d.dropped }

// Buffered returns the number of bytes waiting for a newline.
func (d *Decoder) Buffered() int { return len(d.buf) }
