// Package protocol implements newline framing for stream transports.
//
// A stream socket (Unix domain socket, TCP) delivers bytes, not messages. Each
// message is written as one line of JSON terminated by a single '\n':
//
//	{"id":"1","command":"ping","arguments":{}}\n
//	{"id":"2","command":"echo","arguments":{"text":"hi"}}\n
//
// A read may return half a line or several lines at once, so the receiver
// keeps a LineBuffer per connection and only hands out complete lines.
// Message-oriented transports (WebSocket) need no framing at all.
package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

const (
	Delimiter byte = '\n'

	// DefaultMaxFrameSize bounds a single line. A peer that streams more than
	// this without a delimiter is broken and its connection is dropped.
	DefaultMaxFrameSize = 16 << 20
)

var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// Encode writes body followed by the delimiter.
// The caller must hold a write lock if multiple goroutines share the same writer,
// otherwise lines from different messages interleave and corrupt the stream.
func Encode(w io.Writer, body []byte) error {
	frame := make([]byte, 0, len(body)+1)
	frame = append(frame, body...)
	frame = append(frame, Delimiter)
	_, err := w.Write(frame)
	return err
}

// LineBuffer accumulates partial reads and splits them into complete lines.
// It is not safe for concurrent use; each connection owns its own buffer.
type LineBuffer struct {
	buf     []byte
	maxSize int
}

// NewLineBuffer creates a buffer rejecting lines longer than maxSize bytes.
// A non-positive maxSize selects DefaultMaxFrameSize.
func NewLineBuffer(maxSize int) *LineBuffer {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &LineBuffer{maxSize: maxSize}
}

// Feed appends chunk and returns every line it completed, without delimiters.
// An incomplete trailing line is carried forward to the next call. Blank lines
// are skipped.
func (b *LineBuffer) Feed(chunk []byte) ([][]byte, error) {
	b.buf = append(b.buf, chunk...)

	var lines [][]byte
	for {
		idx := bytes.IndexByte(b.buf, Delimiter)
		if idx < 0 {
			break
		}
		if idx > b.maxSize {
			b.buf = nil
			return lines, fmt.Errorf("%w: %d byte line", ErrFrameTooLarge, idx)
		}
		line := bytes.TrimSpace(b.buf[:idx])
		if len(line) > 0 {
			// Copy out: the backing array is reused for later reads.
			lines = append(lines, append([]byte(nil), line...))
		}
		b.buf = b.buf[idx+1:]
	}

	if len(b.buf) > b.maxSize {
		pending := len(b.buf)
		b.buf = nil
		return lines, fmt.Errorf("%w: %d bytes without delimiter", ErrFrameTooLarge, pending)
	}
	if len(b.buf) == 0 {
		b.buf = nil
	}
	return lines, nil
}

// Buffered returns the number of bytes held for an incomplete line.
func (b *LineBuffer) Buffered() int {
	return len(b.buf)
}
