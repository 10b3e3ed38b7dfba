package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// MaxLineBytes caps how much of one physical line is buffered. Anything past
// it is discarded up to the next newline.
const MaxLineBytes = 64 * 1024

// ErrLineTooLong is returned by ReadLine for a line longer than MaxLineBytes.
// The offending line has been consumed, so reading can continue.
var ErrLineTooLong = errors.New("protocol: line too long")

// LineReader reads newline-terminated lines with a hard size bound.
type LineReader struct {
	r   *bufio.Reader
	buf []byte
	max int
}

// NewLineReader wraps r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{
		r:   bufio.NewReaderSize(r, 4096),
		max: MaxLineBytes,
	}
}

// ReadLine returns the next line without its "\n" or "\r\n" terminator. A
// final unterminated line is returned before io.EOF.
func (lr *LineReader) ReadLine() (string, error) {
	lr.buf = lr.buf[:0]
	overflow := false
	for {
		chunk, err := lr.r.ReadSlice('\n')
		if !overflow {
			if len(lr.buf)+len(chunk) > lr.max {
				overflow = true
				lr.buf = lr.buf[:0]
			} else {
				lr.buf = append(lr.buf, chunk...)
			}
		}

		switch {
		case err == nil:
			if overflow {
				return "", ErrLineTooLong
			}
			return trimEOL(lr.buf), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && !overflow && len(lr.buf) > 0:
			return trimEOL(lr.buf), nil
		default:
			return "", fmt.Errorf("protocol: read line: %w", err)
		}
	}
}

func trimEOL(b []byte) string {
	s := string(b)
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}
