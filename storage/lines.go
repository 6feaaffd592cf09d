package storage

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// LineReader reads newline-terminated records with a per-line size cap.
// A line longer than the cap is returned truncated and flagged; the rest of
// it is discarded so the next call starts on the following line.
type LineReader struct {
	r   *bufio.Reader
	max int
	buf []byte
}

// NewLineReader creates a reader that keeps at most maxLine bytes of a line
func NewLineReader(r io.Reader, maxLine int) *LineReader {
	return &LineReader{r: bufio.NewReaderSize(r, 64*1024), max: maxLine}
}

// Next returns the next line without its line terminator. tooLong reports
// that the line exceeded the cap. The returned slice is only valid until the
// next call. io.EOF is returned once the input is exhausted.
func (l *LineReader) Next() (line []byte, tooLong bool, err error) {
	l.buf = l.buf[:0]
	for {
		chunk, err := l.r.ReadSlice('\n')
		data := chunk
		if err == nil {
			data = data[:len(data)-1]
		}
		if !tooLong {
			if room := l.max - len(l.buf); len(data) > room {
				l.buf = append(l.buf, data[:room]...)
				tooLong = true
			} else {
				l.buf = append(l.buf, data...)
			}
		}

		switch {
		case err == nil:
			return bytes.TrimSuffix(l.buf, []byte{'\r'}), tooLong, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if len(chunk) == 0 && len(l.buf) == 0 && !tooLong {
				return nil, false, io.EOF
			}
			return bytes.TrimSuffix(l.buf, []byte{'\r'}), tooLong, nil
		default:
			return nil, false, err
		}
	}
}
