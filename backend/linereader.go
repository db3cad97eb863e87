package backend

import (
	"bufio"
	"io"
)

// lineReader only ever yields whole newline-terminated lines. A trailing
// partial line is held back (and EOF reported) until the rest of it has been
// written, so a CSV reader over a file that is still growing never parses
// half a record.
type lineReader struct {
	src *bufio.Reader
	// ready is a complete line not yet handed to the caller.
	ready []byte
	// partial accumulates an unterminated line across reads.
	partial []byte
}

var _ io.Reader = (*lineReader)(nil)

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{src: bufio.NewReader(r)}
}

func (l *lineReader) Read(b []byte) (int, error) {
	if len(l.ready) == 0 {
		line, err := l.src.ReadBytes('\n')
		l.partial = append(l.partial, line...)
		if err != nil {
			return 0, io.EOF
		}
		l.ready, l.partial = l.partial, nil
	}
	n := copy(b, l.ready)
	l.ready = l.ready[n:]
	return n, nil
}
