package gsm

import (
	"bufio"
	"io"
	"strings"
)

// continuationPrefix is the indentation that marks a line as belonging to
// the record started by the most recent non-indented line.
const continuationPrefix = "    "

// Segmenter splits a dissector's line stream into raw record strings.
// A line beginning with four spaces continues the current record; any
// other line starts a new one, causing the previously accumulated record
// (if any) to become available via Text(). The final record is flushed
// when the underlying stream closes.
//
// Segmenter mirrors the bufio.Scanner contract: call Scan in a loop, read
// Text after each true return, stop on the first false (check Err for
// anything other than io.EOF).
type Segmenter struct {
	scanner *bufio.Scanner
	current strings.Builder
	pending string
	done    bool
}

// NewSegmenter creates a Segmenter reading from r.
func NewSegmenter(r io.Reader) *Segmenter {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &Segmenter{scanner: s}
}

// Scan advances to the next complete record, returning false when the
// underlying stream is exhausted and no record remains to emit.
func (s *Segmenter) Scan() bool {
	if s.done {
		return false
	}

	for s.scanner.Scan() {
		line := s.scanner.Text()
		if strings.HasPrefix(line, continuationPrefix) {
			s.current.WriteString(line)
			s.current.WriteByte('\n')
			continue
		}

		if s.current.Len() > 0 {
			s.pending = strings.TrimRight(s.current.String(), "\n")
			s.current.Reset()
			s.current.WriteString(line)
			s.current.WriteByte('\n')
			return true
		}

		s.current.WriteString(line)
		s.current.WriteByte('\n')
	}

	s.done = true
	if s.current.Len() == 0 {
		return false
	}
	s.pending = strings.TrimRight(s.current.String(), "\n")
	s.current.Reset()
	return true
}

// Text returns the most recently scanned record.
func (s *Segmenter) Text() string {
	return s.pending
}

// Err returns the first non-EOF error encountered by the underlying reader.
func (s *Segmenter) Err() error {
	return s.scanner.Err()
}
