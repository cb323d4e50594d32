package launch

import (
	"bytes"
	"io"
	"sync"
)

// resetSeq is the bare SGR reset the playpen script emits around its
// coloured output; it renders as garbage in a plain log.
var resetSeq = []byte("\x1b[m")

// OutputSink is an append-only writer for process output. It strips resetSeq,
// including occurrences split across writes, and fans each cleaned chunk out
// to an underlying writer and an optional callback.
type OutputSink struct {
	mu      sync.Mutex
	w       io.Writer
	onChunk func([]byte)
	pending []byte
}

// NewOutputSink wraps w. onChunk may be nil; it receives a copy of each
// cleaned chunk after it has been written to w.
func NewOutputSink(w io.Writer, onChunk func([]byte)) *OutputSink {
	return &OutputSink{w: w, onChunk: onChunk}
}

func (s *OutputSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := append(s.pending, p...)
	s.pending = nil
	data = bytes.ReplaceAll(data, resetSeq, nil)

	// Hold back a trailing partial sequence until the next write.
	if n := partialSuffix(data); n > 0 {
		s.pending = append([]byte(nil), data[len(data)-n:]...)
		data = data[:len(data)-n]
	}

	if err := s.emit(data); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Flush writes any held-back bytes.
func (s *OutputSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.pending
	s.pending = nil
	return s.emit(data)
}

func (s *OutputSink) emit(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if _, err := s.w.Write(data); err != nil {
		return err
	}
	if s.onChunk != nil {
		s.onChunk(append([]byte(nil), data...))
	}
	return nil
}

// partialSuffix returns the length of the longest proper prefix of resetSeq
// that data ends with.
func partialSuffix(data []byte) int {
	for n := len(resetSeq) - 1; n > 0; n-- {
		if bytes.HasSuffix(data, resetSeq[:n]) {
			return n
		}
	}
	return 0
}
