package llm

import (
	"bufio"
	"bytes"
	"io"
	"sync"
)

// ChunkSource yields raw chunk payloads in arrival order. Next returns io.EOF
// once the source is exhausted.
type ChunkSource interface {
	Next() ([]byte, error)
	Close() error
}

// sseSource reads the data payloads of a server-sent event stream.
type sseSource struct {
	r      *bufio.Reader
	closer io.Closer
}

func newSSESource(body io.ReadCloser) *sseSource {
	return &sseSource{r: bufio.NewReaderSize(body, 64*1024), closer: body}
}

// Next concatenates the data lines of the next event with "\n".
func (s *sseSource) Next() ([]byte, error) {
	var dataLines [][]byte
	for {
		line, err := s.r.ReadBytes('\n')
		if err != nil {
			line = bytes.TrimRight(line, "\r\n")
			if len(line) > 0 {
				dataLines = appendDataLine(dataLines, line)
			}
			if len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			if len(dataLines) == 0 {
				continue
			}
			return bytes.Join(dataLines, []byte("\n")), nil
		}
		if line[0] == ':' {
			continue
		}
		dataLines = appendDataLine(dataLines, line)
	}
}

func (s *sseSource) Close() error {
	return s.closer.Close()
}

func appendDataLine(dst [][]byte, line []byte) [][]byte {
	if !bytes.HasPrefix(line, []byte("data:")) {
		return dst
	}
	val := line[len("data:"):]
	if len(val) > 0 && val[0] == ' ' {
		val = val[1:]
	}
	return append(dst, append([]byte(nil), val...))
}

// bodySource yields a whole non-streaming response body as a single chunk.
type bodySource struct {
	body io.ReadCloser
	read bool
}

func (s *bodySource) Next() ([]byte, error) {
	if s.read {
		return nil, io.EOF
	}
	s.read = true
	data, err := io.ReadAll(s.body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, io.EOF
	}
	return data, nil
}

func (s *bodySource) Close() error {
	return s.body.Close()
}

// SliceSource replays fixed chunks. It is used for recorded streams and in
// tests.
type SliceSource struct {
	mu     sync.Mutex
	chunks [][]byte
	pos    int
	closed bool
}

func NewSliceSource(chunks ...string) *SliceSource {
	s := &SliceSource{}
	for _, c := range chunks {
		s.chunks = append(s.chunks, []byte(c))
	}
	return s
}

func (s *SliceSource) Next() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.pos >= len(s.chunks) {
		return nil, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

func (s *SliceSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *SliceSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
