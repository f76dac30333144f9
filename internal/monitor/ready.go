package monitor

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

const (
	readyStatus = "ready"

	// stdout kept for ready-line discovery; older bytes are dropped
	maxScanBuffer  = 1 << 20
	keepScanBuffer = 64 << 10
)

// ReadyScanner finds the first JSON object carrying an integer "port" and
// "status":"ready" anywhere in a byte stream. Text around the object, objects
// split across writes and objects nested inside structured log lines are all
// accepted.
type ReadyScanner struct {
	buf     []byte
	pending int // offsets below pending are settled
	port    int
	found   bool
}

// Feed appends chunk and reports the port once a ready object has been seen
func (s *ReadyScanner) Feed(chunk []byte) (int, bool) {
	if s.found {
		return s.port, true
	}

	s.buf = append(s.buf, chunk...)
	if len(s.buf) > maxScanBuffer {
		drop := len(s.buf) - keepScanBuffer
		s.buf = append([]byte(nil), s.buf[drop:]...)
		s.pending -= drop
		if s.pending < 0 {
			s.pending = 0
		}
	}

	nextPending := -1
	for i := s.pending; i < len(s.buf); i++ {
		if s.buf[i] != '{' {
			continue
		}

		port, complete := decodeReady(s.buf[i:])
		if port > 0 {
			s.found = true
			s.port = port
			s.buf = nil
			return port, true
		}
		if !complete && nextPending < 0 {
			nextPending = i
		}
	}

	if nextPending >= 0 {
		s.pending = nextPending
	} else {
		s.pending = len(s.buf)
	}
	return 0, false
}

// Port returns the discovered port, zero when none yet
func (s *ReadyScanner) Port() int {
	return s.port
}

// decodeReady decodes one JSON value at the start of data. complete is false
// when data ends before the value does and more input could still make it valid.
func decodeReady(data []byte) (port int, complete bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil {
		return 0, !errors.Is(err, io.ErrUnexpectedEOF)
	}

	if status, ok := obj["status"].(string); !ok || status != readyStatus {
		return 0, true
	}

	num, ok := obj["port"].(json.Number)
	if !ok {
		return 0, true
	}
	p, err := num.Int64()
	if err != nil || p < 1 || p > 65535 {
		return 0, true
	}
	return int(p), true
}
