// Package extract locates a single JSON object inside free-form model output.
//
// Model responses wrap the JSON payload in prose, markdown fences or stray
// tokens, so the extractor scans for the first balanced {...} object while
// honoring string literals and escape sequences. Braces inside string values
// do not confuse it.
package extract

import (
	"encoding/json"
	"errors"
	"strings"
)

var (
	// ErrNoObject means the buffer contains no complete top-level JSON object.
	ErrNoObject = errors.New("no JSON object found")

	// ErrMalformedJSON means a balanced {...} span was found but is not valid JSON.
	ErrMalformedJSON = errors.New("malformed JSON object")
)

// Scanner incrementally consumes streamed text and captures the first
// balanced top-level JSON object it sees. Feeding it token by token avoids
// rescanning the whole accumulated buffer on every chunk.
//
// The zero value is ready to use. Not safe for concurrent use.
type Scanner struct {
	buf      strings.Builder
	depth    int
	started  bool
	done     bool
	inString bool
	escaped  bool
	object   string
}

// Feed consumes the next chunk of streamed text. Input before the first '{'
// and after the captured object is ignored.
func (s *Scanner) Feed(chunk string) {
	if s.done {
		return
	}
	for i := 0; i < len(chunk); i++ {
		c := chunk[i]

		if !s.started {
			if c != '{' {
				continue
			}
			s.started = true
		}

		s.buf.WriteByte(c)

		if s.inString {
			switch {
			case s.escaped:
				s.escaped = false
			case c == '\\':
				s.escaped = true
			case c == '"':
				s.inString = false
			}
			continue
		}

		switch c {
		case '"':
			s.inString = true
		case '{':
			s.depth++
		case '}':
			s.depth--
			if s.depth == 0 {
				s.object = s.buf.String()
				s.done = true
				return
			}
		}
	}
}

// Result returns the captured object once the scanner has seen a complete
// balanced span. ErrNoObject if no span completed; ErrMalformedJSON if the
// span is balanced but not valid JSON.
func (s *Scanner) Result() (string, error) {
	if !s.done {
		return "", ErrNoObject
	}
	if !json.Valid([]byte(s.object)) {
		return "", ErrMalformedJSON
	}
	return s.object, nil
}

// Parse runs a fresh scan over buf and returns the first valid JSON object.
func Parse(buf string) (string, error) {
	var s Scanner
	s.Feed(buf)
	return s.Result()
}
