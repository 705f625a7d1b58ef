package stream

import (
	"bufio"
	"io"
	"strings"
)

// Frame is one server-sent event.
type Frame struct {
	// Event is the value of the "event:" field, empty for the default type.
	Event string

	// Data joins the frame's "data:" lines with newlines.
	Data string

	// ID is the value of the "id:" field, empty if the frame carried none.
	ID string
}

// IsMessage reports whether the frame carries a deliverable record.
func (f Frame) IsMessage() bool {
	return f.Event == "" || f.Event == "message"
}

// Scanner reads frames from a text/event-stream body.
//
// A blank line ends a frame. Lines starting with ":" are comments (the
// upstream uses them as keep-alives) and are skipped, as are fields other
// than event, data and id. A frame without data lines is not reported.
//
//	scanner := NewScanner(body)
//	for scanner.Next() {
//	    frame := scanner.Frame()
//	}
//	if err := scanner.Err(); err != nil {
//	    // read error; nil means the stream ended
//	}
type Scanner struct {
	reader *bufio.Reader
	frame  Frame
	err    error
	done   bool
}

// NewScanner creates a scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Next advances to the next frame. It returns false at the end of the
// stream or on a read error.
func (s *Scanner) Next() bool {
	if s.done {
		return false
	}
	s.frame = Frame{}

	var (
		data    []string
		hasData bool
		event   string
		id      string
	)
	emit := func() bool {
		s.frame = Frame{Event: event, Data: strings.Join(data, "\n"), ID: id}
		return true
	}

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			s.done = true
			if err != io.EOF {
				s.err = err
				return false
			}
			// A final frame missing its blank line still counts.
			if hasData {
				return emit()
			}
			return false
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if hasData {
				return emit()
			}
			event, id = "", ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if found {
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "data":
			data = append(data, value)
			hasData = true
		case "event":
			event = value
		case "id":
			id = value
		}
	}
}

// Frame returns the frame read by the last successful call to Next.
func (s *Scanner) Frame() Frame {
	return s.frame
}

// Err returns the read error that stopped the scanner, or nil if the
// stream simply ended.
func (s *Scanner) Err() error {
	return s.err
}
