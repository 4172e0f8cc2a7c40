package verification

import (
	"bufio"
	"io"
	"strings"
)

// Event is one server-sent event of the batch stream.
type Event struct {
	Name string
	Data string
}

type startEvent struct {
	Total          int `json:"total"`
	RemainingQuota int `json:"remaining_quota"`
	Cost           int `json:"cost"`
}

type resultEvent struct {
	ID          string `json:"id"`
	CurrentStep string `json:"current_step"`
	Message     string `json:"message"`
	CheckToken  string `json:"check_token,omitempty"`
}

type endEvent struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

const maxEventSize = 1 << 20

// readEvents parses a text/event-stream body and calls emit for every
// complete event. It stops at EOF, on a read error or when emit returns
// false. Comment lines and unknown fields are ignored; multiple data lines
// are joined with "\n".
func readEvents(r io.Reader, emit func(Event) bool) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var (
		ev   Event
		data []string
	)
	flush := func() bool {
		if len(data) == 0 && ev.Name == "" {
			return true
		}
		ev.Data = strings.Join(data, "\n")
		if ev.Name == "" {
			ev.Name = "message"
		}
		ok := emit(ev)
		ev, data = Event{}, nil
		return ok
	}

	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if !flush() {
				return nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Name = value
		case "data":
			data = append(data, value)
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	flush()
	return nil
}
