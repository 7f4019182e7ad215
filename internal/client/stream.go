package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/hl-fury/xai-narrative-service/internal/domain"
)

// ErrTruncated reports a stream that ended before a terminal event arrived.
var ErrTruncated = errors.New("stream ended before a terminal event")

// lineBuffer assembles complete lines from arbitrarily sized chunks. Network
// reads can split a frame anywhere, including mid-line; only complete lines
// are released.
type lineBuffer struct {
	partial []byte
}

// Append adds a chunk and returns the lines it completed, without their
// newline. The trailing partial line stays buffered.
func (b *lineBuffer) Append(chunk []byte) []string {
	b.partial = append(b.partial, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(b.partial, '\n')
		if i < 0 {
			return lines
		}
		line := string(b.partial[:i])
		b.partial = b.partial[i+1:]
		lines = append(lines, strings.TrimSuffix(line, "\r"))
	}
}

// Pending reports whether an incomplete line is still buffered.
func (b *lineBuffer) Pending() bool {
	return len(b.partial) > 0
}

// EventReader decodes line-framed explanation events from a stream body.
// Lines that are not well-formed events are logged and skipped; they never
// abort the stream.
type EventReader struct {
	r        io.Reader
	buf      lineBuffer
	lines    []string
	logger   *slog.Logger
	terminal bool
	readBuf  [4096]byte
}

func NewEventReader(r io.Reader, logger *slog.Logger) *EventReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventReader{r: r, logger: logger}
}

// Next returns the next decoded event. It returns io.EOF after a clean end
// of stream and ErrTruncated when the stream ends without a terminal event.
func (er *EventReader) Next() (*domain.StreamEvent, error) {
	for {
		for len(er.lines) > 0 {
			line := er.lines[0]
			er.lines = er.lines[1:]

			event, ok := er.decodeLine(line)
			if !ok {
				continue
			}
			if event.Type == domain.EventComplete || event.Type == domain.EventError {
				er.terminal = true
			}
			return event, nil
		}

		n, err := er.r.Read(er.readBuf[:])
		if n > 0 {
			er.lines = append(er.lines, er.buf.Append(er.readBuf[:n])...)
		}
		if err != nil {
			if err == io.EOF {
				if len(er.lines) > 0 {
					continue
				}
				if !er.terminal {
					return nil, ErrTruncated
				}
				return nil, io.EOF
			}
			if !er.terminal {
				return nil, err
			}
			return nil, io.EOF
		}
	}
}

// decodeLine parses one line into an event. Blank lines are frame
// separators; anything else that fails to decode is skipped.
func (er *EventReader) decodeLine(line string) (*domain.StreamEvent, bool) {
	if strings.TrimSpace(line) == "" {
		return nil, false
	}
	if !strings.HasPrefix(line, domain.EventPrefix) {
		er.logger.Warn("skipping non-event stream line", slog.String("line", truncate(line, 120)))
		return nil, false
	}

	payload := strings.TrimPrefix(line, domain.EventPrefix)
	var event domain.StreamEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		er.logger.Warn("skipping malformed stream event",
			slog.String("payload", truncate(payload, 120)), slog.String("error", err.Error()))
		return nil, false
	}
	if event.Type == "" {
		er.logger.Warn("skipping stream event with no type", slog.String("payload", truncate(payload, 120)))
		return nil, false
	}
	return &event, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
