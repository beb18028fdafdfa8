// Package recfile reads and writes recording files.
//
// A recording is newline-delimited text, one frame per line:
//
//	<delayNanos> <universe> [<b0>, <b1>, ..., <bn>]
//
// followed by a single footer line, the only line starting with '!':
//
//	!<u0>,<u1>,... <totalDurationMillis>
//
// Files ending in .artrec are gzip-compressed, .rawrec files are plain text.
// The footer is found by scanning backwards from the end of the file, so a
// data line must never start with the marker; payloads are always written as
// decimal CSV, which guarantees that.
package recfile

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// File naming
const (
	ExtRaw        = ".rawrec"
	ExtCompressed = ".artrec"
	FilePrefix    = "Art-Rec_"
	// TimestampLayout formats the default file name timestamp
	TimestampLayout = "2006-01-02_150405"
)

// FooterMarker starts the footer line
const FooterMarker = '!'

// Frame is one recorded ArtDmx payload
type Frame struct {
	// Delay since the previous frame of the recording
	Delay    time.Duration
	Universe int
	Payload  []byte
}

// Footer is the trailing metadata of a recording
type Footer struct {
	// Universes in the order they were requested
	Universes []int
	Duration  time.Duration
}

// FormatError reports a line that does not match the recording format
type FormatError struct {
	Line   int
	Text   string
	Reason string
}

func (e *FormatError) Error() string {
	text := e.Text
	if len(text) > 40 {
		text = text[:40] + "..."
	}
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, text)
	}
	return fmt.Sprintf("%s: %q", e.Reason, text)
}

// AppendFrame appends the text form of f, including the newline, to dst
func AppendFrame(dst []byte, f Frame) []byte {
	dst = strconv.AppendInt(dst, max(int64(f.Delay), 0), 10)
	dst = append(dst, ' ')
	dst = strconv.AppendInt(dst, int64(f.Universe), 10)
	dst = append(dst, ' ', '[')
	for i, b := range f.Payload {
		if i > 0 {
			dst = append(dst, ',', ' ')
		}
		dst = strconv.AppendUint(dst, uint64(b), 10)
	}
	return append(dst, ']', '\n')
}

// ParseFrame parses one data line, with or without its trailing newline
func ParseFrame(line string) (Frame, error) {
	line = strings.TrimRight(line, "\r\n")

	fail := func(reason string) (Frame, error) {
		return Frame{}, &FormatError{Text: line, Reason: reason}
	}

	if IsFooter(line) {
		return fail("footer is not a frame")
	}

	delayField, rest, ok := strings.Cut(line, " ")
	if !ok {
		return fail("missing universe")
	}
	universeField, data, ok := strings.Cut(rest, " ")
	if !ok {
		return fail("missing payload")
	}

	delay, err := strconv.ParseInt(delayField, 10, 64)
	if err != nil || delay < 0 {
		return fail("invalid delay")
	}
	universe, err := strconv.Atoi(universeField)
	if err != nil || universe < 0 {
		return fail("invalid universe")
	}

	if len(data) < 2 || data[0] != '[' || data[len(data)-1] != ']' {
		return fail("payload not bracketed")
	}
	data = strings.TrimSpace(data[1 : len(data)-1])

	var payload []byte
	if data != "" {
		fields := strings.Split(data, ",")
		payload = make([]byte, len(fields))
		for i, field := range fields {
			v, err := strconv.ParseUint(strings.TrimSpace(field), 10, 8)
			if err != nil {
				return fail("invalid payload byte")
			}
			payload[i] = byte(v)
		}
	}

	return Frame{
		Delay:    time.Duration(delay),
		Universe: universe,
		Payload:  payload,
	}, nil
}

// Line returns the footer line including the marker and newline
func (f Footer) Line() string {
	var sb strings.Builder
	sb.WriteByte(FooterMarker)
	for i, u := range f.Universes {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(u))
	}
	sb.WriteByte(' ')
	sb.WriteString(strconv.FormatInt(f.Duration.Round(time.Millisecond).Milliseconds(), 10))
	sb.WriteByte('\n')
	return sb.String()
}

// ParseFooter parses a footer line
func ParseFooter(line string) (Footer, error) {
	line = strings.TrimSpace(line)

	fail := func(reason string) (Footer, error) {
		return Footer{}, &FormatError{Text: line, Reason: reason}
	}

	if line == "" || line[0] != FooterMarker {
		return fail("missing footer marker")
	}

	universeList, millis, ok := strings.Cut(line[1:], " ")
	if !ok {
		return fail("missing duration")
	}

	ms, err := strconv.ParseInt(strings.TrimSpace(millis), 10, 64)
	if err != nil || ms < 0 {
		return fail("invalid duration")
	}

	var universes []int
	for _, field := range strings.Split(universeList, ",") {
		u, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil || u < 0 {
			return fail("invalid universe list")
		}
		universes = append(universes, u)
	}

	return Footer{
		Universes: universes,
		Duration:  time.Duration(ms) * time.Millisecond,
	}, nil
}

// IsFooter reports whether a line is the footer
func IsFooter(line string) bool {
	return len(line) > 0 && line[0] == FooterMarker
}
