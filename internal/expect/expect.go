// Package expect implements buffered pattern matching over a live terminal
// stream: bytes are appended as they arrive, an ordered pattern set is tested
// against the unread text, and a match consumes everything up to and
// including the matched span.
package expect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/timvw/jump-ssh/internal/transport"
)

const defaultReadSize = 4096

// scanOverlap is how far before the previously scanned end a rescan starts.
// A match longer than this that straddles two reads is not found.
const scanOverlap = 8192

// ErrConnectionClosed is matched by errors reporting that the remote side
// ended the stream while a pattern was still awaited.
var ErrConnectionClosed = errors.New("connection closed by remote")

// Pattern is one labelled regular expression in a pattern set.
type Pattern struct {
	Label string
	Re    *regexp.Regexp
}

// Literal returns a pattern matching s verbatim.
func Literal(label, s string) Pattern {
	return Pattern{Label: label, Re: regexp.MustCompile(regexp.QuoteMeta(s))}
}

// Regexp returns a pattern for expr. It panics if expr does not compile.
func Regexp(label, expr string) Pattern {
	return Pattern{Label: label, Re: regexp.MustCompile(expr)}
}

// Compile is like Regexp but returns the compile error.
func Compile(label, expr string) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("pattern %s: %w", label, err)
	}
	return Pattern{Label: label, Re: re}, nil
}

// Match describes a successful Expect.
type Match struct {
	// Index is the position of the winning pattern in the pattern set.
	Index int
	// Label is the winning pattern's label.
	Label string
	// Before is the text that preceded the match.
	Before string
	// Text is the matched span.
	Text string
}

// TimeoutError reports that no pattern matched within the allotted time.
type TimeoutError struct {
	Labels  []string
	Timeout time.Duration
	// Buffer holds the unmatched text for diagnosis.
	Buffer string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for %s", e.Timeout, strings.Join(e.Labels, " | "))
}

// ClosedError reports end of stream before any pattern matched.
type ClosedError struct {
	Labels []string
	// Buffer holds the unmatched text for diagnosis.
	Buffer string
	Err    error
}

func (e *ClosedError) Error() string {
	return fmt.Sprintf("%v while waiting for %s", ErrConnectionClosed, strings.Join(e.Labels, " | "))
}

func (e *ClosedError) Unwrap() error {
	return ErrConnectionClosed
}

// Source is the read side of a transport.
type Source interface {
	Read(ctx context.Context, size int, timeout time.Duration) ([]byte, error)
}

// Buffer accumulates decoded text from a Source. Text only leaves the buffer
// through a match.
type Buffer struct {
	src  Source
	dec  *decoder
	text []byte

	// ReadSize bounds each transport read (default 4096).
	ReadSize int

	// OnRead, when set, observes the size of every chunk read.
	OnRead func(n int)

	now func() time.Time
}

// New returns a Buffer reading from src.
func New(src Source) *Buffer {
	return &Buffer{src: src, dec: newDecoder(), now: time.Now}
}

// Pending returns the text seen but not yet consumed by a match.
func (b *Buffer) Pending() string {
	return string(b.text)
}

// Expect waits until one of patterns matches the buffered text or timeout
// elapses. Among matches the one starting earliest wins; at equal offsets the
// pattern listed first wins. The consumed prefix and match are removed from
// the buffer, later text is kept for the next call.
func (b *Buffer) Expect(ctx context.Context, patterns []Pattern, timeout time.Duration) (Match, error) {
	if len(patterns) == 0 {
		return Match{}, errors.New("expect: empty pattern set")
	}
	deadline := b.now().Add(timeout)

	// Text before scanned has already been searched without a match.
	scanned := 0
	for {
		if m, ok := b.match(patterns, scanned); ok {
			return m, nil
		}
		scanned = len(b.text)

		remaining := deadline.Sub(b.now())
		if remaining <= 0 {
			return Match{}, &TimeoutError{Labels: labels(patterns), Timeout: timeout, Buffer: string(b.text)}
		}

		chunk, err := b.src.Read(ctx, b.readSize(), remaining)
		if len(chunk) > 0 {
			b.append(chunk, false)
		}

		switch {
		case err == nil, errors.Is(err, transport.ErrReadTimeout):
		case errors.Is(err, io.EOF):
			b.append(nil, true)
			if m, ok := b.match(patterns, scanned); ok {
				return m, nil
			}
			return Match{}, &ClosedError{Labels: labels(patterns), Buffer: string(b.text), Err: err}
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return Match{}, err
		default:
			return Match{}, fmt.Errorf("expect read: %w", err)
		}
	}
}

// match finds the winning pattern and consumes the buffer through it. The
// search starts scanOverlap bytes before scanned, so each call costs the
// new text plus a fixed window rather than the whole buffer.
func (b *Buffer) match(patterns []Pattern, scanned int) (Match, bool) {
	from := max(scanned-scanOverlap, 0)
	for from > 0 && !utf8.RuneStart(b.text[from]) {
		from--
	}
	window := b.text[from:]

	best := -1
	var start, end int
	for i, p := range patterns {
		loc := p.Re.FindIndex(window)
		if loc == nil {
			continue
		}
		if best < 0 || loc[0] < start {
			best, start, end = i, loc[0], loc[1]
		}
	}
	if best < 0 {
		return Match{}, false
	}
	start += from
	end += from

	m := Match{
		Index:  best,
		Label:  patterns[best].Label,
		Before: string(b.text[:start]),
		Text:   string(b.text[start:end]),
	}
	// Copy the rest so the consumed prefix can be collected.
	b.text = append([]byte(nil), b.text[end:]...)
	return m, true
}

func (b *Buffer) append(chunk []byte, atEOF bool) {
	if b.OnRead != nil && len(chunk) > 0 {
		b.OnRead(len(chunk))
	}
	b.text = append(b.text, b.dec.decode(chunk, atEOF)...)
}

func (b *Buffer) readSize() int {
	if b.ReadSize > 0 {
		return b.ReadSize
	}
	return defaultReadSize
}

func labels(patterns []Pattern) []string {
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = p.Label
	}
	return out
}
