// Package transporttest provides an in-memory Transport for driving the
// session engine from scripted terminal output.
package transporttest

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/timvw/jump-ssh/internal/transport"
)

// Reply decides what the remote side renders after the engine writes input.
// Returned chunks are queued in order.
type Reply func(input string) []string

// Fake is a scripted Transport. Output queued with Emit is handed out by
// Read; every Write is recorded and passed to OnWrite.
type Fake struct {
	mu      sync.Mutex
	queue   []string
	eof     bool
	closed  bool
	notify  chan struct{}
	writes  []string
	closes  int
	onWrite Reply

	// ReadErr, when set, is returned by Read once the queue is empty.
	ReadErr error
}

// New returns a Fake that renders initial before anything is written.
func New(initial ...string) *Fake {
	f := &Fake{notify: make(chan struct{}, 1)}
	f.queue = append(f.queue, initial...)
	return f
}

// OnWrite installs the reply function.
func (f *Fake) OnWrite(r Reply) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onWrite = r
	return f
}

// Emit queues output as if the remote side rendered it.
func (f *Fake) Emit(chunks ...string) {
	f.mu.Lock()
	f.queue = append(f.queue, chunks...)
	f.mu.Unlock()
	f.wake()
}

// Hangup marks the end of stream once queued output is drained.
func (f *Fake) Hangup() {
	f.mu.Lock()
	f.eof = true
	f.mu.Unlock()
	f.wake()
}

func (f *Fake) wake() {
	select {
	case f.notify <- struct{}{}:
	default:
	}
}

// Name returns "fake".
func (f *Fake) Name() string {
	return "fake"
}

// Write records p and queues the scripted reply.
func (f *Fake) Write(p []byte) (int, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return 0, transport.ErrClosed
	}
	input := string(p)
	f.writes = append(f.writes, input)
	reply := f.onWrite
	f.mu.Unlock()

	if reply != nil {
		if chunks := reply(input); len(chunks) > 0 {
			f.Emit(chunks...)
		}
	}
	return len(p), nil
}

// Read hands out queued output, honoring size and timeout like a real transport.
func (f *Fake) Read(ctx context.Context, size int, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return nil, transport.ErrClosed
		}
		if len(f.queue) > 0 {
			chunk := f.queue[0]
			if size > 0 && len(chunk) > size {
				f.queue[0] = chunk[size:]
				chunk = chunk[:size]
			} else {
				f.queue = f.queue[1:]
			}
			f.mu.Unlock()
			return []byte(chunk), nil
		}
		if f.ReadErr != nil {
			err := f.ReadErr
			f.mu.Unlock()
			return nil, err
		}
		if f.eof {
			f.mu.Unlock()
			return nil, io.EOF
		}
		f.mu.Unlock()

		select {
		case <-f.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, transport.ErrReadTimeout
		}
	}
}

// Close marks the transport closed and counts the call.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.closed = true
	return nil
}

// Writes returns everything written so far.
func (f *Fake) Writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.writes))
	copy(out, f.writes)
	return out
}

// Closes reports how many times Close was called.
func (f *Fake) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

var _ transport.Transport = (*Fake)(nil)
