package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	defaultChunkSize = 4096
	chunkQueueDepth  = 64
)

// stream turns a blocking reader into Read-with-timeout. A single goroutine
// pumps chunks off the reader; Read waits on that queue with a timer.
type stream struct {
	w io.Writer

	chunks  chan []byte
	done    chan struct{} // closed when the pump exits
	closed  chan struct{} // closed by Close
	readErr error         // valid once done is closed
	pending []byte

	closeFn   func() error
	closeOnce sync.Once
	closeErr  error
}

func newStream(r io.Reader, w io.Writer, closeFn func() error) *stream {
	s := &stream{
		w:       w,
		chunks:  make(chan []byte, chunkQueueDepth),
		done:    make(chan struct{}),
		closed:  make(chan struct{}),
		closeFn: closeFn,
	}
	go s.pump(r)
	return s
}

func (s *stream) pump(r io.Reader) {
	defer close(s.done)
	buf := make([]byte, defaultChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case s.chunks <- chunk:
			case <-s.closed:
				return
			}
		}
		if err != nil {
			s.readErr = err
			return
		}
	}
}

// Write sends p to the remote side.
func (s *stream) Write(p []byte) (int, error) {
	select {
	case <-s.closed:
		return 0, ErrClosed
	default:
	}
	return s.w.Write(p)
}

// Read returns at most size bytes, waiting up to timeout for data.
func (s *stream) Read(ctx context.Context, size int, timeout time.Duration) ([]byte, error) {
	if size <= 0 {
		size = defaultChunkSize
	}
	select {
	case <-s.closed:
		return nil, ErrClosed
	default:
	}
	if len(s.pending) == 0 {
		if err := s.wait(ctx, timeout); err != nil {
			return nil, err
		}
	}
	n := len(s.pending)
	if n > size {
		n = size
	}
	out := s.pending[:n]
	s.pending = s.pending[n:]
	return out, nil
}

func (s *stream) wait(ctx context.Context, timeout time.Duration) error {
	// Queued bytes always win over a concurrent end of stream.
	select {
	case chunk := <-s.chunks:
		s.pending = chunk
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case chunk := <-s.chunks:
		s.pending = chunk
		return nil
	case <-s.done:
		select {
		case chunk := <-s.chunks:
			s.pending = chunk
			return nil
		default:
		}
		return s.eof()
	case <-s.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrReadTimeout
	}
}

// eof normalizes the pump's terminal error. A pty master reports EIO once the
// child exits, which is end of stream as far as callers are concerned.
func (s *stream) eof() error {
	if s.readErr == nil || errors.Is(s.readErr, io.EOF) {
		return io.EOF
	}
	return fmt.Errorf("%w: %v", io.EOF, s.readErr)
}

// Close stops the stream and runs the owner's close function once.
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.closeFn != nil {
			s.closeErr = s.closeFn()
		}
	})
	return s.closeErr
}
