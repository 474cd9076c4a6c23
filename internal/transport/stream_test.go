package transport

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPipeStream(t *testing.T) (*stream, *io.PipeWriter, *int) {
	t.Helper()
	r, w := io.Pipe()
	closes := 0
	s := newStream(r, io.Discard, func() error {
		closes++
		return r.Close()
	})
	t.Cleanup(func() { _ = s.Close() })
	return s, w, &closes
}

func TestStream_ReadReturnsWrittenBytes(t *testing.T) {
	s, w, _ := newPipeStream(t)
	go func() { _, _ = w.Write([]byte("Opt> ")) }()

	got, err := s.Read(context.Background(), 1024, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "Opt> ", string(got))
}

func TestStream_ReadHonorsSize(t *testing.T) {
	s, w, _ := newPipeStream(t)
	go func() { _, _ = w.Write([]byte("abcdef")) }()

	first, err := s.Read(context.Background(), 4, time.Second)
	require.NoError(t, err)
	second, err := s.Read(context.Background(), 4, time.Second)
	require.NoError(t, err)

	assert.Equal(t, "abcd", string(first))
	assert.Equal(t, "ef", string(second))
}

func TestStream_ReadTimesOut(t *testing.T) {
	s, _, _ := newPipeStream(t)

	start := time.Now()
	_, err := s.Read(context.Background(), 1024, 30*time.Millisecond)
	assert.ErrorIs(t, err, ErrReadTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestStream_DrainsQueuedBytesBeforeEOF(t *testing.T) {
	s, w, _ := newPipeStream(t)
	go func() {
		_, _ = w.Write([]byte("bye"))
		_ = w.Close()
	}()

	got, err := s.Read(context.Background(), 1024, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "bye", string(got))

	_, err = s.Read(context.Background(), 1024, time.Second)
	assert.ErrorIs(t, err, io.EOF)
}

func TestStream_ReaderErrorReportsEOF(t *testing.T) {
	s, w, _ := newPipeStream(t)
	_ = w.CloseWithError(errors.New("input/output error"))

	_, err := s.Read(context.Background(), 1024, time.Second)
	assert.ErrorIs(t, err, io.EOF)
	assert.Contains(t, err.Error(), "input/output error")
}

func TestStream_ContextCancel(t *testing.T) {
	s, _, _ := newPipeStream(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Read(ctx, 1024, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStream_CloseRunsOnce(t *testing.T) {
	s, _, closes := newPipeStream(t)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, *closes)

	_, err := s.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrClosed)

	_, err = s.Read(context.Background(), 1024, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrClosed)
}
