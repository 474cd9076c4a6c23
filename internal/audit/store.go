// Package audit keeps an append-only JSONL history of executed commands.
package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const maxLineBytes = 1 << 20

type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Append writes e as one JSON line, creating the file and its directory
// with owner-only permissions.
func (s *Store) Append(e Event) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("audit event: %w", err)
	}
	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("write audit log: %w", err)
	}
	return f.Close()
}

// Tail returns the last n events, oldest first. n <= 0 returns all of them.
// A missing file yields no events; lines that do not parse are skipped.
func (s *Store) Tail(n int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer func() { _ = f.Close() }()

	var result []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		result = append(result, e)
		if n > 0 && len(result) > n {
			result = result[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("read audit log: %w", err)
	}
	return result, nil
}
