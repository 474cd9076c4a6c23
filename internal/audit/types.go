package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Event is one line of the execution history.
type Event struct {
	ID        string    `json:"id"`
	TS        time.Time `json:"ts"`
	Host      string    `json:"host"`
	Match     string    `json:"match,omitempty"`
	Workdir   string    `json:"workdir,omitempty"`
	Command   string    `json:"command"`
	Transport string    `json:"transport"`
	// Outcome is "ok" or the failure kind (e.g. "NotFound").
	Outcome    string `json:"outcome"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// NewEvent returns an event with a fresh ID stamped at ts.
func NewEvent(ts time.Time) Event {
	return Event{ID: uuid.NewString(), TS: ts.UTC()}
}

func (e Event) Validate() error {
	if _, err := uuid.Parse(e.ID); err != nil {
		return fmt.Errorf("invalid id %q", e.ID)
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	if strings.TrimSpace(e.Host) == "" {
		return fmt.Errorf("host is required")
	}
	if strings.TrimSpace(e.Outcome) == "" {
		return fmt.Errorf("outcome is required")
	}
	return nil
}
