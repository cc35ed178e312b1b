package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mercator-hq/arbiter/pkg/governance"
)

// ErrClosed is returned when appending to a closed sink.
var ErrClosed = errors.New("audit sink is closed")

// encodeEntry returns the stored form of an entry.
func encodeEntry(entry *governance.AuditEntry) ([]byte, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to encode audit entry %d: %w", entry.Sequence, err)
	}
	return data, nil
}

// decodeEntry parses a stored entry.
func decodeEntry(data []byte) (*governance.AuditEntry, error) {
	var entry governance.AuditEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode audit entry: %w", err)
	}
	return &entry, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
