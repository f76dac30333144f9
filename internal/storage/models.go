package storage

import (
	"encoding/json"
	"time"
)

// Bucket names for bbolt database
const (
	MetaBucket        = "meta"
	WindowStateBucket = "window_state"
	HistoryBucket     = "history"
)

// Meta keys
const (
	SchemaVersionKey = "schema"
	MainWindowKey    = "main"
)

// Current schema version
const CurrentSchemaVersion = 1

// DefaultHistoryLimit caps the number of history entries kept on disk
const DefaultHistoryLimit = 1000

// WindowState is the persisted geometry of a shell window
type WindowState struct {
	X         int       `json:"x"`
	Y         int       `json:"y"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Maximized bool      `json:"maximized"`
	Updated   time.Time `json:"updated"`
}

// HistoryEntry is one supervisor event. ID is a ULID so keys sort by time.
type HistoryEntry struct {
	ID     string    `json:"id"`
	Time   time.Time `json:"time"`
	Kind   string    `json:"kind"`
	Status string    `json:"status,omitempty"`
	Port   int       `json:"port,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// MarshalBinary implements encoding.BinaryMarshaler
func (w *WindowState) MarshalBinary() ([]byte, error) {
	return json.Marshal(w)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler
func (w *WindowState) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, w)
}

// MarshalBinary implements encoding.BinaryMarshaler
func (h *HistoryEntry) MarshalBinary() ([]byte, error) {
	return json.Marshal(h)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler
func (h *HistoryEntry) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, h)
}
