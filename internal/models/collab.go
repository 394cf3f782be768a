package models

import "time"

// Identity is what credential verification yields; it is attached to a
// connection once at handshake time and never changes afterwards.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// Cursor is a pointer position in canvas coordinates.
type Cursor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Participant is one user's presence inside a room. Unique by UserID within
// a room; reconnects replace the live connection rather than adding a second
// record. Connection routing details never leave the server.
type Participant struct {
	UserID    string  `json:"userId"`
	Email     string  `json:"email"`
	Cursor    *Cursor `json:"cursor,omitempty"`
	Selection string  `json:"selection,omitempty"`
}

// OperationEntry is one canvas operation as persisted to the per-room log.
type OperationEntry struct {
	UserID    string                 `json:"userId"`
	Timestamp int64                  `json:"timestamp"`
	Operation map[string]interface{} `json:"operation"`
}

// AIJob mirrors the external job queue's view of a background job.
type AIJob struct {
	ID        string    `json:"jobId"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	UpdatedAt time.Time `json:"updated_at"`
}
