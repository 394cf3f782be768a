package models

import "encoding/json"

type EventType string

// Client -> server events.
const (
	EventJoinProject     EventType = "join-project"
	EventCanvasOperation EventType = "canvas-operation"
	EventCursorMove      EventType = "cursor-move"
	EventElementSelect   EventType = "element-select"
	EventCodeChange      EventType = "code-change"
	EventAIJobStatus     EventType = "ai-job-status"
)

// Server -> client events.
const (
	EventUserJoined         EventType = "user-joined"
	EventParticipantsUpdate EventType = "participants-update"
	EventCursorUpdate       EventType = "cursor-update"
	EventSelectionUpdate    EventType = "selection-update"
	EventUserLeft           EventType = "user-left"
	EventNotification       EventType = "notification"
	EventAIJobUpdate        EventType = "ai-job-update"
	EventError              EventType = "error"
)

// Envelope is the wire frame used in both directions: an event name plus an
// event-specific JSON payload.
type Envelope struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinProjectPayload struct {
	RoomID string `json:"roomId"`
}

type ElementSelectPayload struct {
	ElementID string `json:"elementId"`
}

type CodeChangePayload struct {
	Type      string          `json:"type"`
	Content   string          `json:"content"`
	Cursor    json.RawMessage `json:"cursor,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

type AIJobStatusPayload struct {
	JobID string `json:"jobId"`
}

type UserJoinedPayload struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

type ParticipantsUpdatePayload struct {
	Participants []*Participant `json:"participants"`
}

type CursorUpdatePayload struct {
	UserID string `json:"userId"`
	Cursor Cursor `json:"cursor"`
}

type SelectionUpdatePayload struct {
	UserID    string `json:"userId"`
	ElementID string `json:"elementId"`
}

type UserLeftPayload struct {
	UserID string `json:"userId"`
}

type AIJobUpdatePayload struct {
	JobID    string `json:"jobId"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
