package database

import (
	"context"

	"collab-server/internal/models"
)

// OperationLog is the bounded per-room append log for canvas operations.
// Writes are best-effort from the caller's point of view: the collaboration
// path logs failures and moves on.
type OperationLog interface {
	AppendOperation(ctx context.Context, roomID string, entry *models.OperationEntry) error
	TrimOperations(ctx context.Context, roomID string, maxEntries int) error
	LoadRecentOperations(ctx context.Context, roomID string, limit int) ([]*models.OperationEntry, error)
}

// JobStore exposes read access to the external AI job queue's state.
type JobStore interface {
	GetJob(ctx context.Context, jobID string) (*models.AIJob, error)
}

type Database interface {
	OperationLog
	JobStore
	Close() error
}
