package collab

import (
	"context"
	"time"

	"collab-server/internal/database"
	"collab-server/internal/models"
	"collab-server/pkg/logger"
)

const logQueryTimeout = 5 * time.Second

func contextWithQueryTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), logQueryTimeout)
}

type logRequest struct {
	roomID string
	entry  *models.OperationEntry
}

// OperationLogWriter appends canvas operations to the external per-room log
// and trims it to the retention bound. A single worker drains the queue, so
// entries reach the backend in submission order. Every failure is diagnostic
// only: the broadcast that triggered the write has already completed and is
// never rolled back.
type OperationLogWriter struct {
	log       database.OperationLog
	retention int
	queue     chan logRequest
	stop      chan struct{}
	finished  chan struct{}
}

func NewOperationLogWriter(log database.OperationLog, retention int) *OperationLogWriter {
	w := &OperationLogWriter{
		log:       log,
		retention: retention,
		queue:     make(chan logRequest, 512),
		stop:      make(chan struct{}),
		finished:  make(chan struct{}),
	}
	go w.run()
	return w
}

// Write queues an append without blocking the caller. Entries are shed when
// the backend cannot keep up; the log is a replay aid, not a source of truth.
func (w *OperationLogWriter) Write(roomID string, entry *models.OperationEntry) {
	if w.log == nil {
		return
	}
	select {
	case w.queue <- logRequest{roomID: roomID, entry: entry}:
	case <-w.stop:
	default:
		logger.Warn("Operation log queue full, dropping entry for room %s", roomID)
	}
}

// Close drains already-queued writes and stops the worker.
func (w *OperationLogWriter) Close() {
	close(w.stop)
	<-w.finished
}

func (w *OperationLogWriter) run() {
	defer close(w.finished)

	for {
		select {
		case req := <-w.queue:
			w.process(req)
		case <-w.stop:
			for {
				select {
				case req := <-w.queue:
					w.process(req)
				default:
					return
				}
			}
		}
	}
}

func (w *OperationLogWriter) process(req logRequest) {
	ctx, cancel := contextWithQueryTimeout()
	defer cancel()

	if err := w.log.AppendOperation(ctx, req.roomID, req.entry); err != nil {
		logger.Error("Error appending operation for room %s: %v", req.roomID, err)
		return
	}
	if err := w.log.TrimOperations(ctx, req.roomID, w.retention); err != nil {
		logger.Error("Error trimming operation log for room %s: %v", req.roomID, err)
	}
}
