package database

import (
	"context"
	"encoding/json"
	"fmt"

	"collab-server/internal/models"
	"collab-server/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// Operation Log Implementation

func (db *PostgresDB) AppendOperation(ctx context.Context, roomID string, entry *models.OperationEntry) error {
	payload, err := json.Marshal(entry.Operation)
	if err != nil {
		return fmt.Errorf("failed to encode operation: %w", err)
	}

	query := `
		INSERT INTO canvas_operations (room_id, user_id, payload, ts)
		VALUES ($1, $2, $3, $4)`

	_, err = db.pool.Exec(ctx, query, roomID, entry.UserID, payload, entry.Timestamp)
	return err
}

func (db *PostgresDB) TrimOperations(ctx context.Context, roomID string, maxEntries int) error {
	// Keep only the newest maxEntries rows for the room.
	query := `
		DELETE FROM canvas_operations
		WHERE room_id = $1
		  AND id NOT IN (
			SELECT id FROM canvas_operations
			WHERE room_id = $1
			ORDER BY id DESC
			LIMIT $2
		  )`

	_, err := db.pool.Exec(ctx, query, roomID, maxEntries)
	return err
}

func (db *PostgresDB) LoadRecentOperations(ctx context.Context, roomID string, limit int) ([]*models.OperationEntry, error) {
	query := `
		SELECT user_id, payload, ts
		FROM canvas_operations
		WHERE room_id = $1
		ORDER BY id DESC
		LIMIT $2`

	rows, err := db.pool.Query(ctx, query, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.OperationEntry
	for rows.Next() {
		entry := &models.OperationEntry{}
		var payload []byte
		if err := rows.Scan(&entry.UserID, &payload, &entry.Timestamp); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &entry.Operation); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	// Reverse to show oldest first
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	return entries, nil
}

// Job Store Implementation

func (db *PostgresDB) GetJob(ctx context.Context, jobID string) (*models.AIJob, error) {
	query := `SELECT id, status, progress, updated_at FROM ai_jobs WHERE id = $1`

	job := &models.AIJob{}
	err := db.pool.QueryRow(ctx, query, jobID).Scan(
		&job.ID, &job.Status, &job.Progress, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return job, nil
}
