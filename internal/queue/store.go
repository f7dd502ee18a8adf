package queue

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"lookbook/internal/services"
	"lookbook/internal/storage"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store manages render-task persistence backed by SQLite.
type Store struct {
	db *sql.DB
}

// NewStore attaches the render-task tables to an open database.
func NewStore(ctx context.Context, db *sql.DB) (*Store, error) {
	if err := storage.ApplyMigrations(ctx, db, migrationFS, "migrations"); err != nil {
		return nil, services.Wrap(services.ErrInfrastructure, "queue", "migrate", "apply queue migrations", err)
	}
	return &Store{db: db}, nil
}

const taskColumns = "id, generation_id, user_id, selected_shots_json, model_override, status, attempts, stall_count, error_message, last_heartbeat, next_attempt_at, created_at, updated_at"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id            int64
		generationID  string
		userID        string
		shotsJSON     sql.NullString
		modelOverride sql.NullString
		statusStr     string
		attempts      int
		stallCount    int
		errorMessage  sql.NullString
		heartbeatRaw  sql.NullString
		nextAttempt   sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)
	if err := scanner.Scan(&id, &generationID, &userID, &shotsJSON, &modelOverride, &statusStr, &attempts, &stallCount, &errorMessage, &heartbeatRaw, &nextAttempt, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	task := &Task{
		ID:            id,
		GenerationID:  generationID,
		UserID:        userID,
		ModelOverride: modelOverride.String,
		Status:        Status(statusStr),
		Attempts:      attempts,
		StallCount:    stallCount,
		ErrorMessage:  errorMessage.String,
		LastHeartbeat: storage.ParseTime(heartbeatRaw),
		NextAttemptAt: storage.ParseTime(nextAttempt),
	}
	if shotsJSON.Valid && shotsJSON.String != "" {
		if err := json.Unmarshal([]byte(shotsJSON.String), &task.SelectedShots); err != nil {
			return nil, fmt.Errorf("decode selected shots: %w", err)
		}
	}
	if created := storage.ParseTime(createdRaw); created != nil {
		task.CreatedAt = *created
	}
	if updated := storage.ParseTime(updatedRaw); updated != nil {
		task.UpdatedAt = *updated
	}
	return task, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "constraint failed")
}

// Enqueue inserts a pending task for the generation. At most one active
// task may exist per generation id.
func (s *Store) Enqueue(ctx context.Context, task *Task) error {
	if task == nil {
		return services.Wrap(services.ErrValidation, "queue", "enqueue", "task is nil", nil)
	}
	if strings.TrimSpace(task.GenerationID) == "" || strings.TrimSpace(task.UserID) == "" {
		return services.Wrap(services.ErrValidation, "queue", "enqueue", "generation id and user id are required", nil)
	}

	var shotsJSON any
	if len(task.SelectedShots) > 0 {
		encoded, err := json.Marshal(task.SelectedShots)
		if err != nil {
			return services.Wrap(services.ErrValidation, "queue", "enqueue", "encode selected shots", err)
		}
		shotsJSON = string(encoded)
	}

	now := time.Now().UTC()
	task.Status = StatusPending
	task.CreatedAt = now
	task.UpdatedAt = now

	err := storage.RetryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO render_tasks (generation_id, user_id, selected_shots_json, model_override, status, attempts, stall_count, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?)`,
			task.GenerationID,
			task.UserID,
			shotsJSON,
			storage.NullableString(task.ModelOverride),
			string(StatusPending),
			storage.FormatTime(now),
			storage.FormatTime(now),
		)
		if err != nil {
			return err
		}
		task.ID, err = res.LastInsertId()
		return err
	})
	if isUniqueViolation(err) {
		return services.Wrap(services.ErrConflict, "queue", "enqueue", fmt.Sprintf("generation %s", task.GenerationID), ErrDuplicateTask)
	}
	if err != nil {
		return services.Wrap(services.ErrInfrastructure, "queue", "enqueue", "insert task", err)
	}
	return nil
}

// ClaimNext transitions the oldest runnable pending task to processing and
// returns it. Returns ErrNoTask when nothing is claimable.
func (s *Store) ClaimNext(ctx context.Context) (*Task, error) {
	now := time.Now().UTC()

	var claimed *Task
	err := storage.RetryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() {
			_ = tx.Rollback()
		}()

		query := fmt.Sprintf(
			`SELECT %s FROM render_tasks
             WHERE status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
             ORDER BY id LIMIT 1`, taskColumns)
		task, err := scanTask(tx.QueryRowContext(ctx, query, string(StatusPending), storage.FormatTime(now)))
		if errors.Is(err, sql.ErrNoRows) {
			claimed = nil
			return nil
		}
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE render_tasks
             SET status = ?, attempts = attempts + 1, last_heartbeat = ?, next_attempt_at = NULL, updated_at = ?
             WHERE id = ? AND status = ?`,
			string(StatusProcessing),
			storage.FormatTime(now),
			storage.FormatTime(now),
			task.ID,
			string(StatusPending),
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			claimed = nil
			return nil
		}
		if err := tx.Commit(); err != nil {
			return err
		}

		task.Status = StatusProcessing
		task.Attempts++
		task.LastHeartbeat = &now
		task.NextAttemptAt = nil
		task.UpdatedAt = now
		claimed = task
		return nil
	})
	if err != nil {
		return nil, services.Wrap(services.ErrInfrastructure, "queue", "claim", "claim next task", err)
	}
	if claimed == nil {
		return nil, ErrNoTask
	}
	return claimed, nil
}

// UpdateHeartbeat renews the processing lock on a running task.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := storage.FormatTime(time.Now())
	err := storage.RetryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			"UPDATE render_tasks SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?",
			now, now, id, string(StatusProcessing))
		return err
	})
	if err != nil {
		return services.Wrap(services.ErrInfrastructure, "queue", "heartbeat", "update heartbeat", err)
	}
	return nil
}

// MarkCompleted finishes a task successfully.
func (s *Store) MarkCompleted(ctx context.Context, id int64) error {
	return s.finish(ctx, id, StatusCompleted, "")
}

// MarkFailed finishes a task permanently with an error message.
func (s *Store) MarkFailed(ctx context.Context, id int64, message string) error {
	return s.finish(ctx, id, StatusFailed, message)
}

func (s *Store) finish(ctx context.Context, id int64, status Status, message string) error {
	now := storage.FormatTime(time.Now())
	err := storage.RetryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			"UPDATE render_tasks SET status = ?, error_message = ?, updated_at = ? WHERE id = ?",
			string(status), storage.NullableString(message), now, id)
		return err
	})
	if err != nil {
		return services.Wrap(services.ErrInfrastructure, "queue", "finish", fmt.Sprintf("mark task %d %s", id, status), err)
	}
	return nil
}

// Requeue returns a task to pending for a later retry attempt.
func (s *Store) Requeue(ctx context.Context, id int64, nextAttempt time.Time, message string) error {
	now := storage.FormatTime(time.Now())
	err := storage.RetryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`UPDATE render_tasks
             SET status = ?, next_attempt_at = ?, error_message = ?, last_heartbeat = NULL, updated_at = ?
             WHERE id = ?`,
			string(StatusPending), storage.FormatTime(nextAttempt), storage.NullableString(message), now, id)
		return err
	})
	if err != nil {
		return services.Wrap(services.ErrInfrastructure, "queue", "requeue", fmt.Sprintf("requeue task %d", id), err)
	}
	return nil
}

// ReclaimStale recovers processing tasks whose heartbeat stopped before the
// cutoff: back to pending until the stall budget is exhausted, then failed.
// Returns the number of reclaimed tasks and the generation ids of tasks
// failed permanently, so the caller can mark their runs failed too.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time, maxStalls int) (reclaimed int, failedGenerations []string, err error) {
	query := fmt.Sprintf(
		`SELECT %s FROM render_tasks
         WHERE status = ? AND (last_heartbeat IS NULL OR last_heartbeat < ?)`, taskColumns)
	rows, err := s.db.QueryContext(ctx, query, string(StatusProcessing), storage.FormatTime(cutoff))
	if err != nil {
		return 0, nil, services.Wrap(services.ErrInfrastructure, "queue", "reclaim", "query stale tasks", err)
	}
	var stale []*Task
	for rows.Next() {
		task, scanErr := scanTask(rows)
		if scanErr != nil {
			rows.Close()
			return 0, nil, services.Wrap(services.ErrInfrastructure, "queue", "reclaim", "scan stale task", scanErr)
		}
		stale = append(stale, task)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, nil, services.Wrap(services.ErrInfrastructure, "queue", "reclaim", "iterate stale tasks", err)
	}

	now := storage.FormatTime(time.Now())
	for _, task := range stale {
		if task.StallCount+1 >= maxStalls {
			execErr := storage.RetryOnBusy(ctx, func() error {
				_, err := s.db.ExecContext(ctx,
					`UPDATE render_tasks
                     SET status = ?, stall_count = stall_count + 1, error_message = ?, updated_at = ?
                     WHERE id = ? AND status = ?`,
					string(StatusFailed), "worker stalled too many times", now, task.ID, string(StatusProcessing))
				return err
			})
			if execErr != nil {
				return reclaimed, failedGenerations, services.Wrap(services.ErrInfrastructure, "queue", "reclaim", "fail stalled task", execErr)
			}
			failedGenerations = append(failedGenerations, task.GenerationID)
			continue
		}
		execErr := storage.RetryOnBusy(ctx, func() error {
			_, err := s.db.ExecContext(ctx,
				`UPDATE render_tasks
                 SET status = ?, stall_count = stall_count + 1, last_heartbeat = NULL, updated_at = ?
                 WHERE id = ? AND status = ?`,
				string(StatusPending), now, task.ID, string(StatusProcessing))
			return err
		})
		if execErr != nil {
			return reclaimed, failedGenerations, services.Wrap(services.ErrInfrastructure, "queue", "reclaim", "requeue stalled task", execErr)
		}
		reclaimed++
	}
	return reclaimed, failedGenerations, nil
}

// PurgeTerminal deletes completed and failed tasks last touched before the
// cutoff. Returns the number of purged rows.
func (s *Store) PurgeTerminal(ctx context.Context, cutoff time.Time) (int64, error) {
	var purged int64
	err := storage.RetryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			"DELETE FROM render_tasks WHERE status IN (?, ?) AND updated_at < ?",
			string(StatusCompleted), string(StatusFailed), storage.FormatTime(cutoff))
		if err != nil {
			return err
		}
		purged, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, services.Wrap(services.ErrInfrastructure, "queue", "purge", "purge terminal tasks", err)
	}
	return purged, nil
}

// Get loads one task by id.
func (s *Store) Get(ctx context.Context, id int64) (*Task, error) {
	query := fmt.Sprintf("SELECT %s FROM render_tasks WHERE id = ?", taskColumns)
	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "queue", "get", fmt.Sprintf("task %d not found", id), nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrInfrastructure, "queue", "get", "query task", err)
	}
	return task, nil
}

// ActiveForGeneration returns the pending or processing task for a
// generation, or nil when none exists.
func (s *Store) ActiveForGeneration(ctx context.Context, generationID string) (*Task, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM render_tasks WHERE generation_id = ? AND status IN (?, ?) LIMIT 1", taskColumns)
	task, err := scanTask(s.db.QueryRowContext(ctx, query, generationID, string(StatusPending), string(StatusProcessing)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrInfrastructure, "queue", "active", "query active task", err)
	}
	return task, nil
}

// CountByStatus reports task totals keyed by status.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(1) FROM render_tasks GROUP BY status")
	if err != nil {
		return nil, services.Wrap(services.ErrInfrastructure, "queue", "count", "count tasks", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, services.Wrap(services.ErrInfrastructure, "queue", "count", "scan count", err)
		}
		counts[Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrInfrastructure, "queue", "count", "iterate counts", err)
	}
	return counts, nil
}
