package generation

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"lookbook/internal/services"
	"lookbook/internal/storage"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store persists generation records in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore attaches the generation tables to an open database.
func NewStore(ctx context.Context, db *sql.DB) (*Store, error) {
	if err := storage.ApplyMigrations(ctx, db, migrationFS, "migrations"); err != nil {
		return nil, services.Wrap(services.ErrInfrastructure, "generation", "migrate", "apply generation migrations", err)
	}
	return &Store{db: db}, nil
}

const recordColumns = "id, user_id, garment_id, preset_id, collection_id, status, current_step, progress_percent, merged_prompts_json, negative_prompt, visuals_json, generated_images_json, resolution, aspect_ratio, started_at, completed_at, created_at, updated_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		id, userID, garmentID string
		presetID              sql.NullString
		collectionID          sql.NullString
		statusStr             string
		currentStep           string
		progressPercent       int
		promptsJSON           sql.NullString
		negativePrompt        sql.NullString
		visualsJSON           sql.NullString
		imagesJSON            sql.NullString
		resolution            sql.NullString
		aspectRatio           sql.NullString
		startedRaw            sql.NullString
		completedRaw          sql.NullString
		createdRaw            sql.NullString
		updatedRaw            sql.NullString
	)
	if err := scanner.Scan(&id, &userID, &garmentID, &presetID, &collectionID, &statusStr, &currentStep, &progressPercent, &promptsJSON, &negativePrompt, &visualsJSON, &imagesJSON, &resolution, &aspectRatio, &startedRaw, &completedRaw, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	record := &Record{
		ID:              id,
		UserID:          userID,
		GarmentID:       garmentID,
		PresetID:        presetID.String,
		CollectionID:    collectionID.String,
		Status:          Status(statusStr),
		CurrentStep:     currentStep,
		ProgressPercent: progressPercent,
		NegativePrompt:  negativePrompt.String,
		Resolution:      resolution.String,
		AspectRatio:     aspectRatio.String,
		StartedAt:       storage.ParseTime(startedRaw),
		CompletedAt:     storage.ParseTime(completedRaw),
	}
	if promptsJSON.Valid && promptsJSON.String != "" {
		if err := json.Unmarshal([]byte(promptsJSON.String), &record.MergedPrompts); err != nil {
			return nil, fmt.Errorf("decode merged prompts: %w", err)
		}
	}
	if visualsJSON.Valid && visualsJSON.String != "" {
		if err := json.Unmarshal([]byte(visualsJSON.String), &record.Visuals); err != nil {
			return nil, fmt.Errorf("decode visuals: %w", err)
		}
	}
	if imagesJSON.Valid && imagesJSON.String != "" {
		if err := json.Unmarshal([]byte(imagesJSON.String), &record.GeneratedImages); err != nil {
			return nil, fmt.Errorf("decode generated images: %w", err)
		}
	}
	if created := storage.ParseTime(createdRaw); created != nil {
		record.CreatedAt = *created
	}
	if updated := storage.ParseTime(updatedRaw); updated != nil {
		record.UpdatedAt = *updated
	}
	return record, nil
}

func encodeJSONField(value any, empty bool) (any, error) {
	if empty {
		return nil, nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(encoded), nil
}

func (r *Record) jsonFields() (prompts, visuals, images any, err error) {
	prompts, err = encodeJSONField(r.MergedPrompts, len(r.MergedPrompts) == 0)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode merged prompts: %w", err)
	}
	visuals, err = encodeJSONField(r.Visuals, len(r.Visuals) == 0)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode visuals: %w", err)
	}
	images, err = encodeJSONField(r.GeneratedImages, len(r.GeneratedImages) == 0)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode generated images: %w", err)
	}
	return prompts, visuals, images, nil
}

// Create inserts a new record, assigning an id if absent.
func (s *Store) Create(ctx context.Context, record *Record) error {
	if record == nil {
		return services.Wrap(services.ErrValidation, "generation", "create", "record is nil", nil)
	}
	if strings.TrimSpace(record.UserID) == "" || strings.TrimSpace(record.GarmentID) == "" {
		return services.Wrap(services.ErrValidation, "generation", "create", "user id and garment id are required", nil)
	}
	hasPreset := strings.TrimSpace(record.PresetID) != ""
	hasCollection := strings.TrimSpace(record.CollectionID) != ""
	if hasPreset == hasCollection {
		return services.Wrap(services.ErrValidation, "generation", "create", "exactly one of preset id or collection id is required", nil)
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Status == "" {
		record.Status = StatusPending
	}
	if record.CurrentStep == "" {
		record.CurrentStep = StepCreated
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	prompts, visuals, images, err := record.jsonFields()
	if err != nil {
		return services.Wrap(services.ErrValidation, "generation", "create", "encode record", err)
	}

	query := fmt.Sprintf("INSERT INTO generations (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", recordColumns)
	err = storage.RetryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query,
			record.ID,
			record.UserID,
			record.GarmentID,
			storage.NullableString(record.PresetID),
			storage.NullableString(record.CollectionID),
			string(record.Status),
			record.CurrentStep,
			record.ProgressPercent,
			prompts,
			storage.NullableString(record.NegativePrompt),
			visuals,
			images,
			storage.NullableString(record.Resolution),
			storage.NullableString(record.AspectRatio),
			storage.NullableTime(record.StartedAt),
			storage.NullableTime(record.CompletedAt),
			storage.FormatTime(record.CreatedAt),
			storage.FormatTime(record.UpdatedAt),
		)
		return err
	})
	if err != nil {
		return services.Wrap(services.ErrInfrastructure, "generation", "create", "insert record", err)
	}
	return nil
}

// Get loads one record by id.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	query := fmt.Sprintf("SELECT %s FROM generations WHERE id = ?", recordColumns)
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "generation", "get", fmt.Sprintf("generation %s not found", id), nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrInfrastructure, "generation", "get", "query record", err)
	}
	return record, nil
}

// List returns a user's generations, newest first.
func (s *Store) List(ctx context.Context, userID string) ([]*Record, error) {
	query := fmt.Sprintf("SELECT %s FROM generations WHERE user_id = ? ORDER BY created_at DESC", recordColumns)
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, services.Wrap(services.ErrInfrastructure, "generation", "list", "query records", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, services.Wrap(services.ErrInfrastructure, "generation", "list", "scan record", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrInfrastructure, "generation", "list", "iterate records", err)
	}
	return records, nil
}

// Update persists the record's mutable fields.
func (s *Store) Update(ctx context.Context, record *Record) error {
	if record == nil || record.ID == "" {
		return services.Wrap(services.ErrValidation, "generation", "update", "record id is required", nil)
	}
	record.UpdatedAt = time.Now().UTC()

	prompts, visuals, images, err := record.jsonFields()
	if err != nil {
		return services.Wrap(services.ErrValidation, "generation", "update", "encode record", err)
	}

	err = storage.RetryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE generations
             SET status = ?, current_step = ?, progress_percent = ?,
                 merged_prompts_json = ?, negative_prompt = ?, visuals_json = ?,
                 generated_images_json = ?, resolution = ?, aspect_ratio = ?,
                 started_at = ?, completed_at = ?, updated_at = ?
             WHERE id = ?`,
			string(record.Status),
			record.CurrentStep,
			record.ProgressPercent,
			prompts,
			storage.NullableString(record.NegativePrompt),
			visuals,
			images,
			storage.NullableString(record.Resolution),
			storage.NullableString(record.AspectRatio),
			storage.NullableTime(record.StartedAt),
			storage.NullableTime(record.CompletedAt),
			storage.FormatTime(record.UpdatedAt),
			record.ID,
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return services.Wrap(services.ErrNotFound, "generation", "update", fmt.Sprintf("generation %s not found", record.ID), nil)
	}
	if err != nil {
		return services.Wrap(services.ErrInfrastructure, "generation", "update", "update record", err)
	}
	return nil
}
