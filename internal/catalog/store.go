package catalog

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

// Store persists garments and style sources in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore attaches catalog tables to an open database.
func NewStore(ctx context.Context, db *sql.DB) (*Store, error) {
	if err := storage.ApplyMigrations(ctx, db, migrationFS, "migrations"); err != nil {
		return nil, services.Wrap(services.ErrInfrastructure, "catalog", "migrate", "apply catalog migrations", err)
	}
	return &Store{db: db}, nil
}

const garmentColumns = "id, user_id, name, category, color, closure_description, fabric_texture, has_logo, analyzed, analysis_json, created_at, updated_at"

func scanGarment(scanner interface{ Scan(dest ...any) error }) (*GarmentRecord, error) {
	var (
		id, userID, name string
		category         sql.NullString
		color            sql.NullString
		closure          sql.NullString
		texture          sql.NullString
		hasLogo          int
		analyzed         int
		analysisJSON     sql.NullString
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
	)
	if err := scanner.Scan(&id, &userID, &name, &category, &color, &closure, &texture, &hasLogo, &analyzed, &analysisJSON, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	record := &GarmentRecord{
		ID:                 id,
		UserID:             userID,
		Name:               name,
		Category:           category.String,
		Color:              color.String,
		ClosureDescription: closure.String,
		FabricTexture:      texture.String,
		HasLogo:            hasLogo != 0,
		Analyzed:           analyzed != 0,
		AnalysisJSON:       analysisJSON.String,
	}
	if created := storage.ParseTime(createdRaw); created != nil {
		record.CreatedAt = *created
	}
	if updated := storage.ParseTime(updatedRaw); updated != nil {
		record.UpdatedAt = *updated
	}
	return record, nil
}

// CreateGarment inserts a new garment record, assigning an id if absent.
func (s *Store) CreateGarment(ctx context.Context, record *GarmentRecord) error {
	if record == nil {
		return services.Wrap(services.ErrValidation, "catalog", "create garment", "record is nil", nil)
	}
	if strings.TrimSpace(record.UserID) == "" || strings.TrimSpace(record.Name) == "" {
		return services.Wrap(services.ErrValidation, "catalog", "create garment", "user id and name are required", nil)
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	query := fmt.Sprintf("INSERT INTO garments (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", garmentColumns)
	err := storage.RetryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query,
			record.ID,
			record.UserID,
			record.Name,
			storage.NullableString(record.Category),
			storage.NullableString(record.Color),
			storage.NullableString(record.ClosureDescription),
			storage.NullableString(record.FabricTexture),
			storage.BoolToInt(record.HasLogo),
			storage.BoolToInt(record.Analyzed),
			storage.NullableString(record.AnalysisJSON),
			storage.FormatTime(record.CreatedAt),
			storage.FormatTime(record.UpdatedAt),
		)
		return err
	})
	if err != nil {
		return services.Wrap(services.ErrInfrastructure, "catalog", "create garment", "insert garment", err)
	}
	return nil
}

// GetGarment loads one garment by id.
func (s *Store) GetGarment(ctx context.Context, id string) (*GarmentRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM garments WHERE id = ?", garmentColumns)
	record, err := scanGarment(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "catalog", "get garment", fmt.Sprintf("garment %s not found", id), nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrInfrastructure, "catalog", "get garment", "query garment", err)
	}
	return record, nil
}

// ListGarments returns a user's garments, newest first.
func (s *Store) ListGarments(ctx context.Context, userID string) ([]*GarmentRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM garments WHERE user_id = ? ORDER BY created_at DESC", garmentColumns)
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, services.Wrap(services.ErrInfrastructure, "catalog", "list garments", "query garments", err)
	}
	defer rows.Close()

	var records []*GarmentRecord
	for rows.Next() {
		record, err := scanGarment(rows)
		if err != nil {
			return nil, services.Wrap(services.ErrInfrastructure, "catalog", "list garments", "scan garment", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrInfrastructure, "catalog", "list garments", "iterate garments", err)
	}
	return records, nil
}

// SetGarmentAnalysis stores the vision analysis result and derived fields,
// marking the garment analyzed.
func (s *Store) SetGarmentAnalysis(ctx context.Context, id string, record *GarmentRecord) error {
	if record == nil {
		return services.Wrap(services.ErrValidation, "catalog", "set analysis", "record is nil", nil)
	}
	err := storage.RetryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE garments
             SET category = ?, color = ?, closure_description = ?, fabric_texture = ?,
                 has_logo = ?, analyzed = 1, analysis_json = ?, updated_at = ?
             WHERE id = ?`,
			storage.NullableString(record.Category),
			storage.NullableString(record.Color),
			storage.NullableString(record.ClosureDescription),
			storage.NullableString(record.FabricTexture),
			storage.BoolToInt(record.HasLogo),
			storage.NullableString(record.AnalysisJSON),
			storage.FormatTime(time.Now()),
			id,
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
		return services.Wrap(services.ErrNotFound, "catalog", "set analysis", fmt.Sprintf("garment %s not found", id), nil)
	}
	if err != nil {
		return services.Wrap(services.ErrInfrastructure, "catalog", "set analysis", "update garment", err)
	}
	return nil
}

const styleColumns = "id, user_id, kind, name, background, lighting, props, footwear, pants_phrase, subject, shot_options_json, created_at, updated_at"

func scanStyle(scanner interface{ Scan(dest ...any) error }) (*StyleSource, error) {
	var (
		id, userID, kind, name string
		background             sql.NullString
		lighting               sql.NullString
		props                  sql.NullString
		footwear               sql.NullString
		pantsPhrase            sql.NullString
		subject                sql.NullString
		shotOptionsJSON        sql.NullString
		createdRaw             sql.NullString
		updatedRaw             sql.NullString
	)
	if err := scanner.Scan(&id, &userID, &kind, &name, &background, &lighting, &props, &footwear, &pantsPhrase, &subject, &shotOptionsJSON, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	source := &StyleSource{
		ID:          id,
		UserID:      userID,
		Kind:        StyleKind(kind),
		Name:        name,
		Background:  background.String,
		Lighting:    lighting.String,
		Props:       props.String,
		Footwear:    footwear.String,
		PantsPhrase: pantsPhrase.String,
		Subject:     subject.String,
	}
	if shotOptionsJSON.Valid && shotOptionsJSON.String != "" {
		if err := json.Unmarshal([]byte(shotOptionsJSON.String), &source.ShotOptions); err != nil {
			return nil, fmt.Errorf("decode shot options: %w", err)
		}
	}
	if created := storage.ParseTime(createdRaw); created != nil {
		source.CreatedAt = *created
	}
	if updated := storage.ParseTime(updatedRaw); updated != nil {
		source.UpdatedAt = *updated
	}
	return source, nil
}

// CreateStyleSource inserts a preset or collection record.
func (s *Store) CreateStyleSource(ctx context.Context, source *StyleSource) error {
	if source == nil {
		return services.Wrap(services.ErrValidation, "catalog", "create style", "source is nil", nil)
	}
	if source.Kind != StylePreset && source.Kind != StyleCollection {
		return services.Wrap(services.ErrValidation, "catalog", "create style", fmt.Sprintf("unknown style kind %q", source.Kind), nil)
	}
	if strings.TrimSpace(source.UserID) == "" || strings.TrimSpace(source.Name) == "" {
		return services.Wrap(services.ErrValidation, "catalog", "create style", "user id and name are required", nil)
	}
	if source.ID == "" {
		source.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	source.CreatedAt = now
	source.UpdatedAt = now

	var optionsJSON any
	if len(source.ShotOptions) > 0 {
		encoded, err := json.Marshal(source.ShotOptions)
		if err != nil {
			return services.Wrap(services.ErrValidation, "catalog", "create style", "encode shot options", err)
		}
		optionsJSON = string(encoded)
	}

	query := fmt.Sprintf("INSERT INTO style_sources (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", styleColumns)
	err := storage.RetryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query,
			source.ID,
			source.UserID,
			string(source.Kind),
			source.Name,
			storage.NullableString(source.Background),
			storage.NullableString(source.Lighting),
			storage.NullableString(source.Props),
			storage.NullableString(source.Footwear),
			storage.NullableString(source.PantsPhrase),
			storage.NullableString(source.Subject),
			optionsJSON,
			storage.FormatTime(source.CreatedAt),
			storage.FormatTime(source.UpdatedAt),
		)
		return err
	})
	if err != nil {
		return services.Wrap(services.ErrInfrastructure, "catalog", "create style", "insert style source", err)
	}
	return nil
}

// GetStyleSource loads one preset or collection by id.
func (s *Store) GetStyleSource(ctx context.Context, id string) (*StyleSource, error) {
	query := fmt.Sprintf("SELECT %s FROM style_sources WHERE id = ?", styleColumns)
	source, err := scanStyle(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "catalog", "get style", fmt.Sprintf("style source %s not found", id), nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrInfrastructure, "catalog", "get style", "query style source", err)
	}
	return source, nil
}

// ListStyleSources returns a user's style sources, newest first.
func (s *Store) ListStyleSources(ctx context.Context, userID string) ([]*StyleSource, error) {
	query := fmt.Sprintf("SELECT %s FROM style_sources WHERE user_id = ? ORDER BY created_at DESC", styleColumns)
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, services.Wrap(services.ErrInfrastructure, "catalog", "list styles", "query style sources", err)
	}
	defer rows.Close()

	var sources []*StyleSource
	for rows.Next() {
		source, err := scanStyle(rows)
		if err != nil {
			return nil, services.Wrap(services.ErrInfrastructure, "catalog", "list styles", "scan style source", err)
		}
		sources = append(sources, source)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrInfrastructure, "catalog", "list styles", "iterate style sources", err)
	}
	return sources, nil
}
