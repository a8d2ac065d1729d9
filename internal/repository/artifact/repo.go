package artifact

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/dbpg"

	"github.com/aliskhannn/image-compressor/internal/model"
)

var ErrArtifactNotFound = errors.New("artifact not found")

// Repository stores metadata of published artifacts.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new Repository with the given DB connection.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// SaveArtifact inserts a new artifact record and returns its ID and creation time.
func (r *Repository) SaveArtifact(ctx context.Context, a model.Artifact) (model.Artifact, error) {
	query := `
		INSERT INTO artifacts (id, side, filename, mime_type, size, path, encoder, processor)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	encoderJSON, err := json.Marshal(a.Encoder)
	if err != nil {
		return model.Artifact{}, fmt.Errorf("save: failed to marshal encoder settings: %w", err)
	}
	processorJSON, err := json.Marshal(a.Processor)
	if err != nil {
		return model.Artifact{}, fmt.Errorf("save: failed to marshal processor settings: %w", err)
	}

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	err = r.db.QueryRowContext(
		ctx, query, a.ID, int(a.Side), a.FileName, a.MimeType, a.Size, a.Path, encoderJSON, processorJSON,
	).Scan(&a.CreatedAt)
	if err != nil {
		return model.Artifact{}, fmt.Errorf("save: failed to save artifact: %w", err)
	}

	return a, nil
}

// GetArtifact retrieves an artifact record by ID.
func (r *Repository) GetArtifact(ctx context.Context, id uuid.UUID) (model.Artifact, error) {
	query := `
		SELECT side, filename, mime_type, size, path, encoder, processor, created_at
		FROM artifacts
		WHERE id = $1
	`

	var (
		a             model.Artifact
		side          int
		encoderJSON   []byte
		processorJSON []byte
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&side, &a.FileName, &a.MimeType, &a.Size, &a.Path, &encoderJSON, &processorJSON, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Artifact{}, ErrArtifactNotFound
		}

		return model.Artifact{}, fmt.Errorf("get: failed to get artifact: %w", err)
	}

	if err := json.Unmarshal(encoderJSON, &a.Encoder); err != nil {
		return model.Artifact{}, fmt.Errorf("get: failed to unmarshal encoder settings: %w", err)
	}
	if err := json.Unmarshal(processorJSON, &a.Processor); err != nil {
		return model.Artifact{}, fmt.Errorf("get: failed to unmarshal processor settings: %w", err)
	}

	a.ID = id
	a.Side = model.Side(side)

	return a, nil
}

// DeleteArtifact deletes an artifact record by ID.
func (r *Repository) DeleteArtifact(ctx context.Context, id uuid.UUID) error {
	query := `
		DELETE FROM artifacts WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete: failed to delete artifact: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete: failed to get number of rows affected: %w", err)
	}

	if n == 0 {
		return ErrArtifactNotFound
	}

	return nil
}
