package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/agromitra/citrus-advisor/internal/core/domain"
)

// ChunkRepository reads document chunks owned by the ingestion side. The
// pipeline never writes to this table.
type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func (r *ChunkRepository) GetChunk(ctx context.Context, chunkID string) (*domain.DocumentChunk, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, text, source, COALESCE(page, 0), namespace
FROM document_chunks
WHERE id = $1
`, chunkID)

	var chunk domain.DocumentChunk
	if err := row.Scan(&chunk.ID, &chunk.Text, &chunk.Source, &chunk.Page, &chunk.Namespace); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chunk %s not found", chunkID)
		}
		return nil, fmt.Errorf("get chunk: %w", err)
	}
	return &chunk, nil
}

// ListChunks returns a namespace's full corpus in insertion order. The
// keyword index hydrates from this.
func (r *ChunkRepository) ListChunks(ctx context.Context, namespace domain.Namespace) ([]domain.DocumentChunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, text, source, COALESCE(page, 0), namespace
FROM document_chunks
WHERE namespace = $1
ORDER BY created_at ASC, id ASC
`, string(namespace))
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	out := make([]domain.DocumentChunk, 0, 256)
	for rows.Next() {
		var chunk domain.DocumentChunk
		if err := rows.Scan(&chunk.ID, &chunk.Text, &chunk.Source, &chunk.Page, &chunk.Namespace); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}
