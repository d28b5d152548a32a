package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agromitra/citrus-advisor/internal/core/domain"
)

type ConversationRepository struct {
	db *sql.DB
}

func NewConversationRepository(db *sql.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS conversation_turns (
    id            TEXT PRIMARY KEY,
    session_id    TEXT NOT NULL,
    role          TEXT NOT NULL,
    content       TEXT NOT NULL,
    cited_sources TEXT NOT NULL DEFAULT '[]',
    created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversation_turns_session
    ON conversation_turns (session_id, created_at);
`)
	if err != nil {
		return fmt.Errorf("ensure conversation schema: %w", err)
	}
	return nil
}

func (r *ConversationRepository) Append(ctx context.Context, turn domain.ConversationTurn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	sources := []byte("[]")
	if len(turn.CitedSources) > 0 {
		var err error
		sources, err = json.Marshal(turn.CitedSources)
		if err != nil {
			return fmt.Errorf("marshal cited sources: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO conversation_turns (id, session_id, role, content, cited_sources, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, turn.ID, turn.SessionID, string(turn.Role), turn.Text, string(sources), turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

func (r *ConversationRepository) GetRecent(ctx context.Context, sessionID string, n int) ([]domain.ConversationTurn, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, session_id, role, content, cited_sources, created_at
FROM conversation_turns
WHERE session_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2
`, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("get recent turns: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ConversationTurn, 0, n)
	for rows.Next() {
		var turn domain.ConversationTurn
		var role, sources string
		if err := rows.Scan(&turn.ID, &turn.SessionID, &role, &turn.Text, &sources, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turn.Role = domain.TurnRole(role)
		if err := json.Unmarshal([]byte(sources), &turn.CitedSources); err != nil {
			turn.CitedSources = nil
		}
		out = append(out, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}

	// SQL returns newest first; reverse to chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *ConversationRepository) Clear(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `
DELETE FROM conversation_turns
WHERE session_id = $1
`, sessionID)
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
