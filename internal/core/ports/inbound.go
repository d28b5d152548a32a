package ports

import (
	"context"

	"github.com/agromitra/citrus-advisor/internal/core/domain"
)

// ChatService is the inbound contract for conversational question answering.
type ChatService interface {
	Chat(ctx context.Context, query domain.Query) (*domain.AnswerResponse, error)
	ClearSession(ctx context.Context, sessionID string) error
}
