package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agromitra/citrus-advisor/internal/core/domain"
	"github.com/agromitra/citrus-advisor/internal/core/ports"
)

const (
	clarificationAnswer = "Could you clarify whether you are asking about a citrus disease or a government scheme?"
	noEvidenceAnswer    = "I could not find enough information in the available documents to answer that. Please try rephrasing your question."
)

type GeneratorConfig struct {
	HistoryTurns int
}

// AnswerGenerator assembles the grounded prompt, invokes the LLM and
// extracts citations. Citations are restricted to the passages that were in
// the prompt; the generator never cites outside the reranked set it was
// given.
type AnswerGenerator struct {
	llm   ports.TextGenerator
	store ports.ConversationStore
	locks *SessionLocks
	cfg   GeneratorConfig
}

func NewAnswerGenerator(llm ports.TextGenerator, store ports.ConversationStore, locks *SessionLocks, cfg GeneratorConfig) *AnswerGenerator {
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = 6
	}
	return &AnswerGenerator{llm: llm, store: store, locks: locks, cfg: cfg}
}

func (g *AnswerGenerator) Generate(
	ctx context.Context,
	query domain.Query,
	intent domain.Intent,
	hits []domain.RerankedHit,
	recent []domain.ConversationTurn,
	clarification bool,
) (*domain.AnswerResponse, error) {
	if clarification {
		answer := clarificationAnswer
		g.appendTurns(ctx, query, answer, nil)
		return &domain.AnswerResponse{
			Answer:    answer,
			Intent:    intent,
			Citations: []domain.Citation{},
		}, nil
	}

	// No evidence is a legitimate answer state, never an invented answer.
	if len(hits) == 0 {
		g.appendTurns(ctx, query, noEvidenceAnswer, nil)
		return &domain.AnswerResponse{
			Answer:    noEvidenceAnswer,
			Intent:    intent,
			Citations: []domain.Citation{},
		}, nil
	}

	answer, err := g.llm.Generate(ctx, buildAnswerPrompt(query.Text, hits, recentTurnsTail(recent, g.cfg.HistoryTurns)))
	if err != nil {
		return nil, domain.WrapError(domain.ErrGenerationFailed, "generate answer", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, domain.WrapError(domain.ErrGenerationFailed, "generate answer", fmt.Errorf("model returned empty response"))
	}

	citations := extractCitations(answer, hits)
	g.appendTurns(ctx, query, answer, citations)

	return &domain.AnswerResponse{
		Answer:    answer,
		Intent:    intent,
		Citations: citations,
	}, nil
}

// appendTurns records the exchange. Persistence is best-effort on the
// write-after-success path: a failed append never fails the response.
// Appends for one session are serialized through the session lock.
func (g *AnswerGenerator) appendTurns(ctx context.Context, query domain.Query, answer string, citations []domain.Citation) {
	sources := make([]string, 0, len(citations))
	for _, c := range citations {
		sources = append(sources, c.Source)
	}

	now := time.Now().UTC()
	turns := []domain.ConversationTurn{
		{
			ID:        uuid.NewString(),
			SessionID: query.SessionID,
			Role:      domain.RoleUser,
			Text:      query.Text,
			CreatedAt: now,
		},
		{
			ID:           uuid.NewString(),
			SessionID:    query.SessionID,
			Role:         domain.RoleAssistant,
			Text:         answer,
			CitedSources: sources,
			CreatedAt:    now,
		},
	}

	unlock := g.locks.lock(query.SessionID)
	defer unlock()
	for _, turn := range turns {
		if err := g.store.Append(ctx, turn); err != nil {
			slog.Warn("conversation_append_failed", "session_id", query.SessionID, "role", turn.Role, "error", err)
			return
		}
	}
}

func buildAnswerPrompt(question string, hits []domain.RerankedHit, recent []domain.ConversationTurn) string {
	var b strings.Builder
	b.WriteString(`You are an expert agricultural assistant for citrus farmers.
Answer the question concisely using ONLY the numbered context passages below.
Give a clear, direct answer in 2-4 sentences. When a passage supports a
statement, reference it inline as [1], [2] and so on. If amounts or
subsidies are asked, extract the specific numbers. Do not repeat
information and do not invent sources.
`)

	if len(recent) > 0 {
		b.WriteString("\nRecent conversation:\n")
		for _, turn := range recent {
			b.WriteString(string(turn.Role))
			b.WriteString(": ")
			b.WriteString(turn.Text)
			b.WriteString("\n")
		}
	}

	b.WriteString("\nContext:\n")
	for i, hit := range hits {
		b.WriteString(fmt.Sprintf("[%d] source=%s", i+1, hit.Chunk.Source))
		if hit.Chunk.Page > 0 {
			b.WriteString(fmt.Sprintf(" page=%d", hit.Chunk.Page))
		}
		b.WriteString("\n")
		b.WriteString(hit.Chunk.Text)
		b.WriteString("\n\n")
	}

	b.WriteString("Question:\n")
	b.WriteString(question)
	return b.String()
}

var citationMarkerRe = regexp.MustCompile(`\[(\d+)\]`)

// extractCitations maps [n] markers in the answer back to prompt passages.
// Markers outside 1..len(hits) are ignored. When the model cites nothing,
// every prompted passage is cited: all of them shaped the answer.
func extractCitations(answer string, hits []domain.RerankedHit) []domain.Citation {
	cited := make([]int, 0, len(hits))
	seen := make(map[int]struct{})
	for _, match := range citationMarkerRe.FindAllStringSubmatch(answer, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil || n < 1 || n > len(hits) {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		cited = append(cited, n)
	}

	if len(cited) == 0 {
		for i := range hits {
			cited = append(cited, i+1)
		}
	}

	out := make([]domain.Citation, 0, len(cited))
	dedupe := make(map[string]struct{}, len(cited))
	for _, n := range cited {
		chunk := hits[n-1].Chunk
		key := fmt.Sprintf("%s#%d", chunk.Source, chunk.Page)
		if _, dup := dedupe[key]; dup {
			continue
		}
		dedupe[key] = struct{}{}
		out = append(out, domain.Citation{Source: chunk.Source, Page: chunk.Page})
	}
	return out
}
