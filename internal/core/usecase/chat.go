package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/agromitra/citrus-advisor/internal/core/domain"
	"github.com/agromitra/citrus-advisor/internal/core/ports"
)

type ChatConfig struct {
	RequestTimeout time.Duration
	RRFK           int
	HistoryTurns   int
}

// ChatUseCase sequences the pipeline for one request:
// classify -> route -> retrieve -> fuse -> rerank -> generate.
// Clarification and no-evidence are short circuits, not failures.
type ChatUseCase struct {
	classifier *IntentClassifier
	router     *KnowledgeRouter
	retriever  *HybridRetriever
	reranker   *Reranker
	generator  *AnswerGenerator
	store      ports.ConversationStore
	locks      *SessionLocks
	cfg        ChatConfig
}

func NewChatUseCase(
	classifier *IntentClassifier,
	router *KnowledgeRouter,
	retriever *HybridRetriever,
	reranker *Reranker,
	generator *AnswerGenerator,
	store ports.ConversationStore,
	locks *SessionLocks,
	cfg ChatConfig,
) *ChatUseCase {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.RRFK <= 0 {
		cfg.RRFK = defaultRRFK
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = 6
	}
	return &ChatUseCase{
		classifier: classifier,
		router:     router,
		retriever:  retriever,
		reranker:   reranker,
		generator:  generator,
		store:      store,
		locks:      locks,
		cfg:        cfg,
	}
}

func (uc *ChatUseCase) Chat(ctx context.Context, query domain.Query) (*domain.AnswerResponse, error) {
	if strings.TrimSpace(query.Text) == "" {
		return nil, domain.WrapError(domain.ErrInvalidQuery, "chat", fmt.Errorf("query text is empty"))
	}
	if query.ReceivedAt.IsZero() {
		query.ReceivedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, uc.cfg.RequestTimeout)
	defer cancel()
	start := time.Now()

	// History is best-effort: the pipeline answers statelessly when the
	// conversation store is down.
	recent, err := uc.store.GetRecent(ctx, query.SessionID, uc.cfg.HistoryTurns)
	if err != nil {
		slog.Warn("conversation_history_unavailable", "session_id", query.SessionID, "error", err)
		recent = nil
	}

	intent, err := uc.classifier.Classify(ctx, query, recent)
	if err != nil {
		return nil, mapStageError("classify", err)
	}

	route := uc.router.Route(intent)
	if route.NeedsClarification {
		resp, err := uc.generator.Generate(ctx, query, intent, nil, recent, true)
		if err != nil {
			return nil, mapStageError("clarify", err)
		}
		return uc.finish(resp, start), nil
	}

	results, err := uc.retriever.Retrieve(ctx, query.Text, route.Namespaces)
	if err != nil {
		// All namespaces down degrades to the no-evidence answer instead of
		// failing the request.
		slog.Warn("retrieval_unavailable", "session_id", query.SessionID, "error", err)
		results = nil
	}

	fused := fuseRRF(namespaceLists(results), uc.cfg.RRFK)

	reranked, err := uc.reranker.Rerank(ctx, query.Text, fused)
	if err != nil {
		return nil, mapStageError("rerank", err)
	}

	resp, err := uc.generator.Generate(ctx, query, intent, reranked, recent, false)
	if err != nil {
		return nil, mapStageError("generate", err)
	}
	return uc.finish(resp, start), nil
}

func (uc *ChatUseCase) ClearSession(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return domain.WrapError(domain.ErrInvalidQuery, "clear session", fmt.Errorf("session id is empty"))
	}
	unlock := uc.locks.lock(sessionID)
	defer unlock()
	if err := uc.store.Clear(ctx, sessionID); err != nil {
		return mapStageError("clear session", err)
	}
	return nil
}

func (uc *ChatUseCase) finish(resp *domain.AnswerResponse, start time.Time) *domain.AnswerResponse {
	resp.ProcessingTime = time.Since(start).Seconds()
	return resp
}

func mapStageError(stage string, err error) error {
	switch {
	case domain.IsKind(err, domain.ErrInvalidQuery),
		domain.IsKind(err, domain.ErrUpstreamTimeout),
		domain.IsKind(err, domain.ErrUpstreamError),
		domain.IsKind(err, domain.ErrGenerationFailed),
		domain.IsKind(err, domain.ErrSessionNotFound):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return domain.WrapError(domain.ErrUpstreamTimeout, stage, err)
	default:
		return domain.WrapError(domain.ErrUpstreamError, stage, err)
	}
}

// SessionLocks serializes writes per session id. Concurrent requests for
// different sessions never contend.
type SessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewSessionLocks() *SessionLocks {
	return &SessionLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *SessionLocks) lock(sessionID string) func() {
	l.mu.Lock()
	m, ok := l.locks[sessionID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[sessionID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
