package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	httpadapter "github.com/agromitra/citrus-advisor/internal/adapters/http"
	"github.com/agromitra/citrus-advisor/internal/config"
	"github.com/agromitra/citrus-advisor/internal/core/domain"
	"github.com/agromitra/citrus-advisor/internal/core/usecase"
	"github.com/agromitra/citrus-advisor/internal/infrastructure/keyword/bm25"
	"github.com/agromitra/citrus-advisor/internal/infrastructure/llm/ollama"
	natsqueue "github.com/agromitra/citrus-advisor/internal/infrastructure/queue/nats"
	"github.com/agromitra/citrus-advisor/internal/infrastructure/repository/postgres"
	"github.com/agromitra/citrus-advisor/internal/infrastructure/reranker/tei"
	"github.com/agromitra/citrus-advisor/internal/infrastructure/vector/qdrant"
	"github.com/agromitra/citrus-advisor/internal/observability/logging"
	"github.com/agromitra/citrus-advisor/internal/observability/metrics"
)

const serviceName = "citrus-advisor"

var knowledgeNamespaces = []domain.Namespace{
	domain.NamespaceDisease,
	domain.NamespaceScheme,
}

// App holds everything main needs: the wired HTTP handler and the
// resources to release on shutdown.
type App struct {
	Config  config.Config
	Handler http.Handler

	db    *sql.DB
	redis *redis.Client
	queue *natsqueue.Queue
}

// New wires the whole service. Postgres is required; NATS and Redis are
// optional and their absence degrades the corresponding feature instead of
// failing startup.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logging.Setup(serviceName, cfg.LogLevel)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	conversations := postgres.NewConversationRepository(db)
	if err := conversations.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure conversation schema: %w", err)
	}
	chunks := postgres.NewChunkRepository(db)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.Warn("redis_unavailable_at_startup", "addr", cfg.RedisAddr, "error", err)
		}
	}
	scoreCache := tei.NewScoreCache(redisClient, time.Duration(cfg.RerankCacheTTLSecs)*time.Second)

	llmClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel,
		time.Duration(cfg.LLMTimeoutSecs)*time.Second)
	generator := ollama.NewGenerator(llmClient)
	embedder := ollama.NewEmbedder(llmClient)

	semantic := qdrant.New(cfg.QdrantURL, map[domain.Namespace]string{
		domain.NamespaceDisease: cfg.QdrantDiseaseCollection,
		domain.NamespaceScheme:  cfg.QdrantSchemeCollection,
	}, embedder, chunks)

	keywordIndex := bm25.NewIndex(chunks)
	if err := keywordIndex.Hydrate(ctx, knowledgeNamespaces); err != nil {
		slog.Warn("keyword_index_hydrate_failed", "error", err)
	}

	reranker := tei.New(cfg.RerankerURL, scoreCache)

	var queue *natsqueue.Queue
	queue, err = natsqueue.New(cfg.NATSURL, cfg.NATSCorpusSubject)
	if err != nil {
		slog.Warn("nats_unavailable_at_startup", "url", cfg.NATSURL, "error", err)
		queue = nil
	} else {
		err = queue.SubscribeCorpusUpdated(ctx, func(ctx context.Context, namespace string) error {
			ns := domain.Namespace(namespace)
			switch ns {
			case domain.NamespaceDisease, domain.NamespaceScheme:
			default:
				return fmt.Errorf("unknown namespace %q", namespace)
			}
			slog.Info("keyword_index_rebuild", "namespace", ns)
			return keywordIndex.Rebuild(ctx, ns)
		})
		if err != nil {
			slog.Warn("corpus_subscription_failed", "error", err)
		}
	}

	locks := usecase.NewSessionLocks()
	chatUC := usecase.NewChatUseCase(
		usecase.NewIntentClassifier(generator, usecase.IntentThresholds{
			High: cfg.IntentHighConfidence,
			Low:  cfg.IntentLowConfidence,
		}),
		usecase.NewKnowledgeRouter(),
		usecase.NewHybridRetriever(semantic, keywordIndex, usecase.RetrieverConfig{
			TopN:        cfg.RetrievalTopN,
			CallTimeout: time.Duration(cfg.RetrievalCallTimeoutMS) * time.Millisecond,
		}),
		usecase.NewReranker(reranker, usecase.RerankerConfig{
			TopK:      cfg.RerankTopK,
			BatchSize: cfg.RerankBatchSize,
		}),
		usecase.NewAnswerGenerator(generator, conversations, locks, usecase.GeneratorConfig{
			HistoryTurns: cfg.HistoryTurns,
		}),
		conversations,
		locks,
		usecase.ChatConfig{
			RequestTimeout: time.Duration(cfg.RequestTimeoutSecs) * time.Second,
			RRFK:           cfg.RRFK,
			HistoryTurns:   cfg.HistoryTurns,
		},
	)

	serverMetrics := metrics.NewHTTPServerMetrics(serviceName)

	checks := []httpadapter.DependencyCheck{
		{Name: "postgres", Check: db.PingContext},
		{Name: "qdrant", Check: semantic.Ping},
		{Name: "ollama", Check: llmClient.Ping},
		{Name: "reranker", Check: reranker.Ping},
		{Name: "keyword_index", Check: func(context.Context) error {
			if !keywordIndex.Ready(knowledgeNamespaces) {
				return fmt.Errorf("keyword index not hydrated")
			}
			return nil
		}},
	}
	if queue != nil {
		checks = append(checks, httpadapter.DependencyCheck{
			Name: "nats",
			Check: func(context.Context) error {
				if !queue.Connected() {
					return fmt.Errorf("nats not connected")
				}
				return nil
			},
		})
	}
	if redisClient != nil {
		checks = append(checks, httpadapter.DependencyCheck{
			Name: "redis",
			Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	}

	handler := httpadapter.NewHandler(chatUC, serverMetrics, checks, httpadapter.Options{
		RateLimitRPS:   cfg.APIRateLimitRPS,
		RateLimitBurst: cfg.APIRateLimitBurst,
		MaxInFlight:    cfg.APIMaxInFlight,
		QueueTimeout:   time.Duration(cfg.APIQueueTimeoutMS) * time.Millisecond,
	})

	return &App{
		Config:  cfg,
		Handler: handler,
		db:      db,
		redis:   redisClient,
		queue:   queue,
	}, nil
}

func (a *App) Close() {
	if a.queue != nil {
		a.queue.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Warn("redis_close_failed", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			slog.Warn("postgres_close_failed", "error", err)
		}
	}
}
