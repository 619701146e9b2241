package handler

import (
	"fmt"

	"github.com/ClareAI/astra-sales-engine/internal/config"
	"github.com/ClareAI/astra-sales-engine/internal/engine"
	"github.com/ClareAI/astra-sales-engine/internal/llm"
	"github.com/ClareAI/astra-sales-engine/internal/repository"
	"github.com/ClareAI/astra-sales-engine/internal/services/conversation"
	"github.com/ClareAI/astra-sales-engine/pkg/logger"
	"github.com/ClareAI/astra-sales-engine/pkg/redis"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// HandlerManager creates all services and wires the HTTP routes.
type HandlerManager struct {
	cfg                 *config.Config
	service             *conversation.Service
	conversationHandler *ConversationHandler
	repos               repository.RepositoryManager
}

// NewHandlerManager builds the full service graph from configuration.
func NewHandlerManager(cfg *config.Config) (*HandlerManager, error) {
	var completions engine.CompletionService
	if cfg.OpenAIAPIKey != "" {
		completions = llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	} else {
		logger.Base().Warn("no completion api key configured, replies will use deterministic fallbacks")
	}

	eng := engine.NewEngine(completions, llm.NewLLMUnderstander(completions), engine.Options{
		MaxReplyLines:     cfg.MaxReplyLines,
		ContextWindowSize: cfg.ContextWindowSize,
		ContextWindowTTL:  cfg.StateTTL,
		UnderstandingTTL:  cfg.UnderstandingTTL,
		ArchetypeTTL:      cfg.ArchetypeTTL,
		MaxContacts:       cfg.MaxContacts,
	})

	var repos repository.RepositoryManager
	if cfg.DatabaseEnabled {
		var err error
		repos, err = repository.NewRepositoryManager()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize repositories: %w", err)
		}
	}

	var redisSvc redis.RedisServiceInterface
	if cfg.RedisEnabled {
		svc, err := redis.NewRedisService(&cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		redisSvc = svc
	}

	service := conversation.NewService(eng, repos, redisSvc, cfg.InstanceID, cfg.MaxContacts, cfg.StateTTL)

	logger.Base().Info("handler manager initialized",
		zap.Bool("database", cfg.DatabaseEnabled),
		zap.Bool("redis", cfg.RedisEnabled),
		zap.String("instance_id", cfg.InstanceID))

	return &HandlerManager{
		cfg:                 cfg,
		service:             service,
		conversationHandler: NewConversationHandler(service),
		repos:               repos,
	}, nil
}

// SetupAllRoutes registers all routes on the router
func (m *HandlerManager) SetupAllRoutes(router *mux.Router) {
	router.HandleFunc("/health", m.conversationHandler.Health).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(LoggingMiddleware)
	if m.cfg.EnableCORS {
		api.Use(CORSMiddleware)
	}
	api.Use(APIKeyMiddleware(m.cfg.APISecretKey))
	api.Use(RateLimitMiddleware(m.cfg.RatePerMinute, m.cfg.MaxContacts))

	api.HandleFunc("/conversations/{contactId}/messages", m.conversationHandler.ProcessMessage).Methods("POST")
	api.HandleFunc("/conversations/{contactId}/progress", m.conversationHandler.Progress).Methods("GET")
	api.HandleFunc("/conversations/{contactId}/snapshot", m.conversationHandler.Snapshot).Methods("GET")
	api.HandleFunc("/conversations/{contactId}/archetype", m.conversationHandler.OverrideArchetype).Methods("POST")
}

// Close releases held resources.
func (m *HandlerManager) Close() {
	if m.repos != nil {
		if err := m.repos.Close(); err != nil {
			logger.Base().Warn("failed to close repositories", zap.Error(err))
		}
	}
}
