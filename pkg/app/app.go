// Package app は設定からサービス一式を組み立てます。cmd/server と api/ で共有します。
package app

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	config "oee-copilot/configs"
	"oee-copilot/pkg/handlers"
	"oee-copilot/pkg/logger"
	"oee-copilot/pkg/metrics"
	"oee-copilot/pkg/openai"
	"oee-copilot/pkg/resilience"
	"oee-copilot/pkg/services"
	"oee-copilot/pkg/store"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker"
)

const metricsNamespace = "oee_copilot"

// App は組み立て済みの依存一式です。
type App struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *sql.DB
	Store    *store.SQLiteStore
	Metrics  *metrics.Metrics
	Copilot  *services.CopilotService
	Importer *services.ImportService
	Router   *gin.Engine
}

// Build は設定に従ってDB・生成API・パイプライン・ルーターを初期化します。
func Build(cfg *config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.Get(cfg.LogLevel)
	}

	db, err := store.InitDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("データベースの初期化に失敗: %w", err)
	}
	s := store.New(db)
	m := metrics.New(metricsNamespace)

	prompt := loadPrompt(cfg.SystemPromptPath, log)
	responder := newResponder(cfg, prompt, log, m)

	copilot := services.NewCopilotService(s, responder, prompt, services.CopilotConfig{
		DefaultAPIKey:   cfg.LLMAPIKey,
		Policy:          services.CredentialPolicy{Prefix: cfg.LLMKeyPrefix, MinLength: cfg.LLMKeyMinLength},
		HistoryRowLimit: cfg.HistoryRowLimit,
		RankingTopN:     cfg.RankingTopN,
	}, log, m)
	importer := services.NewImportService(s, log, m)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewRouter(handlers.RouterDeps{
		Copilot:       copilot,
		Sessions:      s,
		Importer:      importer,
		Stats:         s,
		Monitoring:    services.NewMonitoringService(m),
		Metrics:       m,
		Maintenance:   &handlers.Maintenance{},
		Logger:        log,
		APIKey:        cfg.APIKey,
		AdminUsername: cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
	})

	if _, ok := copilot.UsesGenerative(""); ok {
		log.Infow("generative responses enabled", "provider", cfg.LLMProvider, "model", cfg.LLMModel)
	} else {
		log.Infow("no valid LLM credential configured, using template responses")
	}

	return &App{
		Config:   cfg,
		Logger:   log,
		DB:       db,
		Store:    s,
		Metrics:  m,
		Copilot:  copilot,
		Importer: importer,
		Router:   router,
	}, nil
}

// Close releases the database.
func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

func loadPrompt(path string, log *logger.Logger) *config.SystemPromptConfig {
	if path == "" {
		return config.DefaultSystemPrompt()
	}
	prompt, err := config.LoadSystemPrompt(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warnw("failed to load system prompt, using default", "path", path, "error", err)
		}
		return config.DefaultSystemPrompt()
	}
	return prompt
}

func newResponder(cfg *config.Config, prompt services.PromptProvider, log *logger.Logger, m *metrics.Metrics) *services.OpenAIService {
	clientCfg := openai.ClientConfig{
		Endpoint: cfg.LLMEndpoint,
		APIKey:   cfg.LLMAPIKey,
		Model:    cfg.LLMModel,
		Timeout:  cfg.LLMTimeout,
	}
	if cfg.LLMProvider == config.ProviderAzure {
		clientCfg.APIVersion = cfg.AzureOpenAIAPIVersion
		clientCfg.DeploymentName = cfg.AzureDeploymentName
	}

	breaker := resilience.NewCircuitBreaker(services.GenerativeBreakerConfig("llm"), log,
		func(name string, state gobreaker.State) {
			m.SetCircuitBreakerState(name, int(state))
		})
	return services.NewOpenAIService(openai.NewOpenAIClient(clientCfg), breaker, prompt, cfg.LLMTimeout, cfg.ContextRowLimit)
}
