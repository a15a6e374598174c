package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LLMプロバイダー
const (
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
)

// Config holds the application configuration
type Config struct {
	Port        string
	Environment string
	LogLevel    string
	DBPath      string

	// 生成API（chat completion）
	LLMProvider           string
	LLMAPIKey             string
	LLMEndpoint           string
	LLMModel              string
	AzureOpenAIAPIVersion string
	AzureDeploymentName   string
	LLMTimeout            time.Duration
	LLMKeyPrefix          string
	LLMKeyMinLength       int

	ContextRowLimit  int // プロンプトに埋め込む行数
	HistoryRowLimit  int // 集計に使う行数（ストアのデフォルトページを超える場合は明示が必要）
	RankingTopN      int
	SystemPromptPath string

	APIKey        string
	AdminUsername string
	AdminPassword string
}

// LoadEnvFile は.envファイルがあれば環境変数に読み込みます。
func LoadEnvFile(paths ...string) error {
	return godotenv.Load(paths...)
}

// LoadConfig は環境変数と（あれば）configs/config.yaml から設定を読み込みます。
// 環境変数が設定ファイルより優先されます。
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("configs")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
	}

	provider := strings.ToLower(v.GetString("LLM_PROVIDER"))
	if provider != ProviderOpenAI && provider != ProviderAzure {
		return nil, fmt.Errorf("未対応のLLM_PROVIDERです: %q", provider)
	}

	// Azureのキーにはプレフィックスが無いので、明示されていなければ空にする
	keyPrefix := v.GetString("LLM_KEY_PREFIX")
	if provider == ProviderAzure && !v.InConfig("llm_key_prefix") {
		if _, ok := os.LookupEnv("LLM_KEY_PREFIX"); !ok {
			keyPrefix = ""
		}
	}

	return &Config{
		Port:                  v.GetString("PORT"),
		Environment:           v.GetString("ENVIRONMENT"),
		LogLevel:              v.GetString("LOG_LEVEL"),
		DBPath:                v.GetString("DB_PATH"),
		LLMProvider:           provider,
		LLMAPIKey:             v.GetString("LLM_API_KEY"),
		LLMEndpoint:           v.GetString("LLM_ENDPOINT"),
		LLMModel:              v.GetString("LLM_MODEL"),
		AzureOpenAIAPIVersion: v.GetString("AZURE_OPENAI_API_VERSION"),
		AzureDeploymentName:   v.GetString("AZURE_OPENAI_DEPLOYMENT_NAME"),
		LLMTimeout:            v.GetDuration("LLM_TIMEOUT"),
		LLMKeyPrefix:          keyPrefix,
		LLMKeyMinLength:       v.GetInt("LLM_KEY_MIN_LENGTH"),
		ContextRowLimit:       v.GetInt("CONTEXT_ROW_LIMIT"),
		HistoryRowLimit:       v.GetInt("HISTORY_ROW_LIMIT"),
		RankingTopN:           v.GetInt("RANKING_TOP_N"),
		SystemPromptPath:      v.GetString("SYSTEM_PROMPT_PATH"),
		APIKey:                v.GetString("API_KEY"),
		AdminUsername:         v.GetString("ADMIN_USERNAME"),
		AdminPassword:         v.GetString("ADMIN_PASSWORD"),
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_PATH", "oee.db")
	v.SetDefault("LLM_PROVIDER", ProviderOpenAI)
	v.SetDefault("LLM_API_KEY", "")
	v.SetDefault("LLM_ENDPOINT", "https://api.openai.com")
	v.SetDefault("LLM_MODEL", "gpt-4o-mini")
	v.SetDefault("AZURE_OPENAI_API_VERSION", "2024-02-15-preview")
	v.SetDefault("AZURE_OPENAI_DEPLOYMENT_NAME", "")
	v.SetDefault("LLM_TIMEOUT", "30s")
	v.SetDefault("LLM_KEY_PREFIX", "sk-")
	v.SetDefault("LLM_KEY_MIN_LENGTH", 20)
	v.SetDefault("CONTEXT_ROW_LIMIT", 50)
	v.SetDefault("HISTORY_ROW_LIMIT", 5000)
	v.SetDefault("RANKING_TOP_N", 5)
	v.SetDefault("SYSTEM_PROMPT_PATH", "configs/system_prompt.yaml")
	v.SetDefault("API_KEY", "")
	v.SetDefault("ADMIN_USERNAME", "admin")
	v.SetDefault("ADMIN_PASSWORD", "")
}
