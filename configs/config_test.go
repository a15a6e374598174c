package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	// テスト用の環境変数を設定
	testCases := map[string]string{
		"PORT":               "9090",
		"ENVIRONMENT":        "test",
		"LLM_API_KEY":        "sk-test-0123456789abcdef",
		"LLM_MODEL":          "gpt-4o",
		"LLM_TIMEOUT":        "5s",
		"CONTEXT_ROW_LIMIT":  "20",
		"HISTORY_ROW_LIMIT":  "12000",
		"DB_PATH":            "/tmp/oee-test.db",
		"LLM_KEY_MIN_LENGTH": "24",
	}
	for key, value := range testCases {
		t.Setenv(key, value)
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, "sk-test-0123456789abcdef", cfg.LLMAPIKey)
	assert.Equal(t, "gpt-4o", cfg.LLMModel)
	assert.Equal(t, 5*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 20, cfg.ContextRowLimit)
	assert.Equal(t, 12000, cfg.HistoryRowLimit)
	assert.Equal(t, "/tmp/oee-test.db", cfg.DBPath)
	assert.Equal(t, 24, cfg.LLMKeyMinLength)
}

func TestLoadConfigDefaults(t *testing.T) {
	for _, v := range []string{"PORT", "ENVIRONMENT", "LLM_PROVIDER", "LLM_API_KEY", "LLM_KEY_PREFIX", "LLM_TIMEOUT"} {
		t.Setenv(v, "")
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)

	// 空文字の環境変数はデフォルト扱い
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, ProviderOpenAI, cfg.LLMProvider)
	assert.Equal(t, "sk-", cfg.LLMKeyPrefix)
	assert.Equal(t, 30*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 5, cfg.RankingTopN)
}

func TestLoadConfigAzureHasNoKeyPrefix(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "azure")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ProviderAzure, cfg.LLMProvider)
	assert.Equal(t, "", cfg.LLMKeyPrefix)
}

func TestLoadConfigRejectsUnknownProvider(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "llama")

	_, err := LoadConfig()
	assert.Error(t, err)
}
