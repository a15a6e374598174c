package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteText_OpenAICompatible(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.Len(t, req.Messages, 2)

		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"Machine B is the priority."}}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(ClientConfig{Endpoint: server.URL + "/", APIKey: "sk-test", Model: "gpt-4o-mini"})
	text, err := client.CompleteText(context.Background(), []ChatMessage{
		{Role: "system", Content: "s"},
		{Role: "user", Content: "u"},
	}, 100, 0.2)

	require.NoError(t, err)
	assert.Equal(t, "Machine B is the priority.", text)
}

func TestCompleteText_AzureDeployment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/deployments/oee-gpt/chat/completions", r.URL.Path)
		assert.Equal(t, "2024-02-15-preview", r.URL.Query().Get("api-version"))
		assert.Equal(t, "azure-key", r.Header.Get("api-key"))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(ClientConfig{
		Endpoint:       server.URL,
		APIKey:         "azure-key",
		APIVersion:     "2024-02-15-preview",
		DeploymentName: "oee-gpt",
	})
	text, err := client.CompleteText(context.Background(), []ChatMessage{{Role: "user", Content: "u"}}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestCompleteText_Failures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		credential bool
	}{
		{"non-2xx with error payload", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, true},
		{"forbidden", http.StatusForbidden, `denied`, true},
		{"non-2xx raw body", http.StatusBadGateway, `upstream down`, false},
		{"malformed payload", http.StatusOK, `{"choices": [`, false},
		{"missing content", http.StatusOK, `{"choices":[]}`, false},
		{"blank content", http.StatusOK, `{"choices":[{"message":{"content":"  "}}]}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewOpenAIClient(ClientConfig{Endpoint: server.URL, APIKey: "sk-test"})
			_, err := client.CompleteText(context.Background(), []ChatMessage{{Role: "user", Content: "u"}}, 10, 0)
			assert.Error(t, err)
			assert.Equal(t, tt.credential, IsCredentialError(err))
		})
	}
}

func TestAPIErrorCarriesStatusAndMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(ClientConfig{Endpoint: server.URL, APIKey: "sk-test"})
	_, err := client.ChatCompletion(context.Background(), []ChatMessage{{Role: "user", Content: "u"}}, 10, 0)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "bad key", apiErr.Message)
}

func TestWithAPIKey(t *testing.T) {
	base := NewOpenAIClient(ClientConfig{Endpoint: "http://example", APIKey: "sk-a"})
	override := base.WithAPIKey("sk-b")

	assert.Equal(t, "sk-a", base.apiKey)
	assert.Equal(t, "sk-b", override.apiKey)
	assert.Same(t, base.httpClient, override.httpClient)
}

func TestDoRequestRequiresKey(t *testing.T) {
	client := NewOpenAIClient(ClientConfig{Endpoint: "http://127.0.0.1:1"})
	_, err := client.ChatCompletion(context.Background(), nil, 1, 0)
	assert.Error(t, err)
}
