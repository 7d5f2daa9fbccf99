package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"livechat-backend/internal/env"
)

const defaultSystemPrompt = "You are a helpful support assistant. Answer briefly and offer to connect the visitor with a team member when you cannot help."

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// OpenAIProvider talks to any endpoint that speaks the OpenAI chat
// completions protocol (OpenAI, OpenRouter, Groq).
type OpenAIProvider struct {
	BaseURL      string
	APIKey       string
	Model        string
	SystemPrompt string
	Client       *http.Client
}

type chatCompletionReq struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatCompletionResp struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewOpenAIProvider(baseURL, apiKey, model, systemPrompt string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}
	return &OpenAIProvider{
		BaseURL:      baseURL,
		APIKey:       apiKey,
		Model:        model,
		SystemPrompt: systemPrompt,
		Client:       &http.Client{Timeout: 60 * time.Second},
	}
}

// NewFromEnv returns nil when no API key is configured.
func NewFromEnv() Provider {
	key := env.Get(env.AssistantAPIKey)
	if strings.TrimSpace(key) == "" {
		return nil
	}
	return NewOpenAIProvider(
		env.Get(env.AssistantBaseURL),
		key,
		env.Get(env.AssistantModel),
		env.Get(env.AssistantSystemPrompt),
	)
}

func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if p.Client == nil {
		return "", errors.New("assistant: http client is nil")
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return "", errors.New("assistant: api key is required")
	}

	payload := make([]Message, 0, len(messages)+1)
	payload = append(payload, Message{Role: "system", Content: p.SystemPrompt})
	payload = append(payload, messages...)

	b, err := json.Marshal(chatCompletionReq{Model: p.Model, Messages: payload})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/chat/completions", strings.TrimRight(p.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("assistant: %s", msg)
	}

	var decoded chatCompletionResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return "", errors.New(decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("assistant: empty response")
	}
	return decoded.Choices[0].Message.Content, nil
}
