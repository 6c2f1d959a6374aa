package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/voxcut/voxcut/internal/config"
	"github.com/voxcut/voxcut/internal/httpx"
	"github.com/voxcut/voxcut/internal/models"
)

// OpenAIClient talks to any OpenAI-compatible chat completions API.
type OpenAIClient struct {
	baseURL string
	apiKey  string
	model   string
	http    *httpx.Client
}

// NewOpenAIClient creates a client from provider config.
func NewOpenAIClient(cfg config.LLMConfig) *OpenAIClient {
	return &OpenAIClient{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		http:    httpx.New(httpx.Config{Timeout: cfg.Timeout}),
	}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *OpenAIClient) newRequest(ctx context.Context, body any) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// Chat performs one blocking completion.
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, opts Options) (*Result, error) {
	body := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: opts.Temperature,
	}
	if opts.ResponseFormat != "" {
		body.ResponseFormat = &responseFormat{Type: opts.ResponseFormat}
	}

	req, err := c.newRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, models.ProviderUnavailable("llm request: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.ProviderUnavailable("reading llm response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, models.ProviderUnavailable("llm returned %s: %s", resp.Status, truncate(string(data), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, models.ProviderUnavailable("decoding llm response: %v", err)
	}
	if parsed.Error != nil {
		return nil, models.ProviderUnavailable("llm error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, models.ProviderUnavailable("llm returned no choices")
	}
	return &Result{Content: parsed.Choices[0].Message.Content, Usage: parsed.Usage}, nil
}

// ChatStream performs a streaming completion over SSE.
func (c *OpenAIClient) ChatStream(ctx context.Context, messages []Message, opts Options, onDelta func(string)) (*Result, error) {
	body := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: opts.Temperature,
		Stream:      true,
	}
	if opts.ResponseFormat != "" {
		body.ResponseFormat = &responseFormat{Type: opts.ResponseFormat}
	}

	req, err := c.newRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, models.ProviderUnavailable("llm stream request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, models.ProviderUnavailable("llm returned %s: %s", resp.Status, truncate(string(data), 200))
	}

	var content strings.Builder
	var usage *Usage
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		payload = strings.TrimSpace(payload)
		if payload == "[DONE]" {
			break
		}
		var chunk chatResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			content.WriteString(chunk.Choices[0].Delta.Content)
			if onDelta != nil {
				onDelta(chunk.Choices[0].Delta.Content)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, models.ProviderUnavailable("reading llm stream: %v", err)
	}
	return &Result{Content: content.String(), Usage: usage}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
