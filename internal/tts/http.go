package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/voxcut/voxcut/internal/config"
	"github.com/voxcut/voxcut/internal/httpx"
	"github.com/voxcut/voxcut/internal/models"
)

// HTTPProvider posts synthesis requests to a TTS service that answers
// with raw audio bytes.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	http    *httpx.Client
}

// NewHTTPProvider creates a provider from config.
func NewHTTPProvider(cfg config.TTSConfig) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    httpx.New(httpx.Config{Timeout: cfg.Timeout}),
	}
}

type synthesizeRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed"`
}

// Synthesize performs one synthesis call and writes the audio to
// req.OutPath. Provider-side failures are reported in Result.Error
// with Success false; transport failures return an error.
func (p *HTTPProvider) Synthesize(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, models.InputInvalid("tts text is empty")
	}
	speed := req.Speed
	if speed <= 0 {
		speed = 1.0
	}

	payload, err := json.Marshal(synthesizeRequest{Text: req.Text, Voice: req.VoiceID, Speed: speed})
	if err != nil {
		return nil, fmt.Errorf("encoding tts request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/synthesize", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, models.ProviderUnavailable("tts request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &Result{Success: false, Error: fmt.Sprintf("tts returned %s: %s", resp.Status, body)}, nil
	}

	if err := os.MkdirAll(filepath.Dir(req.OutPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating tts output dir: %w", err)
	}
	out, err := os.Create(req.OutPath)
	if err != nil {
		return nil, fmt.Errorf("creating tts output file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(req.OutPath)
		return nil, models.ProviderUnavailable("writing tts audio: %v", err)
	}

	result := &Result{Success: true}
	if d := resp.Header.Get("X-Audio-Duration"); d != "" {
		fmt.Sscanf(d, "%f", &result.Duration)
	}
	return result, nil
}
