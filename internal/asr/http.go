package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/voxcut/voxcut/internal/config"
	"github.com/voxcut/voxcut/internal/httpx"
	"github.com/voxcut/voxcut/internal/models"
)

// HTTPProvider uploads audio to a transcription service.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	http    *httpx.Client
}

// NewHTTPProvider creates a provider from config.
func NewHTTPProvider(cfg config.ASRConfig) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    httpx.New(httpx.Config{Timeout: cfg.Timeout}),
	}
}

type transcribeResponse struct {
	Cues  []Cue  `json:"cues"`
	Error string `json:"error"`
}

// Transcribe uploads the file as multipart form data and decodes the
// cue list.
func (p *HTTPProvider) Transcribe(ctx context.Context, audioPath string, opts Options) ([]Cue, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, models.InputInvalid("opening audio for asr: %v", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("audio", filepath.Base(audioPath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("buffering audio upload: %w", err)
	}
	if opts.Language != "" {
		mw.WriteField("language", opts.Language)
	}
	if opts.ModelKey != "" {
		mw.WriteField("model_key", opts.ModelKey)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transcribe", bytes.NewReader(body.Bytes()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, models.ProviderUnavailable("asr request: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.ProviderUnavailable("reading asr response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, models.ProviderUnavailable("asr returned %s", resp.Status)
	}

	var parsed transcribeResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, models.ProviderUnavailable("decoding asr response: %v", err)
	}
	if parsed.Error != "" {
		return nil, models.ProviderUnavailable("asr error: %s", parsed.Error)
	}
	return parsed.Cues, nil
}
