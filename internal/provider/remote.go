package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/shikaku/internal/config"
	"github.com/hyperjump/shikaku/internal/imaging"
)

// RemoteProvider delegates inference to a model server speaking JSON over HTTP.
// Images are sent as base64-encoded PNG.
type RemoteProvider struct {
	baseURL string
	client  *http.Client
	cfg     config.ModelsConfig
	logger  *zap.Logger

	mu   sync.RWMutex
	info Info
}

type remoteHealth struct {
	Device          string `json:"device"`
	EmbeddingLoaded bool   `json:"embedding_loaded"`
	CaptionLoaded   bool   `json:"caption_loaded"`
}

type remoteEmbedding struct {
	Embedding []float32 `json:"embedding"`
}

type remoteScores struct {
	Logits []float32 `json:"logits"`
}

type remoteCaption struct {
	Caption string `json:"caption"`
}

// NewRemoteProvider creates a client for cfg.RemoteURL and probes its health endpoint.
// An unreachable server is logged, not fatal: Info reports the models as not loaded
// until a later Refresh succeeds.
func NewRemoteProvider(ctx context.Context, cfg *config.ModelsConfig, logger *zap.Logger) *RemoteProvider {
	p := &RemoteProvider{
		baseURL: strings.TrimRight(cfg.RemoteURL, "/"),
		client:  &http.Client{Timeout: cfg.RemoteTimeout},
		cfg:     *cfg,
		logger:  logger,
		info: Info{
			Name:           config.ProviderRemote,
			Device:         "remote",
			EmbeddingModel: cfg.EmbeddingName,
			CaptionModel:   cfg.CaptionName,
			Dimensions:     cfg.Dimensions,
		},
	}
	if err := p.Refresh(ctx); err != nil {
		logger.Warn("model server health check failed", zap.String("url", p.baseURL), zap.Error(err))
	}
	return p
}

// Refresh re-reads the model server's health and updates Info.
func (p *RemoteProvider) Refresh(ctx context.Context) error {
	var h remoteHealth
	if err := p.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		p.mu.Lock()
		p.info.EmbeddingLoaded, p.info.CaptionLoaded = false, false
		p.mu.Unlock()
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if h.Device != "" {
		p.info.Device = h.Device
	}
	p.info.EmbeddingLoaded = h.EmbeddingLoaded
	p.info.CaptionLoaded = h.CaptionLoaded && p.cfg.CaptionEnabledOrDefault()
	return nil
}

// EmbedImage posts the image to /embed/image.
func (p *RemoteProvider) EmbedImage(ctx context.Context, img *imaging.Image) ([]float32, error) {
	encoded, err := encodeImage(img)
	if err != nil {
		return nil, err
	}
	var out remoteEmbedding
	if err := p.do(ctx, http.MethodPost, "/embed/image", map[string]string{"image": encoded}, &out); err != nil {
		return nil, err
	}
	return out.Embedding, nil
}

// EmbedText posts the text to /embed/text.
func (p *RemoteProvider) EmbedText(ctx context.Context, text string) ([]float32, error) {
	var out remoteEmbedding
	if err := p.do(ctx, http.MethodPost, "/embed/text", map[string]string{"text": text}, &out); err != nil {
		return nil, err
	}
	return out.Embedding, nil
}

// ScoreImageAgainstTexts posts the image and texts to /score and expects one logit per text.
func (p *RemoteProvider) ScoreImageAgainstTexts(ctx context.Context, img *imaging.Image, texts []string) ([]float32, error) {
	encoded, err := encodeImage(img)
	if err != nil {
		return nil, err
	}
	req := struct {
		Image string   `json:"image"`
		Texts []string `json:"texts"`
	}{encoded, texts}
	var out remoteScores
	if err := p.do(ctx, http.MethodPost, "/score", req, &out); err != nil {
		return nil, err
	}
	if len(out.Logits) != len(texts) {
		return nil, fmt.Errorf("model server returned %d logits for %d texts", len(out.Logits), len(texts))
	}
	return out.Logits, nil
}

// Caption posts the image to /caption. A 503 from the server maps to ErrCaptionUnavailable.
func (p *RemoteProvider) Caption(ctx context.Context, img *imaging.Image) (string, error) {
	if !p.cfg.CaptionEnabledOrDefault() {
		return "", ErrCaptionUnavailable
	}
	encoded, err := encodeImage(img)
	if err != nil {
		return "", err
	}
	var out remoteCaption
	if err := p.do(ctx, http.MethodPost, "/caption", map[string]string{"image": encoded}, &out); err != nil {
		return "", err
	}
	return out.Caption, nil
}

// Info returns the last known state of the model server.
func (p *RemoteProvider) Info() Info {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info
}

// Close releases idle connections.
func (p *RemoteProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func (p *RemoteProvider) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("model server %s: %w", path, err)
	}
	defer resp.Body.Close()
	p.logger.Debug("model server call",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode == http.StatusServiceUnavailable && path == "/caption" {
		return ErrCaptionUnavailable
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("model server %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func encodeImage(img *imaging.Image) (string, error) {
	data, err := img.PNG()
	if err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
