package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/shikaku/internal/models"
)

// Client calls a running shikaku server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for serverURL. A zero timeout means no timeout.
func NewClient(serverURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(serverURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// ImageFeatures uploads the image at path and returns its embedding and caption.
func (c *Client) ImageFeatures(ctx context.Context, path string) (*models.ImageFeaturesResponse, error) {
	var out models.ImageFeaturesResponse
	if err := c.upload(ctx, "/api/ai/image-features", path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Classify uploads the image at path with optional labels (server defaults when empty).
func (c *Client) Classify(ctx context.Context, path string, labels []string) (*models.ClassifyResponse, error) {
	var fields map[string]string
	if len(labels) > 0 {
		encoded, err := json.Marshal(labels)
		if err != nil {
			return nil, err
		}
		fields = map[string]string{"labels": string(encoded)}
	}
	var out models.ClassifyResponse
	if err := c.upload(ctx, "/api/ai/classify", path, fields, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TextEmbedding returns the embedding of query.
func (c *Client) TextEmbedding(ctx context.Context, query string) (*models.TextEmbeddingResponse, error) {
	body, err := json.Marshal(models.TextQuery{Query: query})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/ai/text-embedding", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	var out models.TextEmbeddingResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health returns the server's health report.
func (c *Client) Health(ctx context.Context) (*models.HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	var out models.HealthResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) upload(ctx context.Context, endpoint, path string, fields map[string]string, out interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		var apiErr models.ErrorResponse
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Detail != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Detail)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ParseLabels splits a comma-separated --labels value, dropping blanks.
func ParseLabels(s string) []string {
	var labels []string
	for _, l := range strings.Split(s, ",") {
		if l = strings.TrimSpace(l); l != "" {
			labels = append(labels, l)
		}
	}
	return labels
}

// ValidateServerURL checks that s is an absolute http(s) URL.
func ValidateServerURL(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server URL %q: want http(s)://host[:port]", s)
	}
	return nil
}
