// Package provider defines the model provider that backs the inference pipeline:
// image/text embedding, image-text scoring and image captioning.
package provider

import (
	"context"
	"errors"

	"github.com/hyperjump/shikaku/internal/imaging"
)

var (
	// ErrCaptionUnavailable is returned by Caption when no caption model is loaded.
	ErrCaptionUnavailable = errors.New("caption model not available")
	// ErrNotLoaded is returned when a provider is used after Close.
	ErrNotLoaded = errors.New("model not loaded")
)

// Provider is the model backend. Embeddings are returned raw (not normalized).
// Implementations must be safe for concurrent use.
type Provider interface {
	EmbedImage(ctx context.Context, img *imaging.Image) ([]float32, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
	// ScoreImageAgainstTexts returns one similarity logit per text, in input order.
	ScoreImageAgainstTexts(ctx context.Context, img *imaging.Image, texts []string) ([]float32, error)
	Caption(ctx context.Context, img *imaging.Image) (string, error)
	Info() Info
	Close() error
}

// Info describes the loaded models.
type Info struct {
	Name            string `json:"name"`
	Device          string `json:"device"`
	EmbeddingModel  string `json:"embedding_model"`
	CaptionModel    string `json:"caption_model"`
	EmbeddingLoaded bool   `json:"embedding_loaded"`
	CaptionLoaded   bool   `json:"caption_loaded"`
	Dimensions      int    `json:"dimensions"`
}
