package provider

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/hyperjump/shikaku/internal/imaging"
	"github.com/hyperjump/shikaku/internal/vector"
)

// MockProvider is a deterministic provider for tests and model-less runs. Vectors are
// derived from a hash of the text or pixel data, so identical inputs always produce
// identical outputs.
type MockProvider struct {
	dimensions int
	logitScale float32
	captionErr error
	embedErr   error
	noCaption  bool
	caption    *string
}

// MockOption configures a MockProvider.
type MockOption func(*MockProvider)

// WithCaptionError makes Caption fail with err.
func WithCaptionError(err error) MockOption {
	return func(m *MockProvider) { m.captionErr = err }
}

// WithEmbeddingError makes EmbedImage, EmbedText and ScoreImageAgainstTexts fail with err.
func WithEmbeddingError(err error) MockOption {
	return func(m *MockProvider) { m.embedErr = err }
}

// WithoutCaption reports the caption model as not loaded.
func WithoutCaption() MockOption {
	return func(m *MockProvider) { m.noCaption = true }
}

// WithCaption makes Caption return text for every image.
func WithCaption(text string) MockOption {
	return func(m *MockProvider) { m.caption = &text }
}

// WithLogitScale sets the multiplier applied to cosine similarities.
func WithLogitScale(scale float32) MockOption {
	return func(m *MockProvider) { m.logitScale = scale }
}

// NewMockProvider returns a provider that produces deterministic vectors of the given dimensions.
func NewMockProvider(dimensions int, opts ...MockOption) *MockProvider {
	if dimensions <= 0 {
		dimensions = 512
	}
	m := &MockProvider{dimensions: dimensions, logitScale: 100}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EmbedImage returns a vector derived from the image's pixels and size.
func (m *MockProvider) EmbedImage(ctx context.Context, img *imaging.Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%dx%d:", img.Width, img.Height)
	_, _ = h.Write(img.RGBA.Pix)
	return m.vectorFor(int(h.Sum64() % 1000003)), nil
}

// EmbedText returns a vector derived from the text hash.
func (m *MockProvider) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	return m.vectorFor(HashString(text) % 1000003), nil
}

// ScoreImageAgainstTexts returns logitScale * cosine(image, text) per text.
func (m *MockProvider) ScoreImageAgainstTexts(ctx context.Context, img *imaging.Image, texts []string) ([]float32, error) {
	imgVec, err := m.EmbedImage(ctx, img)
	if err != nil {
		return nil, err
	}
	logits := make([]float32, len(texts))
	for i, text := range texts {
		textVec, err := m.EmbedText(ctx, text)
		if err != nil {
			return nil, err
		}
		logits[i] = m.logitScale * float32(vector.CosineSimilarity(imgVec, textVec))
	}
	return logits, nil
}

// Caption returns a description of the image size, the configured caption or the configured error.
func (m *MockProvider) Caption(ctx context.Context, img *imaging.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.noCaption {
		return "", ErrCaptionUnavailable
	}
	if m.captionErr != nil {
		return "", m.captionErr
	}
	if m.caption != nil {
		return *m.caption, nil
	}
	return fmt.Sprintf("an image of %d by %d pixels", img.Width, img.Height), nil
}

// Info reports both models as loaded (unless WithoutCaption was given).
func (m *MockProvider) Info() Info {
	return Info{
		Name:            "mock",
		Device:          "cpu",
		EmbeddingModel:  "mock-clip",
		CaptionModel:    "mock-caption",
		EmbeddingLoaded: true,
		CaptionLoaded:   !m.noCaption,
		Dimensions:      m.dimensions,
	}
}

// Close is a no-op for MockProvider.
func (m *MockProvider) Close() error {
	return nil
}

func (m *MockProvider) vectorFor(h int) []float32 {
	emb := make([]float32, m.dimensions)
	for i := range emb {
		emb[i] = float32(math.Sin(float64(h*(i+1)))*0.1 + 0.01)
	}
	return emb
}

// HashString returns a deterministic non-negative hash of s.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}
