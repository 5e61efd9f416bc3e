package inference

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/shikaku/internal/config"
	"github.com/hyperjump/shikaku/internal/imaging"
	"github.com/hyperjump/shikaku/internal/models"
	"github.com/hyperjump/shikaku/internal/provider"
	"github.com/hyperjump/shikaku/internal/vector"
)

// ErrNoLabels is returned by Classify when called without candidate labels.
var ErrNoLabels = errors.New("at least one label is required")

// Pipeline runs the embedding, captioning and classification operations against a provider.
// It holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	provider      provider.Provider
	logger        *zap.Logger
	template      string
	defaultLabels []string
}

// NewPipeline creates a pipeline. cfg supplies the prompt template and default labels.
func NewPipeline(p provider.Provider, cfg *config.ClassifyConfig, logger *zap.Logger) *Pipeline {
	template := cfg.PromptTemplate
	if template == "" {
		template = "a photo of " + config.LabelPlaceholder
	}
	labels := cfg.DefaultLabels
	if len(labels) == 0 {
		labels = config.DefaultLabels
	}
	return &Pipeline{
		provider:      p,
		logger:        logger,
		template:      template,
		defaultLabels: append([]string(nil), labels...),
	}
}

// DefaultLabels returns a copy of the labels used when a request supplies none.
func (p *Pipeline) DefaultLabels() []string {
	return append([]string(nil), p.defaultLabels...)
}

// Prompt wraps label in the prompt template.
func (p *Pipeline) Prompt(label string) string {
	return strings.ReplaceAll(p.template, config.LabelPlaceholder, label)
}

// Classify scores img against each label's prompt and returns one prediction per
// label, sorted by descending probability. Equal scores keep the input order.
func (p *Pipeline) Classify(ctx context.Context, img *imaging.Image, labels []string) ([]models.Prediction, error) {
	if len(labels) == 0 {
		return nil, ErrNoLabels
	}
	prompts := make([]string, len(labels))
	for i, l := range labels {
		prompts[i] = p.Prompt(l)
	}

	logits, err := p.provider.ScoreImageAgainstTexts(ctx, img, prompts)
	if err != nil {
		return nil, fmt.Errorf("score image: %w", err)
	}
	if len(logits) != len(labels) {
		return nil, fmt.Errorf("provider returned %d scores for %d labels", len(logits), len(labels))
	}

	probs := Softmax(logits)
	predictions := make([]models.Prediction, len(labels))
	for i, l := range labels {
		predictions[i] = models.Prediction{Label: l, Score: probs[i]}
	}
	sort.SliceStable(predictions, func(i, j int) bool {
		return predictions[i].Score > predictions[j].Score
	})
	return predictions, nil
}

// EmbedImage returns the normalized image embedding.
func (p *Pipeline) EmbedImage(ctx context.Context, img *imaging.Image) ([]float32, error) {
	raw, err := p.provider.EmbedImage(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("embed image: %w", err)
	}
	emb, err := NormalizeEmbedding(raw)
	if err != nil {
		return nil, fmt.Errorf("normalize image embedding: %w", err)
	}
	return emb, nil
}

// EmbedAndCaption computes the image embedding and caption concurrently. An
// embedding failure is returned; a caption failure is logged and yields a nil caption.
func (p *Pipeline) EmbedAndCaption(ctx context.Context, img *imaging.Image) ([]float32, *string, error) {
	var (
		emb     []float32
		caption *string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		emb, err = p.EmbedImage(gctx, img)
		return err
	})
	g.Go(func() error {
		text, err := p.provider.Caption(gctx, img)
		switch {
		case errors.Is(err, provider.ErrCaptionUnavailable):
			p.logger.Debug("caption skipped", zap.Error(err))
		case err != nil:
			p.logger.Warn("caption generation failed", zap.Error(err))
		case strings.TrimSpace(text) == "":
			p.logger.Warn("caption generation returned empty text")
		default:
			caption = &text
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return emb, caption, nil
}

// EmbedText returns the normalized text embedding, comparable to image embeddings
// by inner product.
func (p *Pipeline) EmbedText(ctx context.Context, text string) ([]float32, error) {
	raw, err := p.provider.EmbedText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	emb, err := NormalizeEmbedding(raw)
	if err != nil {
		return nil, fmt.Errorf("normalize text embedding: %w", err)
	}
	return emb, nil
}

// MeanEmbedding averages vectors element-wise and normalizes the result, e.g. to
// build a user profile from the embeddings of liked items.
func (p *Pipeline) MeanEmbedding(vectors [][]float32) ([]float32, error) {
	mean, err := vector.Mean(vectors)
	if err != nil {
		return nil, fmt.Errorf("mean embedding: %w", err)
	}
	emb, err := NormalizeEmbedding(mean)
	if err != nil {
		return nil, fmt.Errorf("normalize mean embedding: %w", err)
	}
	return emb, nil
}

// Info describes the provider backing this pipeline.
func (p *Pipeline) Info() provider.Info {
	return p.provider.Info()
}
