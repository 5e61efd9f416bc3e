package inference

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/shikaku/internal/config"
	"github.com/hyperjump/shikaku/internal/imaging"
	"github.com/hyperjump/shikaku/internal/provider"
	"github.com/hyperjump/shikaku/internal/vector"
)

func solidImage(c color.RGBA) *imaging.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return imaging.FromImage(img)
}

func newTestPipeline(p provider.Provider) *Pipeline {
	return NewPipeline(p, &config.ClassifyConfig{PromptTemplate: "a photo of {label}"}, zap.NewNop())
}

// fixedScorer returns preset logits and records the prompts it was given.
type fixedScorer struct {
	*provider.MockProvider
	logits  []float32
	prompts []string
}

func (f *fixedScorer) ScoreImageAgainstTexts(_ context.Context, _ *imaging.Image, texts []string) ([]float32, error) {
	f.prompts = texts
	return f.logits, nil
}

func TestClassify_SolidColorTwoLabels(t *testing.T) {
	p := newTestPipeline(provider.NewMockProvider(64))
	preds, err := p.Classify(context.Background(), solidImage(color.RGBA{R: 255, A: 255}), []string{"photo", "drawing"})
	require.NoError(t, err)
	require.Len(t, preds, 2)

	labels := map[string]bool{preds[0].Label: true, preds[1].Label: true}
	assert.Equal(t, map[string]bool{"photo": true, "drawing": true}, labels)
	assert.InDelta(t, 1.0, preds[0].Score+preds[1].Score, 1e-4)
	assert.GreaterOrEqual(t, preds[0].Score, preds[1].Score)
}

func TestClassify_DistributionAndOrder(t *testing.T) {
	p := newTestPipeline(provider.NewMockProvider(64))
	labels := []string{"cat", "dog", "car", "tree", "boat", "house", "person"}
	preds, err := p.Classify(context.Background(), solidImage(color.RGBA{G: 120, B: 30, A: 255}), labels)
	require.NoError(t, err)
	require.Len(t, preds, len(labels))

	var sum float64
	for i, pr := range preds {
		assert.GreaterOrEqual(t, pr.Score, 0.0)
		assert.LessOrEqual(t, pr.Score, 1.0)
		sum += pr.Score
		if i > 0 {
			assert.LessOrEqual(t, pr.Score, preds[i-1].Score, "not sorted at %d", i)
		}
	}
	assert.InDelta(t, 1.0, sum, 1e-4)
}

func TestClassify_PromptsAndStableTies(t *testing.T) {
	scorer := &fixedScorer{MockProvider: provider.NewMockProvider(8), logits: []float32{1, 5, 1, 5}}
	p := newTestPipeline(scorer)
	preds, err := p.Classify(context.Background(), solidImage(color.RGBA{A: 255}), []string{"a", "b", "c", "d"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a photo of a", "a photo of b", "a photo of c", "a photo of d"}, scorer.prompts)
	got := []string{preds[0].Label, preds[1].Label, preds[2].Label, preds[3].Label}
	assert.Equal(t, []string{"b", "d", "a", "c"}, got)
}

func TestClassify_Errors(t *testing.T) {
	p := newTestPipeline(provider.NewMockProvider(8))
	_, err := p.Classify(context.Background(), solidImage(color.RGBA{A: 255}), nil)
	assert.ErrorIs(t, err, ErrNoLabels)

	short := &fixedScorer{MockProvider: provider.NewMockProvider(8), logits: []float32{1}}
	_, err = newTestPipeline(short).Classify(context.Background(), solidImage(color.RGBA{A: 255}), []string{"a", "b"})
	assert.Error(t, err)

	boom := errors.New("boom")
	failing := newTestPipeline(provider.NewMockProvider(8, provider.WithEmbeddingError(boom)))
	_, err = failing.Classify(context.Background(), solidImage(color.RGBA{A: 255}), []string{"a"})
	assert.ErrorIs(t, err, boom)
}

func TestEmbedAndCaption(t *testing.T) {
	p := newTestPipeline(provider.NewMockProvider(32))
	emb, caption, err := p.EmbedAndCaption(context.Background(), solidImage(color.RGBA{B: 200, A: 255}))
	require.NoError(t, err)
	assert.Len(t, emb, 32)
	assert.InDelta(t, 1.0, vector.L2Norm(emb), 1e-5)
	require.NotNil(t, caption)
	assert.Equal(t, "an image of 8 by 8 pixels", *caption)
}

func TestEmbedAndCaption_CaptionFailureIsAbsent(t *testing.T) {
	for name, opt := range map[string]provider.MockOption{
		"error":    provider.WithCaptionError(errors.New("decoder exploded")),
		"disabled": provider.WithoutCaption(),
		"empty":    provider.WithCaption(""),
		"blank":    provider.WithCaption("  \n "),
	} {
		t.Run(name, func(t *testing.T) {
			p := newTestPipeline(provider.NewMockProvider(16, opt))
			emb, caption, err := p.EmbedAndCaption(context.Background(), solidImage(color.RGBA{A: 255}))
			require.NoError(t, err)
			assert.Nil(t, caption)
			assert.InDelta(t, 1.0, vector.L2Norm(emb), 1e-5)
		})
	}
}

func TestEmbedAndCaption_EmbeddingFailureIsFatal(t *testing.T) {
	boom := errors.New("visual tower failed")
	p := newTestPipeline(provider.NewMockProvider(16, provider.WithEmbeddingError(boom)))
	emb, caption, err := p.EmbedAndCaption(context.Background(), solidImage(color.RGBA{A: 255}))
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, emb)
	assert.Nil(t, caption)
}

func TestEmbedText_Deterministic(t *testing.T) {
	p := newTestPipeline(provider.NewMockProvider(64))
	a, err := p.EmbedText(context.Background(), "a red bicycle")
	require.NoError(t, err)
	b, err := p.EmbedText(context.Background(), "a red bicycle")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, vector.L2Norm(a), 1e-5)
}

func TestMeanEmbedding(t *testing.T) {
	p := newTestPipeline(provider.NewMockProvider(8))
	emb, err := p.MeanEmbedding([][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)
	assert.InDelta(t, 0.7071068, emb[0], 1e-6)
	assert.InDelta(t, 0.7071068, emb[1], 1e-6)

	_, err = p.MeanEmbedding([][]float32{{1, 0}, {-1, 0}})
	assert.ErrorIs(t, err, ErrZeroNorm)

	_, err = p.MeanEmbedding([][]float32{{1, 0}, {1}})
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)
}

func TestDefaultLabels(t *testing.T) {
	p := NewPipeline(provider.NewMockProvider(8), &config.ClassifyConfig{}, zap.NewNop())
	labels := p.DefaultLabels()
	assert.Equal(t, []string{"photo", "drawing", "painting", "screenshot", "diagram"}, labels)
	labels[0] = "mutated"
	assert.Equal(t, "photo", p.DefaultLabels()[0])
	assert.Equal(t, "a photo of cat", p.Prompt("cat"))
}
