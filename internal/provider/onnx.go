//go:build cgo
// +build cgo

package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/hyperjump/shikaku/internal/config"
	"github.com/hyperjump/shikaku/internal/imaging"
	"github.com/hyperjump/shikaku/internal/vector"
)

// BLIP text decoder constants (bert-base-uncased vocabulary plus [DEC] and [ENC]).
const (
	blipBOSTokenID   = 30522
	blipSEPTokenID   = 102
	blipVocabSize    = 30524
	blipHiddenSize   = 768
	blipPatchSize    = 16
	defaultCaptionSz = 384
)

var (
	runtimeInitOnce sync.Once
	runtimeInitErr  error
)

func initRuntime() error {
	runtimeInitOnce.Do(func() {
		runtimeInitErr = ort.InitializeEnvironment()
	})
	return runtimeInitErr
}

// ONNXProvider runs CLIP (visual + text towers) and optionally BLIP (vision encoder +
// text decoder) with ONNX Runtime. It requires CGO and the onnxruntime shared library.
type ONNXProvider struct {
	cfg    config.ModelsConfig
	logger *zap.Logger
	device string

	visual *ort.DynamicAdvancedSession
	text   *ort.DynamicAdvancedSession

	capEncoder *ort.DynamicAdvancedSession
	capDecoder *ort.DynamicAdvancedSession
	capVocab   *WordPieceDecoder

	tokenizer Tokenizer

	mu     sync.RWMutex
	closed bool
}

// NewONNXProvider loads the CLIP sessions and, when enabled, the caption sessions.
// A caption model that fails to load is logged and reported as not loaded; CLIP
// failures are fatal.
func NewONNXProvider(cfg *config.ModelsConfig, logger *zap.Logger) (*ONNXProvider, error) {
	if err := initRuntime(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	p := &ONNXProvider{cfg: *cfg, logger: logger, device: "cpu"}

	opts, device, err := newSessionOptions(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer opts.Destroy()
	p.device = device

	p.visual, err = ort.NewDynamicAdvancedSession(cfg.CLIPVisualPath,
		[]string{"pixel_values"}, []string{"image_embeds"}, opts)
	if err != nil {
		return nil, fmt.Errorf("load clip visual model %s: %w", cfg.CLIPVisualPath, err)
	}
	p.text, err = ort.NewDynamicAdvancedSession(cfg.CLIPTextPath,
		[]string{"input_ids", "attention_mask"}, []string{"text_embeds"}, opts)
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("load clip text model %s: %w", cfg.CLIPTextPath, err)
	}
	p.tokenizer, err = LoadCLIPTokenizer(cfg.CLIPVocabPath, cfg.CLIPMergesPath)
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("load clip tokenizer: %w", err)
	}
	logger.Info("clip model loaded",
		zap.String("model", cfg.EmbeddingName),
		zap.String("device", p.device),
		zap.Int("dimensions", cfg.Dimensions))

	if cfg.CaptionEnabledOrDefault() {
		if err := p.loadCaption(opts); err != nil {
			logger.Warn("caption model unavailable", zap.String("model", cfg.CaptionName), zap.Error(err))
		} else {
			logger.Info("caption model loaded", zap.String("model", cfg.CaptionName))
		}
	}
	return p, nil
}

func newSessionOptions(cfg *config.ModelsConfig, logger *zap.Logger) (*ort.SessionOptions, string, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, "", fmt.Errorf("session options: %w", err)
	}
	if cfg.NumThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			opts.Destroy()
			return nil, "", fmt.Errorf("set threads: %w", err)
		}
	}
	device := "cpu"
	if cfg.Device == "cuda" || cfg.Device == "gpu" {
		cudaOpts, err := ort.NewCUDAProviderOptions()
		if err == nil {
			err = opts.AppendExecutionProviderCUDA(cudaOpts)
			cudaOpts.Destroy()
		}
		if err != nil {
			logger.Warn("cuda unavailable, falling back to cpu", zap.Error(err))
		} else {
			device = "cuda"
		}
	}
	return opts, device, nil
}

func (p *ONNXProvider) loadCaption(opts *ort.SessionOptions) error {
	enc, err := ort.NewDynamicAdvancedSession(p.cfg.CaptionEncoderPath,
		[]string{"pixel_values"}, []string{"last_hidden_state"}, opts)
	if err != nil {
		return fmt.Errorf("load encoder %s: %w", p.cfg.CaptionEncoderPath, err)
	}
	dec, err := ort.NewDynamicAdvancedSession(p.cfg.CaptionDecoderPath,
		[]string{"input_ids", "encoder_hidden_states"}, []string{"logits"}, opts)
	if err != nil {
		_ = enc.Destroy()
		return fmt.Errorf("load decoder %s: %w", p.cfg.CaptionDecoderPath, err)
	}
	vocab, err := LoadWordPieceDecoder(p.cfg.CaptionVocabPath)
	if err != nil {
		_ = enc.Destroy()
		_ = dec.Destroy()
		return err
	}
	p.capEncoder, p.capDecoder, p.capVocab = enc, dec, vocab
	return nil
}

// EmbedImage runs the CLIP visual tower and returns the raw (unnormalized) image embedding.
func (p *ONNXProvider) EmbedImage(ctx context.Context, img *imaging.Image) ([]float32, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrNotLoaded
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	size := int64(p.cfg.ImageSize)
	pixels := imaging.Preprocess(img, p.cfg.ImageSize, imaging.ClipMean, imaging.ClipStd)
	input, err := ort.NewTensor(ort.NewShape(1, 3, size, size), pixels)
	if err != nil {
		return nil, fmt.Errorf("pixel tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(p.cfg.Dimensions)))
	if err != nil {
		return nil, fmt.Errorf("output tensor: %w", err)
	}
	defer output.Destroy()

	if err := p.visual.Run([]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output}); err != nil {
		return nil, fmt.Errorf("image inference failed: %w", err)
	}
	emb := make([]float32, p.cfg.Dimensions)
	copy(emb, output.GetData())
	return emb, nil
}

// EmbedText tokenizes text and runs the CLIP text tower.
func (p *ONNXProvider) EmbedText(ctx context.Context, text string) ([]float32, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrNotLoaded
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctxLen := p.cfg.ContextLength
	ids, mask, _ := p.tokenizer.Tokenize(text, ctxLen)
	shape := ort.NewShape(1, int64(ctxLen))
	idsTensor, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(p.cfg.Dimensions)))
	if err != nil {
		return nil, fmt.Errorf("output tensor: %w", err)
	}
	defer output.Destroy()

	if err := p.text.Run([]ort.ArbitraryTensor{idsTensor, maskTensor}, []ort.ArbitraryTensor{output}); err != nil {
		return nil, fmt.Errorf("text inference failed: %w", err)
	}
	emb := make([]float32, p.cfg.Dimensions)
	copy(emb, output.GetData())
	return emb, nil
}

// ScoreImageAgainstTexts returns CLIP logits per text: logit_scale * cosine(image, text).
func (p *ONNXProvider) ScoreImageAgainstTexts(ctx context.Context, img *imaging.Image, texts []string) ([]float32, error) {
	imgEmb, err := p.EmbedImage(ctx, img)
	if err != nil {
		return nil, err
	}
	scale := float32(p.cfg.LogitScale)
	logits := make([]float32, len(texts))
	for i, text := range texts {
		textEmb, err := p.EmbedText(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		logits[i] = scale * float32(vector.CosineSimilarity(imgEmb, textEmb))
	}
	return logits, nil
}

// Caption generates a caption by greedy decoding until [SEP] or the configured max length.
func (p *ONNXProvider) Caption(ctx context.Context, img *imaging.Image) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return "", ErrNotLoaded
	}
	if p.capEncoder == nil {
		return "", ErrCaptionUnavailable
	}

	size := p.cfg.CaptionImageSize
	if size <= 0 {
		size = defaultCaptionSz
	}
	pixels := imaging.PreprocessSquare(img, size, imaging.BlipMean, imaging.BlipStd)
	input, err := ort.NewTensor(ort.NewShape(1, 3, int64(size), int64(size)), pixels)
	if err != nil {
		return "", fmt.Errorf("pixel tensor: %w", err)
	}
	defer input.Destroy()

	seqLen := int64((size/blipPatchSize)*(size/blipPatchSize) + 1)
	hidden, err := ort.NewEmptyTensor[float32](ort.NewShape(1, seqLen, blipHiddenSize))
	if err != nil {
		return "", fmt.Errorf("hidden tensor: %w", err)
	}
	defer hidden.Destroy()
	if err := p.capEncoder.Run([]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{hidden}); err != nil {
		return "", fmt.Errorf("caption encoder failed: %w", err)
	}

	tokens, err := greedyDecode(ctx, blipBOSTokenID, blipSEPTokenID, p.cfg.CaptionMaxLength,
		func(prefix []int64) (int64, error) { return p.decodeStep(prefix, hidden) })
	if err != nil {
		return "", err
	}
	caption := p.capVocab.Decode(tokens)
	if caption == "" {
		return "", errors.New("caption decoder produced no tokens")
	}
	return caption, nil
}

// decodeStep runs the decoder over the current prefix and returns the argmax of the last position.
func (p *ONNXProvider) decodeStep(tokens []int64, hidden *ort.Tensor[float32]) (int64, error) {
	n := int64(len(tokens))
	ids, err := ort.NewTensor(ort.NewShape(1, n), tokens)
	if err != nil {
		return 0, fmt.Errorf("decoder input tensor: %w", err)
	}
	defer ids.Destroy()
	logits, err := ort.NewEmptyTensor[float32](ort.NewShape(1, n, blipVocabSize))
	if err != nil {
		return 0, fmt.Errorf("logits tensor: %w", err)
	}
	defer logits.Destroy()

	if err := p.capDecoder.Run([]ort.ArbitraryTensor{ids, hidden}, []ort.ArbitraryTensor{logits}); err != nil {
		return 0, fmt.Errorf("caption decoder failed: %w", err)
	}
	last := logits.GetData()[(n-1)*blipVocabSize:]
	best := 0
	for i := 1; i < blipVocabSize; i++ {
		if last[i] > last[best] {
			best = i
		}
	}
	return int64(best), nil
}

// Info reports the loaded models and execution device.
func (p *ONNXProvider) Info() Info {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Info{
		Name:            config.ProviderONNX,
		Device:          p.device,
		EmbeddingModel:  p.cfg.EmbeddingName,
		CaptionModel:    p.cfg.CaptionName,
		EmbeddingLoaded: !p.closed && p.visual != nil && p.text != nil,
		CaptionLoaded:   !p.closed && p.capEncoder != nil,
		Dimensions:      p.cfg.Dimensions,
	}
}

// Close destroys all sessions.
func (p *ONNXProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	var errs []error
	for _, s := range []**ort.DynamicAdvancedSession{&p.visual, &p.text, &p.capEncoder, &p.capDecoder} {
		if *s != nil {
			errs = append(errs, (*s).Destroy())
			*s = nil
		}
	}
	return errors.Join(errs...)
}
