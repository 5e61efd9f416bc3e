package config

import "time"

// Provider names accepted in models.provider.
const (
	ProviderONNX   = "onnx"
	ProviderRemote = "remote"
	ProviderMock   = "mock"
)

// LabelPlaceholder is replaced by the label in classify.prompt_template.
const LabelPlaceholder = "{label}"

// DefaultLabels is the label set used when a classify request names none.
var DefaultLabels = []string{"photo", "drawing", "painting", "screenshot", "diagram"}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 10 << 20
	}
	if cfg.Server.MaxImagePixels == 0 {
		cfg.Server.MaxImagePixels = 50_000_000
	}
	if cfg.Server.MaxImageAspectRatio == 0 {
		cfg.Server.MaxImageAspectRatio = 50
	}
	if cfg.Server.CORSAllowedOrigins == nil {
		cfg.Server.CORSAllowedOrigins = []string{"*"}
	}

	m := &cfg.Models
	if m.Provider == "" {
		m.Provider = ProviderONNX
	}
	if m.Device == "" {
		m.Device = "cpu"
	}
	if m.EmbeddingName == "" {
		m.EmbeddingName = "openai/clip-vit-base-patch32"
	}
	if m.CaptionName == "" {
		m.CaptionName = "Salesforce/blip-image-captioning-base"
	}
	if m.Dimensions == 0 {
		m.Dimensions = 512
	}
	if m.ImageSize == 0 {
		m.ImageSize = 224
	}
	if m.ContextLength == 0 {
		m.ContextLength = 77
	}
	if m.LogitScale == 0 {
		m.LogitScale = 100
	}
	if m.CLIPVisualPath == "" {
		m.CLIPVisualPath = "/usr/local/var/shikaku/models/clip/visual.onnx"
	}
	if m.CLIPTextPath == "" {
		m.CLIPTextPath = "/usr/local/var/shikaku/models/clip/text.onnx"
	}
	if m.CLIPVocabPath == "" {
		m.CLIPVocabPath = "/usr/local/var/shikaku/models/clip/vocab.json"
	}
	if m.CLIPMergesPath == "" {
		m.CLIPMergesPath = "/usr/local/var/shikaku/models/clip/merges.txt"
	}
	if m.CaptionEncoderPath == "" {
		m.CaptionEncoderPath = "/usr/local/var/shikaku/models/blip/vision.onnx"
	}
	if m.CaptionDecoderPath == "" {
		m.CaptionDecoderPath = "/usr/local/var/shikaku/models/blip/decoder.onnx"
	}
	if m.CaptionVocabPath == "" {
		m.CaptionVocabPath = "/usr/local/var/shikaku/models/blip/vocab.txt"
	}
	if m.CaptionImageSize == 0 {
		m.CaptionImageSize = 384
	}
	if m.CaptionMaxLength == 0 {
		m.CaptionMaxLength = 50
	}
	if m.RemoteTimeout == 0 {
		m.RemoteTimeout = 30 * time.Second
	}

	if len(cfg.Classify.DefaultLabels) == 0 {
		cfg.Classify.DefaultLabels = append([]string(nil), DefaultLabels...)
	}
	if cfg.Classify.PromptTemplate == "" {
		cfg.Classify.PromptTemplate = "a photo of " + LabelPlaceholder
	}
	if cfg.Classify.MaxLabels == 0 {
		cfg.Classify.MaxLabels = 64
	}

	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 20
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
}
