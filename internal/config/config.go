// Package config provides configuration loading and structs for the shikaku server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug    bool           `yaml:"debug"`
	Server   ServerConfig   `yaml:"server"`
	Models   ModelsConfig   `yaml:"models"`
	Classify ClassifyConfig `yaml:"classify"`
	Search   SearchConfig   `yaml:"search"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	// MaxImagePixels and MaxImageAspectRatio bound decoded uploads. Zero disables the check.
	MaxImagePixels      int64   `yaml:"max_image_pixels"`
	MaxImageAspectRatio float64 `yaml:"max_image_aspect_ratio"`
	// MaxConcurrentInference caps in-flight requests on the inference routes. Zero disables the limit.
	MaxConcurrentInference int      `yaml:"max_concurrent_inference"`
	CORSAllowedOrigins     []string `yaml:"cors_allowed_origins"`
}

// ModelsConfig selects the model provider and points it at its model files.
type ModelsConfig struct {
	Provider      string  `yaml:"provider"`
	Device        string  `yaml:"device"`
	EmbeddingName string  `yaml:"embedding_name"`
	CaptionName   string  `yaml:"caption_name"`
	Dimensions    int     `yaml:"dimensions"`
	ImageSize     int     `yaml:"image_size"`
	ContextLength int     `yaml:"context_length"`
	LogitScale    float64 `yaml:"logit_scale"`
	NumThreads    int     `yaml:"num_threads"`

	CLIPVisualPath string `yaml:"clip_visual_path"`
	CLIPTextPath   string `yaml:"clip_text_path"`
	CLIPVocabPath  string `yaml:"clip_vocab_path"`
	CLIPMergesPath string `yaml:"clip_merges_path"`

	CaptionEnabled     *bool  `yaml:"caption_enabled"`
	CaptionEncoderPath string `yaml:"caption_encoder_path"`
	CaptionDecoderPath string `yaml:"caption_decoder_path"`
	CaptionVocabPath   string `yaml:"caption_vocab_path"`
	CaptionImageSize   int    `yaml:"caption_image_size"`
	CaptionMaxLength   int    `yaml:"caption_max_length"`

	RemoteURL     string        `yaml:"remote_url"`
	RemoteTimeout time.Duration `yaml:"remote_timeout"`
}

// CaptionEnabledOrDefault returns whether captioning is enabled; defaults to true when unset.
func (m *ModelsConfig) CaptionEnabledOrDefault() bool {
	if m.CaptionEnabled != nil {
		return *m.CaptionEnabled
	}
	return true
}

// ClassifyConfig holds zero-shot classification settings.
type ClassifyConfig struct {
	DefaultLabels  []string `yaml:"default_labels"`
	PromptTemplate string   `yaml:"prompt_template"`
	MaxLabels      int      `yaml:"max_labels"`
}

// SearchConfig holds limits for the search passthrough endpoints.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	m := &cfg.Models
	for _, p := range []*string{
		&m.CLIPVisualPath, &m.CLIPTextPath, &m.CLIPVocabPath, &m.CLIPMergesPath,
		&m.CaptionEncoderPath, &m.CaptionDecoderPath, &m.CaptionVocabPath,
	} {
		if *p != "" {
			*p = expandPath(*p, configDir)
		}
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that have no sensible default.
func Validate(cfg *Config) error {
	switch cfg.Models.Provider {
	case ProviderONNX, ProviderMock:
	case ProviderRemote:
		if cfg.Models.RemoteURL == "" {
			return fmt.Errorf("models.remote_url is required for the remote provider")
		}
	default:
		return fmt.Errorf("unknown models.provider %q (supported: onnx, remote, mock)", cfg.Models.Provider)
	}
	if !strings.Contains(cfg.Classify.PromptTemplate, LabelPlaceholder) {
		return fmt.Errorf("classify.prompt_template must contain %s", LabelPlaceholder)
	}
	if cfg.Search.DefaultLimit > cfg.Search.MaxLimit {
		return fmt.Errorf("search.default_limit (%d) exceeds search.max_limit (%d)",
			cfg.Search.DefaultLimit, cfg.Search.MaxLimit)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
