package provider

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/shikaku/internal/config"
)

// New returns the provider selected by cfg.Provider.
func New(ctx context.Context, cfg *config.ModelsConfig, logger *zap.Logger) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderONNX, "":
		p, err := NewONNXProvider(cfg, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.ProviderRemote:
		return NewRemoteProvider(ctx, cfg, logger), nil
	case config.ProviderMock:
		var opts []MockOption
		if !cfg.CaptionEnabledOrDefault() {
			opts = append(opts, WithoutCaption())
		}
		if cfg.LogitScale > 0 {
			opts = append(opts, WithLogitScale(float32(cfg.LogitScale)))
		}
		return NewMockProvider(cfg.Dimensions, opts...), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
