//go:build !cgo
// +build !cgo

package provider

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/hyperjump/shikaku/internal/config"
	"github.com/hyperjump/shikaku/internal/imaging"
)

// ErrCGORequired is returned by NewONNXProvider in builds without CGO.
var ErrCGORequired = errors.New("ONNX provider requires CGO; build with CGO_ENABLED=1 and onnxruntime")

// ONNXProvider stub type when built without CGO (see onnx.go for the real implementation).
type ONNXProvider struct{}

// NewONNXProvider returns ErrCGORequired when built without CGO.
func NewONNXProvider(_ *config.ModelsConfig, _ *zap.Logger) (*ONNXProvider, error) {
	return nil, ErrCGORequired
}

func (p *ONNXProvider) EmbedImage(context.Context, *imaging.Image) ([]float32, error) {
	return nil, ErrCGORequired
}

func (p *ONNXProvider) EmbedText(context.Context, string) ([]float32, error) {
	return nil, ErrCGORequired
}

func (p *ONNXProvider) ScoreImageAgainstTexts(context.Context, *imaging.Image, []string) ([]float32, error) {
	return nil, ErrCGORequired
}

func (p *ONNXProvider) Caption(context.Context, *imaging.Image) (string, error) {
	return "", ErrCGORequired
}

func (p *ONNXProvider) Info() Info {
	return Info{Name: config.ProviderONNX, Device: "cpu"}
}

func (p *ONNXProvider) Close() error {
	return nil
}
