package cli

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/shikaku/internal/config"
	"github.com/hyperjump/shikaku/internal/inference"
	"github.com/hyperjump/shikaku/internal/provider"
	"github.com/hyperjump/shikaku/internal/server"
)

func startServer(t *testing.T) *Client {
	t.Helper()
	cfg := &config.Config{}
	cfg.Models.Provider = config.ProviderMock
	config.ApplyDefaults(cfg)
	pipeline := inference.NewPipeline(provider.NewMockProvider(16), &cfg.Classify, zap.NewNop())
	ts := httptest.NewServer(server.NewServer(pipeline, cfg, "test", zap.NewNop()).Handler())
	t.Cleanup(ts.Close)
	return NewClient(ts.URL+"/", 5*time.Second)
}

func writeImage(t *testing.T, name string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 6, 6))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestClient_ImageFeaturesAndClassify(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()
	path := writeImage(t, "img.png")

	feat, err := c.ImageFeatures(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if len(feat.Embedding) != 16 || feat.Caption == nil {
		t.Errorf("features = %+v", feat)
	}

	cls, err := c.Classify(ctx, path, []string{"cat", "dog"})
	if err != nil {
		t.Fatal(err)
	}
	if len(cls.Predictions) != 2 {
		t.Errorf("predictions = %+v", cls.Predictions)
	}

	cls, err = c.Classify(ctx, path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(cls.Predictions) != len(config.DefaultLabels) {
		t.Errorf("expected default labels, got %d predictions", len(cls.Predictions))
	}
}

func TestClient_TextEmbeddingAndHealth(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()

	emb, err := c.TextEmbedding(ctx, "mountain lake")
	if err != nil {
		t.Fatal(err)
	}
	if emb.Query != "mountain lake" || len(emb.Embedding) != 16 {
		t.Errorf("embedding = %+v", emb)
	}

	h, err := c.Health(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if h.Status != "healthy" || !h.ModelsLoaded.CLIP {
		t.Errorf("health = %+v", h)
	}
}

func TestClient_ServerErrorDetail(t *testing.T) {
	c := startServer(t)
	bad := filepath.Join(t.TempDir(), "bad.png")
	if err := os.WriteFile(bad, []byte("not an image"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := c.ImageFeatures(context.Background(), bad)
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Errorf("err = %v, want 400 error", err)
	}

	_, err = c.TextEmbedding(context.Background(), "")
	if err == nil || !strings.Contains(err.Error(), "query cannot be empty") {
		t.Errorf("err = %v", err)
	}

	if _, err := c.ImageFeatures(context.Background(), filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseLabels(t *testing.T) {
	got := ParseLabels(" cat, dog ,,bird ")
	if !reflect.DeepEqual(got, []string{"cat", "dog", "bird"}) {
		t.Errorf("ParseLabels = %v", got)
	}
	if ParseLabels("") != nil {
		t.Error("empty input should give nil")
	}
}

func TestValidateServerURL(t *testing.T) {
	for _, ok := range []string{"http://localhost:8000", "https://ai.example.com"} {
		if err := ValidateServerURL(ok); err != nil {
			t.Errorf("%s: %v", ok, err)
		}
	}
	for _, bad := range []string{"localhost:8000", "ftp://x", "http://"} {
		if err := ValidateServerURL(bad); err == nil {
			t.Errorf("%s: expected error", bad)
		}
	}
}
