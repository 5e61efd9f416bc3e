package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image/color"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/shikaku/internal/config"
	"github.com/hyperjump/shikaku/internal/imaging"
)

func newModelServer(t *testing.T, captionStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"device": "cuda", "embedding_loaded": true, "caption_loaded": true})
	})
	mux.HandleFunc("/embed/text", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{float32(len(req["text"])), 0}})
	})
	mux.HandleFunc("/embed/image", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		data, err := base64.StdEncoding.DecodeString(req["image"])
		if err != nil || imaging.DetectFormat(data) != imaging.FormatPNG {
			http.Error(w, "bad image", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{1, 2, 3}})
	})
	mux.HandleFunc("/score", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Texts []string `json:"texts"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		logits := make([]float32, len(req.Texts))
		for i := range logits {
			logits[i] = float32(i)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"logits": logits})
	})
	mux.HandleFunc("/caption", func(w http.ResponseWriter, r *http.Request) {
		if captionStatus != http.StatusOK {
			http.Error(w, "no caption model", captionStatus)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"caption": "a red square"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func remoteConfig(url string) *config.ModelsConfig {
	return &config.ModelsConfig{
		Provider:      config.ProviderRemote,
		RemoteURL:     url + "/",
		RemoteTimeout: 5 * time.Second,
		Dimensions:    3,
	}
}

func TestRemoteProvider_RoundTrip(t *testing.T) {
	srv := newModelServer(t, http.StatusOK)
	ctx := context.Background()
	p := NewRemoteProvider(ctx, remoteConfig(srv.URL), zap.NewNop())

	info := p.Info()
	if !info.EmbeddingLoaded || !info.CaptionLoaded || info.Device != "cuda" {
		t.Errorf("info = %+v", info)
	}

	img := testImage(2, 2, color.RGBA{R: 255, A: 255})
	emb, err := p.EmbedImage(ctx, img)
	if err != nil {
		t.Fatal(err)
	}
	if len(emb) != 3 {
		t.Errorf("image embedding = %v", emb)
	}

	text, err := p.EmbedText(ctx, "abcd")
	if err != nil {
		t.Fatal(err)
	}
	if text[0] != 4 {
		t.Errorf("text embedding = %v", text)
	}

	logits, err := p.ScoreImageAgainstTexts(ctx, img, []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(logits) != 2 || logits[1] != 1 {
		t.Errorf("logits = %v", logits)
	}

	caption, err := p.Caption(ctx, img)
	if err != nil || caption != "a red square" {
		t.Errorf("caption = %q, err = %v", caption, err)
	}
}

func TestRemoteProvider_CaptionUnavailable(t *testing.T) {
	srv := newModelServer(t, http.StatusServiceUnavailable)
	p := NewRemoteProvider(context.Background(), remoteConfig(srv.URL), zap.NewNop())
	_, err := p.Caption(context.Background(), testImage(1, 1, color.RGBA{A: 255}))
	if !errors.Is(err, ErrCaptionUnavailable) {
		t.Errorf("err = %v, want ErrCaptionUnavailable", err)
	}
}

func TestRemoteProvider_Unreachable(t *testing.T) {
	srv := newModelServer(t, http.StatusOK)
	url := srv.URL
	srv.Close()

	p := NewRemoteProvider(context.Background(), remoteConfig(url), zap.NewNop())
	if p.Info().EmbeddingLoaded {
		t.Error("unreachable server should report embedding not loaded")
	}
	if _, err := p.EmbedText(context.Background(), "x"); err == nil {
		t.Error("expected error from unreachable server")
	}
}
