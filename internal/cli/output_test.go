package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/shikaku/internal/models"
)

func TestParseOutputFormat(t *testing.T) {
	for _, s := range []string{"text", "json"} {
		if _, err := ParseOutputFormat(s); err != nil {
			t.Errorf("ParseOutputFormat(%q): %v", s, err)
		}
	}
	if _, err := ParseOutputFormat("yaml"); err == nil {
		t.Error("expected error for yaml")
	}
}

func TestWriteImageFeatures(t *testing.T) {
	caption := "a dog on a beach"
	resp := &models.ImageFeaturesResponse{Embedding: make([]float32, 12), Caption: &caption}

	var buf bytes.Buffer
	if err := WriteImageFeatures(&buf, resp, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, caption) || !strings.Contains(out, "Dimensions: 12") || !strings.Contains(out, "...") {
		t.Errorf("unexpected text output:\n%s", out)
	}

	buf.Reset()
	resp.Caption = nil
	if err := WriteImageFeatures(&buf, resp, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if string(decoded["caption"]) != "null" {
		t.Errorf("caption = %s, want null", decoded["caption"])
	}
}

func TestWriteClassify(t *testing.T) {
	resp := &models.ClassifyResponse{Predictions: []models.Prediction{
		{Label: "photo", Score: 0.75},
		{Label: "screenshot", Score: 0.25},
	}}
	var buf bytes.Buffer
	if err := WriteClassify(&buf, resp, OutputText); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	if !strings.Contains(lines[0], "photo") || !strings.Contains(lines[0], "75.00%") {
		t.Errorf("first line = %q", lines[0])
	}
}

func TestWriteHealth(t *testing.T) {
	var buf bytes.Buffer
	resp := &models.HealthResponse{Status: "healthy", Device: "cpu", ModelsLoaded: models.ModelsLoaded{CLIP: true}}
	if err := WriteHealth(&buf, resp, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "clip: loaded") || !strings.Contains(buf.String(), "blip: not loaded") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestFormatVector(t *testing.T) {
	tests := []struct {
		v    []float32
		n    int
		want string
	}{
		{nil, 3, "[]"},
		{[]float32{0.5, -0.25}, 3, "[0.5000, -0.2500]"},
		{[]float32{1, 2, 3, 4}, 2, "[1.0000, 2.0000, ...]"},
	}
	for _, tt := range tests {
		if got := FormatVector(tt.v, tt.n); got != tt.want {
			t.Errorf("FormatVector(%v, %d) = %q, want %q", tt.v, tt.n, got, tt.want)
		}
	}
}
