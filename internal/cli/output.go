// Package cli provides CLI output formatting and an HTTP client for the shikaku server.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/shikaku/internal/models"
	"github.com/hyperjump/shikaku/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// embeddingPreview is how many leading components text output shows.
const embeddingPreview = 8

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteImageFeatures writes an image-features result.
func WriteImageFeatures(w io.Writer, resp *models.ImageFeaturesResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	caption := "(none)"
	if resp.Caption != nil {
		caption = *resp.Caption
	}
	fmt.Fprintf(w, "Caption:    %s\n", utils.Truncate(caption, 200))
	fmt.Fprintf(w, "Dimensions: %d\n", len(resp.Embedding))
	fmt.Fprintf(w, "Embedding:  %s\n", FormatVector(resp.Embedding, embeddingPreview))
	return nil
}

// WriteClassify writes predictions, one per line, best first.
func WriteClassify(w io.Writer, resp *models.ClassifyResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	width := 0
	for _, p := range resp.Predictions {
		if len(p.Label) > width {
			width = len(p.Label)
		}
	}
	for i, p := range resp.Predictions {
		bar := strings.Repeat("█", int(p.Score*40+0.5))
		fmt.Fprintf(w, "%2d. %-*s %6.2f%% %s\n", i+1, width, p.Label, p.Score*100, bar)
	}
	return nil
}

// WriteTextEmbedding writes a text-embedding result.
func WriteTextEmbedding(w io.Writer, resp *models.TextEmbeddingResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "Query:      %s\n", resp.Query)
	fmt.Fprintf(w, "Dimensions: %d\n", len(resp.Embedding))
	fmt.Fprintf(w, "Embedding:  %s\n", FormatVector(resp.Embedding, embeddingPreview))
	return nil
}

// WriteHealth writes a health result.
func WriteHealth(w io.Writer, resp *models.HealthResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "Status: %s\n", resp.Status)
	fmt.Fprintf(w, "Device: %s\n", resp.Device)
	fmt.Fprintf(w, "Models:\n  clip: %s\n  blip: %s\n", loaded(resp.ModelsLoaded.CLIP), loaded(resp.ModelsLoaded.BLIP))
	return nil
}

func loaded(ok bool) string {
	if ok {
		return "loaded"
	}
	return "not loaded"
}

// FormatVector renders the first n components of v, with an ellipsis when truncated.
func FormatVector(v []float32, n int) string {
	if len(v) == 0 {
		return "[]"
	}
	shown := v
	if n > 0 && len(v) > n {
		shown = v[:n]
	}
	parts := make([]string, len(shown))
	for i, f := range shown {
		parts[i] = fmt.Sprintf("%.4f", f)
	}
	s := "[" + strings.Join(parts, ", ")
	if len(shown) < len(v) {
		s += ", ..."
	}
	return s + "]"
}
