package provider

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// WordPieceDecoder turns BERT-style token ids back into text.
type WordPieceDecoder struct {
	vocab []string
}

// LoadWordPieceDecoder reads a vocab.txt file (one token per line, id = line number).
func LoadWordPieceDecoder(path string) (*WordPieceDecoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocab: %w", err)
	}
	defer f.Close()
	return NewWordPieceDecoder(f)
}

// NewWordPieceDecoder builds a decoder from a vocab.txt stream.
func NewWordPieceDecoder(r io.Reader) (*WordPieceDecoder, error) {
	d := &WordPieceDecoder{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		d.vocab = append(d.vocab, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read vocab: %w", err)
	}
	if len(d.vocab) == 0 {
		return nil, fmt.Errorf("empty vocab")
	}
	return d, nil
}

// Decode joins tokens, dropping bracketed special tokens and merging "##" continuations.
func (d *WordPieceDecoder) Decode(ids []int64) string {
	var sb strings.Builder
	for _, id := range ids {
		if id < 0 || int(id) >= len(d.vocab) {
			continue
		}
		tok := d.vocab[id]
		if strings.HasPrefix(tok, "[") && strings.HasSuffix(tok, "]") {
			continue
		}
		if rest, ok := strings.CutPrefix(tok, "##"); ok {
			sb.WriteString(rest)
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(tok)
	}
	return cleanupSpacing(sb.String())
}

var spacingFixes = strings.NewReplacer(
	" .", ".", " ,", ",", " !", "!", " ?", "?",
	" ' ", "'", " n't", "n't", " 's", "'s", " 're", "'re",
)

func cleanupSpacing(s string) string {
	return strings.TrimSpace(spacingFixes.Replace(s))
}
