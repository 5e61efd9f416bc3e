package provider

import (
	"bufio"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/dlclark/regexp2"
)

// Tokenizer produces token IDs for transformer text encoders (input_ids, attention_mask, token_type_ids).
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

const (
	clipStartToken = "<|startoftext|>"
	clipEndToken   = "<|endoftext|>"
	endOfWord      = "</w>"

	// Input beyond maxTokens*runesPerToken runes cannot contribute tokens in practice.
	runesPerToken = 32
	// BPE results are cached for short words only, and the cache is reset when full.
	maxCacheEntries  = 4096
	maxCachedWordLen = 64
)

var clipPattern = regexp2.MustCompile(
	`<\|startoftext\|>|<\|endoftext\|>|'s|'t|'re|'ve|'m|'ll|'d|[\p{L}]+|[\p{N}]|[^\s\p{L}\p{N}]+`,
	regexp2.IgnoreCase,
)

// CLIPTokenizer is the byte-level BPE tokenizer used by CLIP text encoders.
type CLIPTokenizer struct {
	encoder   map[string]int64
	bpeRanks  map[[2]string]int
	byteToUni [256]rune
	sot, eot  int64

	mu    sync.Mutex
	cache map[string][]string
}

// LoadCLIPTokenizer reads vocab.json and merges.txt from disk.
func LoadCLIPTokenizer(vocabPath, mergesPath string) (*CLIPTokenizer, error) {
	vf, err := os.Open(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("open vocab: %w", err)
	}
	defer vf.Close()
	mf, err := os.Open(mergesPath)
	if err != nil {
		return nil, fmt.Errorf("open merges: %w", err)
	}
	defer mf.Close()
	return NewCLIPTokenizer(vf, mf)
}

// NewCLIPTokenizer builds a tokenizer from a JSON vocabulary (token -> id) and a merges list.
func NewCLIPTokenizer(vocab, merges io.Reader) (*CLIPTokenizer, error) {
	t := &CLIPTokenizer{
		encoder:  make(map[string]int64),
		bpeRanks: make(map[[2]string]int),
		cache:    make(map[string][]string),
	}
	if err := json.NewDecoder(vocab).Decode(&t.encoder); err != nil {
		return nil, fmt.Errorf("decode vocab: %w", err)
	}

	scanner := bufio.NewScanner(merges)
	rank := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#version") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			continue
		}
		t.bpeRanks[[2]string{parts[0], parts[1]}] = rank
		rank++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read merges: %w", err)
	}

	var ok bool
	if t.sot, ok = t.encoder[clipStartToken]; !ok {
		return nil, fmt.Errorf("vocab missing %s", clipStartToken)
	}
	if t.eot, ok = t.encoder[clipEndToken]; !ok {
		return nil, fmt.Errorf("vocab missing %s", clipEndToken)
	}
	t.byteToUni = bytesToUnicode()
	return t, nil
}

// Tokenize returns exactly maxTokens ids: start token, BPE ids (truncated), end token,
// then end-token padding with attention 0.
func (t *CLIPTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens < 2 {
		maxTokens = 77
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	limit := maxTokens - 2
	ids := t.encode(truncateRunes(text, maxTokens*runesPerToken), limit)

	inputIDs[0] = t.sot
	attentionMask[0] = 1
	pos := 1
	for _, id := range ids {
		inputIDs[pos] = id
		attentionMask[pos] = 1
		pos++
	}
	inputIDs[pos] = t.eot
	attentionMask[pos] = 1
	for pos++; pos < maxTokens; pos++ {
		inputIDs[pos] = t.eot
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// Encode returns the BPE token ids of text without start/end tokens.
func (t *CLIPTokenizer) Encode(text string) []int64 {
	return t.encode(text, -1)
}

// encode stops once limit ids are produced; a negative limit means no limit.
func (t *CLIPTokenizer) encode(text string, limit int) []int64 {
	text = cleanText(text)
	var ids []int64
	m, _ := clipPattern.FindStringMatch(text)
	for m != nil && (limit < 0 || len(ids) < limit) {
		var sb strings.Builder
		for _, b := range []byte(m.String()) {
			sb.WriteRune(t.byteToUni[b])
		}
		for _, piece := range t.bpe(sb.String()) {
			if id, ok := t.encoder[piece]; ok {
				ids = append(ids, id)
			}
		}
		m, _ = clipPattern.FindNextMatch(m)
	}
	if limit >= 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

func (t *CLIPTokenizer) bpe(token string) []string {
	t.mu.Lock()
	if cached, ok := t.cache[token]; ok {
		t.mu.Unlock()
		return cached
	}
	t.mu.Unlock()

	runes := []rune(token)
	word := make([]string, len(runes))
	for i, r := range runes {
		word[i] = string(r)
	}
	if len(word) == 0 {
		return nil
	}
	word[len(word)-1] += endOfWord

	for len(word) > 1 {
		best, bestRank := -1, math.MaxInt
		for i := 0; i < len(word)-1; i++ {
			if r, ok := t.bpeRanks[[2]string{word[i], word[i+1]}]; ok && r < bestRank {
				best, bestRank = i, r
			}
		}
		if best < 0 {
			break
		}
		first, second := word[best], word[best+1]
		merged := make([]string, 0, len(word))
		for i := 0; i < len(word); {
			if i < len(word)-1 && word[i] == first && word[i+1] == second {
				merged = append(merged, first+second)
				i += 2
				continue
			}
			merged = append(merged, word[i])
			i++
		}
		word = merged
	}

	if len(token) <= maxCachedWordLen {
		t.mu.Lock()
		if len(t.cache) >= maxCacheEntries {
			clear(t.cache)
		}
		t.cache[token] = word
		t.mu.Unlock()
	}
	return word
}

// truncateRunes returns the first n runes of s.
func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// cleanText unescapes HTML entities, collapses whitespace and lowercases.
func cleanText(text string) string {
	text = html.UnescapeString(html.UnescapeString(text))
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// bytesToUnicode maps every byte to a printable rune so BPE never sees
// whitespace or control characters.
func bytesToUnicode() [256]rune {
	var table [256]rune
	printable := func(b int) bool {
		return (b >= '!' && b <= '~') || (b >= 0xA1 && b <= 0xAC) || (b >= 0xAE && b <= 0xFF)
	}
	n := 0
	for b := 0; b < 256; b++ {
		if printable(b) {
			table[b] = rune(b)
			continue
		}
		table[b] = rune(256 + n)
		n++
	}
	return table
}
