// Package models defines request and response payloads for the AI API.
package models

import (
	"fmt"
	"strings"
)

// Limits bounds the result count accepted by the search passthrough endpoints.
type Limits struct {
	Default int
	Max     int
}

// Apply returns limit with defaults and clamping applied: missing or non-positive
// values become Default, values above Max become Max.
func (l Limits) Apply(limit int) int {
	if limit <= 0 {
		limit = l.Default
	}
	if l.Max > 0 && limit > l.Max {
		limit = l.Max
	}
	return limit
}

// TextQuery is the body of text-embedding and search-by-text.
type TextQuery struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// Validate rejects blank queries and normalizes the limit.
func (q *TextQuery) Validate(limits Limits) error {
	if strings.TrimSpace(q.Query) == "" {
		return fmt.Errorf("query cannot be empty")
	}
	q.Limit = limits.Apply(q.Limit)
	return nil
}

// SimilarImagesRequest is the body of similar-images. The endpoint echoes the
// request, so Limit is passed through as sent.
type SimilarImagesRequest struct {
	Embedding []float32 `json:"embedding"`
	Limit     *int      `json:"limit,omitempty"`
}

// Validate rejects an empty embedding and fills a missing limit with the default.
func (r *SimilarImagesRequest) Validate(limits Limits) error {
	if len(r.Embedding) == 0 {
		return fmt.Errorf("embedding cannot be empty")
	}
	r.Limit = echoLimit(r.Limit, limits)
	return nil
}

// RecommendationsRequest is the body of recommendations. Limit is passed through as sent.
type RecommendationsRequest struct {
	UserID string `json:"user_id"`
	Limit  *int   `json:"limit,omitempty"`
}

// Validate rejects a blank user id and fills a missing limit with the default.
func (r *RecommendationsRequest) Validate(limits Limits) error {
	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("user_id cannot be empty")
	}
	r.Limit = echoLimit(r.Limit, limits)
	return nil
}

func echoLimit(limit *int, limits Limits) *int {
	if limit != nil {
		return limit
	}
	d := limits.Default
	return &d
}

// UserEmbeddingRequest carries the embeddings of items a user interacted with.
type UserEmbeddingRequest struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Validate rejects an empty list.
func (r *UserEmbeddingRequest) Validate() error {
	if len(r.Embeddings) == 0 {
		return fmt.Errorf("embeddings cannot be empty")
	}
	return nil
}
