package models

// Passthrough messages returned by the endpoints that leave search to the backend.
const (
	SearchMessage          = "Use this embedding to search in your database with vector similarity"
	RecommendationsMessage = "Recommendation logic should be implemented in the backend based on user activities"
)

// ImageFeaturesResponse is the result of image-features. Caption is null when
// caption generation failed or is disabled.
type ImageFeaturesResponse struct {
	Embedding []float32 `json:"embedding"`
	Caption   *string   `json:"caption"`
}

// Prediction is one label with its softmax probability.
type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// ClassifyResponse lists predictions sorted by descending score.
type ClassifyResponse struct {
	Predictions []Prediction `json:"predictions"`
}

// TextEmbeddingResponse is the result of text-embedding.
type TextEmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
	Query     string    `json:"query"`
}

// SearchByTextResponse is the result of search-by-text. No search is performed.
type SearchByTextResponse struct {
	Query     string    `json:"query"`
	Embedding []float32 `json:"embedding"`
	Limit     int       `json:"limit"`
	Message   string    `json:"message"`
}

// SimilarImagesResponse echoes the request.
type SimilarImagesResponse struct {
	Embedding []float32 `json:"embedding"`
	Limit     int       `json:"limit"`
	Message   string    `json:"message"`
}

// RecommendationsResponse echoes the request.
type RecommendationsResponse struct {
	UserID  string `json:"user_id"`
	Limit   int    `json:"limit"`
	Message string `json:"message"`
}

// UserEmbeddingResponse is the normalized mean of the submitted embeddings.
type UserEmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
	Count     int       `json:"count"`
}

// ModelNames identifies the loaded models.
type ModelNames struct {
	CLIP string `json:"clip"`
	BLIP string `json:"blip"`
}

// ModelsLoaded reports which models are ready.
type ModelsLoaded struct {
	CLIP bool `json:"clip"`
	BLIP bool `json:"blip"`
}

// StatusResponse is returned by GET /.
type StatusResponse struct {
	Service string     `json:"service"`
	Version string     `json:"version"`
	Status  string     `json:"status"`
	Device  string     `json:"device"`
	Models  ModelNames `json:"models"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status       string       `json:"status"`
	Device       string       `json:"device"`
	ModelsLoaded ModelsLoaded `json:"models_loaded"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
