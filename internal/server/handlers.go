package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/shikaku/internal/imaging"
	"github.com/hyperjump/shikaku/internal/models"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := s.pipeline.Info()
	s.respondJSON(w, http.StatusOK, models.StatusResponse{
		Service: ServiceName,
		Version: s.version,
		Status:  "running",
		Device:  info.Device,
		Models:  models.ModelNames{CLIP: info.EmbeddingModel, BLIP: info.CaptionModel},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := s.pipeline.Info()
	s.respondJSON(w, http.StatusOK, models.HealthResponse{
		Status:       "healthy",
		Device:       info.Device,
		ModelsLoaded: models.ModelsLoaded{CLIP: info.EmbeddingLoaded, BLIP: info.CaptionLoaded},
	})
}

func (s *Server) handleImageFeatures(w http.ResponseWriter, r *http.Request) {
	log := s.requestLogger(r)
	img, ok := s.readImage(w, r)
	if !ok {
		return
	}
	log.Debug("image features request", zap.Int("width", img.Width), zap.Int("height", img.Height))

	emb, caption, err := s.pipeline.EmbedAndCaption(r.Context(), img)
	if err != nil {
		log.Error("image features failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "Error processing image: "+err.Error())
		return
	}
	log.Debug("image features generated", zap.Int("dimensions", len(emb)), zap.Bool("caption", caption != nil))
	s.respondJSON(w, http.StatusOK, models.ImageFeaturesResponse{Embedding: emb, Caption: caption})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	log := s.requestLogger(r)
	img, ok := s.readImage(w, r)
	if !ok {
		return
	}
	labels, err := parseLabels(r.FormValue("labels"), s.config.Classify.MaxLabels)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(labels) == 0 {
		labels = s.pipeline.DefaultLabels()
	}
	log.Debug("classify request", zap.Strings("labels", labels))

	preds, err := s.pipeline.Classify(r.Context(), img, labels)
	if err != nil {
		log.Error("classification failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "Error classifying image: "+err.Error())
		return
	}
	log.Debug("classification complete", zap.String("top", preds[0].Label), zap.Float64("score", preds[0].Score))
	s.respondJSON(w, http.StatusOK, models.ClassifyResponse{Predictions: preds})
}

func (s *Server) handleTextEmbedding(w http.ResponseWriter, r *http.Request) {
	log := s.requestLogger(r)
	var q models.TextQuery
	if !s.decodeJSON(w, r, &q) {
		return
	}
	if err := q.Validate(s.limits); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	log.Debug("text embedding request", zap.String("query", q.Query))
	emb, err := s.pipeline.EmbedText(r.Context(), q.Query)
	if err != nil {
		log.Error("text embedding failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "Error generating text embedding: "+err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, models.TextEmbeddingResponse{Embedding: emb, Query: q.Query})
}

func (s *Server) handleSearchByText(w http.ResponseWriter, r *http.Request) {
	log := s.requestLogger(r)
	var q models.TextQuery
	if !s.decodeJSON(w, r, &q) {
		return
	}
	if err := q.Validate(s.limits); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	log.Debug("search by text request", zap.String("query", q.Query), zap.Int("limit", q.Limit))
	emb, err := s.pipeline.EmbedText(r.Context(), q.Query)
	if err != nil {
		log.Error("text search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "Error in text search: "+err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, models.SearchByTextResponse{
		Query:     q.Query,
		Embedding: emb,
		Limit:     q.Limit,
		Message:   models.SearchMessage,
	})
}

func (s *Server) handleSimilarImages(w http.ResponseWriter, r *http.Request) {
	var req models.SimilarImagesRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(s.limits); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.requestLogger(r).Debug("similar images request", zap.Int("dimensions", len(req.Embedding)), zap.Int("limit", *req.Limit))
	s.respondJSON(w, http.StatusOK, models.SimilarImagesResponse{
		Embedding: req.Embedding,
		Limit:     *req.Limit,
		Message:   models.SearchMessage,
	})
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	var req models.RecommendationsRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(s.limits); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.requestLogger(r).Debug("recommendations request", zap.String("user_id", req.UserID), zap.Int("limit", *req.Limit))
	s.respondJSON(w, http.StatusOK, models.RecommendationsResponse{
		UserID:  req.UserID,
		Limit:   *req.Limit,
		Message: models.RecommendationsMessage,
	})
}

func (s *Server) handleUserEmbedding(w http.ResponseWriter, r *http.Request) {
	var req models.UserEmbeddingRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	emb, err := s.pipeline.MeanEmbedding(req.Embeddings)
	if err != nil {
		// Every failure here stems from the submitted vectors.
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.requestLogger(r).Debug("user embedding computed", zap.Int("count", len(req.Embeddings)))
	s.respondJSON(w, http.StatusOK, models.UserEmbeddingResponse{Embedding: emb, Count: len(req.Embeddings)})
}

// readImage parses the multipart form, reads the "image" field and decodes it.
// On failure it writes the error response and returns false.
func (s *Server) readImage(w http.ResponseWriter, r *http.Request) (*imaging.Image, bool) {
	maxBytes := s.config.Server.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", maxBytes))
			return nil, false
		}
		s.respondError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return nil, false
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "image file is required")
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read image: "+err.Error())
		return nil, false
	}
	img, err := imaging.DecodeWithLimits(data, s.images)
	if err != nil {
		s.requestLogger(r).Debug("image decode failed", zap.Error(err))
		s.respondError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return img, true
}

// parseLabels decodes a JSON array of label strings. An empty input yields nil
// (the caller substitutes the defaults).
func parseLabels(raw string, maxLabels int) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var labels []string
	if err := json.Unmarshal([]byte(raw), &labels); err != nil {
		return nil, fmt.Errorf("labels must be a JSON array of strings: %w", err)
	}
	if maxLabels > 0 && len(labels) > maxLabels {
		return nil, fmt.Errorf("too many labels: %d (max %d)", len(labels), maxLabels)
	}
	for i, l := range labels {
		labels[i] = strings.TrimSpace(l)
		if labels[i] == "" {
			return nil, fmt.Errorf("label %d is blank", i)
		}
	}
	return labels, nil
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	return s.logger.With(zap.String("request_id", middleware.GetReqID(r.Context())))
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, models.ErrorResponse{Detail: message})
}
