package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"finstack-backend/internal/auth"
	"finstack-backend/internal/models"
	"finstack-backend/internal/services"
	"finstack-backend/pkg/httputil"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

const maxUploadSize = 20 << 20

// KnowledgeService defines the knowledge base operations exposed to admins.
type KnowledgeService interface {
	Search(ctx context.Context, query string, opts services.SearchOptions) ([]models.ScoredChunk, error)
	IngestFile(ctx context.Context, content []byte, meta services.DocumentMeta) (*models.IngestResponse, error)
	DeleteByFilename(ctx context.Context, filename string) (int64, error)
	Stats(ctx context.Context) (*models.KnowledgeStats, error)
}

type KBHandler struct {
	kbService KnowledgeService
}

func NewKBHandler(kbSvc KnowledgeService) *KBHandler {
	return &KBHandler{
		kbService: kbSvc,
	}
}

func (h *KBHandler) respondServiceError(w http.ResponseWriter, op string, err error) {
	log.Printf("ERROR [KBHandler] %s: %v", op, err)
	switch {
	case errors.Is(err, services.ErrKBValidation):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrKBNotFound):
		httputil.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrKnowledgeBaseUnavailable):
		httputil.RespondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		httputil.RespondError(w, http.StatusInternalServerError, "Knowledge base operation failed")
	}
}

// HandleUploadDocument handles POST /admin/knowledge/documents (multipart).
func (h *KBHandler) HandleUploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid multipart upload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Missing file field")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	docType := models.DocType(r.FormValue("doc_type"))
	if docType == "" {
		docType = models.DocTypeDocument
	}
	if !docType.Valid() {
		httputil.RespondError(w, http.StatusBadRequest, "Unknown doc_type")
		return
	}

	confidential := false
	if v := r.FormValue("confidential"); v != "" {
		confidential, err = strconv.ParseBool(v)
		if err != nil {
			httputil.RespondError(w, http.StatusBadRequest, "confidential must be true or false")
			return
		}
	}

	meta := services.DocumentMeta{
		Filename:     filepath.Base(header.Filename),
		DocType:      docType,
		Confidential: confidential,
		AccessLevel:  strings.TrimSpace(r.FormValue("access_level")),
	}
	if operator, ok := auth.GetSubjectFromContext(r.Context()); ok {
		meta.Extra = map[string]any{"uploaded_by": operator}
	}

	resp, err := h.kbService.IngestFile(r.Context(), content, meta)
	if err != nil {
		h.respondServiceError(w, "HandleUploadDocument "+meta.Filename, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, resp)
}

// HandleDeleteDocument handles DELETE /admin/knowledge/documents/{filename}.
func (h *KBHandler) HandleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	n, err := h.kbService.DeleteByFilename(r.Context(), filename)
	if err != nil {
		h.respondServiceError(w, "HandleDeleteDocument "+filename, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, models.DeleteDocumentResponse{Filename: filename, ChunksDeleted: n})
}

// HandleSearch handles GET /admin/knowledge/search?q=&doc_type=&top_k=.
// Admin searches include confidential chunks.
func (h *KBHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	topK := 0
	if v := q.Get("top_k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.RespondError(w, http.StatusBadRequest, "top_k must be a positive integer")
			return
		}
		topK = n
	}

	hits, err := h.kbService.Search(r.Context(), q.Get("q"), services.SearchOptions{
		TopK:                topK,
		DocType:             models.DocType(q.Get("doc_type")),
		IncludeConfidential: true,
	})
	if err != nil {
		h.respondServiceError(w, "HandleSearch", err)
		return
	}

	results := lo.Map(hits, func(c models.ScoredChunk, _ int) models.SearchHit {
		return models.SearchHit{
			ID:           c.ID,
			Content:      c.Content,
			Score:        c.Score,
			DocType:      c.DocType,
			Filename:     c.Filename,
			Confidential: c.Confidential,
			AccessLevel:  c.AccessLevel,
		}
	})
	httputil.RespondJSON(w, http.StatusOK, results)
}

// HandleStats handles GET /admin/knowledge/stats.
func (h *KBHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.kbService.Stats(r.Context())
	if err != nil {
		h.respondServiceError(w, "HandleStats", err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, stats)
}
