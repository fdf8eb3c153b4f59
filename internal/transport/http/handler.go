package httptransport

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"document-worker-service/internal/entity"
	"document-worker-service/internal/repository/postgresql"
	"document-worker-service/internal/service"
)

type Handler struct {
	docSvc *service.DocumentService
}

func NewHandler(docSvc *service.DocumentService) *Handler {
	return &Handler{docSvc: docSvc}
}

type uploadDTO struct {
	Filename      string `json:"filename"`
	Dtype         string `json:"dtype"` // invoice | receipt | contract
	ContentBase64 string `json:"contentBase64"`
}

type uploadResp struct {
	ID     string                `json:"id"`
	Status entity.DocumentStatus `json:"status"`
}

type documentResp struct {
	ID        string                `json:"id"`
	Filename  string                `json:"filename"`
	Dtype     entity.DocumentType   `json:"dtype"`
	Status    entity.DocumentStatus `json:"status"`
	OCRText   *string               `json:"ocrText,omitempty"`
	Metadata  entity.Metadata       `json:"metadata,omitempty"`
	Error     *string               `json:"error,omitempty"`
	CreatedAt string                `json:"createdAt"`
	UpdatedAt string                `json:"updatedAt"`
}

type requeueResp struct {
	Requeued int64 `json:"requeued"`
}

// UploadDocument godoc
// @Summary Upload a document
// @Description Stores the file, creates the record (uploaded) and enqueues it for background processing.
// @Tags documents
// @Accept json
// @Produce json
// @Param request body uploadDTO true "document payload (dtype: invoice|receipt|contract, content base64-encoded)"
// @Success 202 {object} uploadResp
// @Failure 400 {object} apiError
// @Failure 503 {object} apiError
// @Router /documents [post]
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	var dto uploadDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	content, err := base64.StdEncoding.DecodeString(dto.ContentBase64)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid contentBase64")
		return
	}

	doc, err := h.docSvc.UploadDocument(r.Context(), service.UploadRequest{
		Filename: dto.Filename,
		Dtype:    entity.DocumentType(dto.Dtype),
		Content:  content,
	})
	if err != nil {
		if errors.Is(err, postgresql.ErrUnavailable) || errors.Is(err, service.ErrQueueUnavailable) {
			writeErr(w, http.StatusServiceUnavailable, "temporarily unavailable")
			return
		}
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, uploadResp{ID: doc.ID.String(), Status: doc.Status})
}

// GetDocument godoc
// @Summary Get document by id
// @Description Returns the current record; ocrText and metadata appear once processing reached validated.
// @Tags documents
// @Produce json
// @Param id path string true "document id (uuid)"
// @Success 200 {object} documentResp
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Failure 503 {object} apiError
// @Router /documents/{id} [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return
	}

	doc, err := h.docSvc.GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "document not found")
			return
		}
		writeErr(w, http.StatusServiceUnavailable, "temporarily unavailable")
		return
	}

	writeJSON(w, http.StatusOK, documentResp{
		ID:        doc.ID.String(),
		Filename:  doc.Filename,
		Dtype:     doc.Dtype,
		Status:    doc.Status,
		OCRText:   doc.OCRText,
		Metadata:  doc.Metadata,
		Error:     doc.Error,
		CreatedAt: doc.CreatedAt.Format(time.RFC3339),
		UpdatedAt: doc.UpdatedAt.Format(time.RFC3339),
	})
}

// ListFailedJobs godoc
// @Summary List failed jobs
// @Tags admin
// @Produce json
// @Success 200 {array} entity.FailedJob
// @Failure 503 {object} apiError
// @Router /admin/queue/failed [get]
func (h *Handler) ListFailedJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.docSvc.FailedJobs(r.Context())
	if err != nil {
		writeErr(w, http.StatusServiceUnavailable, "temporarily unavailable")
		return
	}
	if jobs == nil {
		jobs = []entity.FailedJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// ListDeadLetters godoc
// @Summary List dead-lettered queue payloads
// @Description Raw payloads that could not be decoded into jobs, kept for inspection.
// @Tags admin
// @Produce json
// @Success 200 {array} string
// @Failure 503 {object} apiError
// @Router /admin/queue/dead-letter [get]
func (h *Handler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	payloads, err := h.docSvc.DeadLetters(r.Context())
	if err != nil {
		writeErr(w, http.StatusServiceUnavailable, "temporarily unavailable")
		return
	}
	if payloads == nil {
		payloads = []string{}
	}
	writeJSON(w, http.StatusOK, payloads)
}

// RequeueInFlight godoc
// @Summary Requeue in-flight jobs
// @Description Moves jobs stuck in the in-flight set back to the queue tail, e.g. after a worker crash.
// @Tags admin
// @Produce json
// @Param max query int false "max jobs to move (default: all)"
// @Success 200 {object} requeueResp
// @Failure 400 {object} apiError
// @Failure 503 {object} apiError
// @Router /admin/queue/requeue [post]
func (h *Handler) RequeueInFlight(w http.ResponseWriter, r *http.Request) {
	var max int64 = -1
	if raw := r.URL.Query().Get("max"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			writeErr(w, http.StatusBadRequest, "invalid max")
			return
		}
		max = n
	}

	moved, err := h.docSvc.RequeueInFlight(r.Context(), max)
	if err != nil {
		writeErr(w, http.StatusServiceUnavailable, "temporarily unavailable")
		return
	}
	writeJSON(w, http.StatusOK, requeueResp{Requeued: moved})
}
