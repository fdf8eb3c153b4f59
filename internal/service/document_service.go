package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"document-worker-service/internal/entity"
)

// Repository port (implementation: postgresql.DocumentRepository).
type DocumentRepository interface {
	Create(ctx context.Context, filename string, dtype entity.DocumentType, status entity.DocumentStatus) (*entity.Document, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error)
}

// FileStore port for the raw uploaded bytes (implementation: storage.LocalStore).
type FileStore interface {
	Save(ctx context.Context, key string, data io.Reader) error
}

type DocumentService struct {
	repo  DocumentRepository
	files FileStore
	queue Queue
}

func NewDocumentService(repo DocumentRepository, files FileStore, queue Queue) *DocumentService {
	return &DocumentService{repo: repo, files: files, queue: queue}
}

type UploadRequest struct {
	Filename string
	Dtype    entity.DocumentType
	Content  []byte
}

// UploadDocument stores the raw bytes, creates the record as uploaded and
// enqueues exactly one processing job for it.
func (s *DocumentService) UploadDocument(ctx context.Context, req UploadRequest) (*entity.Document, error) {
	if req.Filename == "" {
		return nil, errors.New("filename is required")
	}
	if !req.Dtype.Valid() {
		return nil, fmt.Errorf("unknown dtype: %q", req.Dtype)
	}
	if len(req.Content) == 0 {
		return nil, errors.New("content is required")
	}

	doc, err := s.repo.Create(ctx, req.Filename, req.Dtype, entity.StatusUploaded)
	if err != nil {
		return nil, err
	}

	// bytes are keyed by document id, filenames are not unique
	if err := s.files.Save(ctx, doc.ID.String(), bytes.NewReader(req.Content)); err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}

	if err := s.queue.Enqueue(ctx, entity.Job{DocumentID: doc.ID, Dtype: doc.Dtype}); err != nil {
		return nil, err
	}

	return doc, nil
}

func (s *DocumentService) GetDocument(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *DocumentService) FailedJobs(ctx context.Context) ([]entity.FailedJob, error) {
	return s.queue.FailedJobs(ctx)
}

func (s *DocumentService) DeadLetters(ctx context.Context) ([]string, error) {
	return s.queue.DeadLetters(ctx)
}

func (s *DocumentService) RequeueInFlight(ctx context.Context, max int64) (int64, error) {
	return s.queue.RequeueInFlight(ctx, max)
}
