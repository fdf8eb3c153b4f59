package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"document-worker-service/internal/entity"
	"document-worker-service/internal/metrics"
	"document-worker-service/internal/pipeline"
	"document-worker-service/internal/repository/postgresql"
)

type DocumentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	Update(ctx context.Context, id uuid.UUID, fields postgresql.UpdateFields) error
}

// ContentStore hands back the raw uploaded bytes for a filename.
type ContentStore interface {
	Read(ctx context.Context, key string) ([]byte, error)
}

// Processor drives one job through OCR -> extraction -> validation while
// keeping the document's status in step with the pipeline outcome.
type Processor struct {
	store     DocumentStore
	files     ContentStore
	ocr       pipeline.Engine
	extractor pipeline.Extractor
	validator pipeline.Validator
	metrics   *metrics.WorkerMetrics
}

func NewProcessor(
	store DocumentStore,
	files ContentStore,
	ocr pipeline.Engine,
	extractor pipeline.Extractor,
	validator pipeline.Validator,
	m *metrics.WorkerMetrics,
) *Processor {
	return &Processor{
		store:     store,
		files:     files,
		ocr:       ocr,
		extractor: extractor,
		validator: validator,
		metrics:   m,
	}
}

func (p *Processor) Process(ctx context.Context, job entity.Job) (err error) {
	start := time.Now()
	id := job.DocumentID

	p.metrics.StartJob()
	defer func() {
		p.metrics.FinishJob(string(job.Dtype), time.Since(start), err)
	}()

	// status -> processing, before any stage runs
	processing := entity.StatusProcessing
	if err := p.store.Update(ctx, id, postgresql.UpdateFields{Status: &processing}); err != nil {
		log.Printf("[worker] doc_id=%s update_status=processing error=%v", id, err)
		return fmt.Errorf("set status=processing: %w", err)
	}

	doc, err := p.store.GetByID(ctx, id)
	if err != nil {
		// Fails this job only; the loop stays alive.
		log.Printf("[worker] doc_id=%s get_document error=%v", id, err)
		return fmt.Errorf("fetch document: %w", err)
	}

	ocrRes, pipeErr := p.runPipeline(ctx, doc)
	if pipeErr != nil {
		p.failDocument(ctx, id, pipeErr)
		log.Printf("[worker] doc_id=%s dtype=%s status=failed duration_ms=%d error=%v",
			id, doc.Dtype, time.Since(start).Milliseconds(), pipeErr,
		)
		return pipeErr
	}

	persisted := entity.StatusPersisted
	if err := p.store.Update(ctx, id, postgresql.UpdateFields{Status: &persisted}); err != nil {
		log.Printf("[worker] doc_id=%s update_status=persisted error=%v", id, err)
		return fmt.Errorf("set status=persisted: %w", err)
	}

	log.Printf("[worker] doc_id=%s dtype=%s status=persisted ocr_confidence=%.2f duration_ms=%d",
		id, doc.Dtype, ocrRes.Confidence, time.Since(start).Milliseconds(),
	)
	return nil
}

// runPipeline executes the three stages and writes the validated transition.
// ocrText and metadata land in the same update as status=validated, so they
// are never observable with an earlier status.
func (p *Processor) runPipeline(ctx context.Context, doc *entity.Document) (pipeline.OCRResult, error) {
	content := p.content(ctx, doc)

	ocrRes, err := p.ocr.Recognize(ctx, content)
	if err != nil {
		return pipeline.OCRResult{}, fmt.Errorf("ocr: %w", err)
	}

	draft, err := p.extractor.Extract(doc.Dtype, ocrRes)
	if err != nil {
		return pipeline.OCRResult{}, fmt.Errorf("extract: %w", err)
	}

	validated, err := p.validator.Validate(doc.Dtype, draft)
	if err != nil {
		return pipeline.OCRResult{}, fmt.Errorf("validate: %w", err)
	}

	status := entity.StatusValidated
	if err := p.store.Update(ctx, doc.ID, postgresql.UpdateFields{
		Status:   &status,
		OCRText:  &ocrRes.Text,
		Metadata: validated,
	}); err != nil {
		return pipeline.OCRResult{}, fmt.Errorf("set status=validated: %w", err)
	}
	return ocrRes, nil
}

// content loads the uploaded bytes, stored under the document id. When the
// file is missing the filename itself feeds the placeholder OCR stage, the
// stand-in behavior for documents ingested before file storage existed.
func (p *Processor) content(ctx context.Context, doc *entity.Document) []byte {
	raw, err := p.files.Read(ctx, doc.ID.String())
	if err != nil {
		log.Printf("[worker] doc_id=%s read_content error=%v fallback=filename", doc.ID, err)
		return []byte(doc.Filename)
	}
	return raw
}

func (p *Processor) failDocument(ctx context.Context, id uuid.UUID, cause error) {
	failed := entity.StatusFailed
	msg := cause.Error()
	if err := p.store.Update(ctx, id, postgresql.UpdateFields{Status: &failed, Error: &msg}); err != nil {
		log.Printf("[worker] doc_id=%s update_status=failed error=%v", id, err)
	}
}
