package worker

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"document-worker-service/internal/entity"
	"document-worker-service/internal/pipeline"
	"document-worker-service/internal/repository/postgresql"
)

// ---- fakes ----

type fakeStore struct {
	mu      sync.Mutex
	docs    map[uuid.UUID]*entity.Document
	updates map[uuid.UUID][]postgresql.UpdateFields
}

func newFakeStore(docs ...*entity.Document) *fakeStore {
	s := &fakeStore{
		docs:    map[uuid.UUID]*entity.Document{},
		updates: map[uuid.UUID][]postgresql.UpdateFields{},
	}
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	return s
}

func (s *fakeStore) GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, postgresql.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (s *fakeStore) Update(ctx context.Context, id uuid.UUID, fields postgresql.UpdateFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return postgresql.ErrNotFound
	}
	s.updates[id] = append(s.updates[id], fields)
	if fields.Status != nil {
		doc.Status = *fields.Status
	}
	if fields.OCRText != nil {
		text := *fields.OCRText
		doc.OCRText = &text
	}
	if fields.Metadata != nil {
		doc.Metadata = fields.Metadata
	}
	if fields.Error != nil {
		msg := *fields.Error
		doc.Error = &msg
	}
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *fakeStore) statusHistory(id uuid.UUID) []entity.DocumentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	var history []entity.DocumentStatus
	for _, u := range s.updates[id] {
		if u.Status != nil {
			history = append(history, *u.Status)
		}
	}
	return history
}

func (s *fakeStore) current(t *testing.T, id uuid.UUID) entity.Document {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		t.Fatalf("document %s not in store", id)
	}
	return *doc
}

type fakeFiles struct {
	contents map[string][]byte
}

func (f *fakeFiles) Read(ctx context.Context, key string) ([]byte, error) {
	raw, ok := f.contents[key]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", key)
	}
	return raw, nil
}

type failingEngine struct{}

func (failingEngine) Recognize(ctx context.Context, data []byte) (pipeline.OCRResult, error) {
	return pipeline.OCRResult{}, fmt.Errorf("%w: scrambled scan", pipeline.ErrUnreadableInput)
}

// badDraftExtractor produces a draft the schema validator must reject.
type badDraftExtractor struct{}

func (badDraftExtractor) Extract(dtype entity.DocumentType, ocr pipeline.OCRResult) (entity.Metadata, error) {
	return entity.InvoiceMetadata{
		SourceLanguage: ocr.Language,
		OCRConfidence:  ocr.Confidence,
		ProcessedAt:    time.Now().UTC().Format(time.RFC3339),
		InvoiceNumber:  "INV-20260828-0001",
		CustomerName:   "ACME GmbH",
		Total:          123.45,
		Currency:       "E", // not a 3-letter code
		InvoiceDate:    "2026-08-28",
	}, nil
}

// ---- helpers ----

func uploadedDoc(id string, dtype entity.DocumentType, filename string) *entity.Document {
	now := time.Now().UTC()
	return &entity.Document{
		ID:        uuid.MustParse(id),
		Filename:  filename,
		Dtype:     dtype,
		Status:    entity.StatusUploaded,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func realStages(t *testing.T) (pipeline.Engine, pipeline.Extractor, pipeline.Validator) {
	t.Helper()
	validator, err := pipeline.NewSchemaValidator()
	if err != nil {
		t.Fatalf("NewSchemaValidator: %v", err)
	}
	return &pipeline.SimulatedEngine{}, &pipeline.DraftExtractor{}, validator
}

var invoiceNumberPattern = regexp.MustCompile(`^INV-\d{8}-\d{4}$`)

// ---- tests ----

func TestProcessor_InvoiceRunEndsPersisted(t *testing.T) {
	ctx := context.Background()

	doc := uploadedDoc("d1d1d1d1-0000-0000-0000-000000000001", entity.TypeInvoice, "invoice.txt")
	store := newFakeStore(doc)
	files := &fakeFiles{contents: map[string][]byte{doc.ID.String(): []byte("Rechnung 123.45 EUR")}}
	ocr, extractor, validator := realStages(t)

	proc := NewProcessor(store, files, ocr, extractor, validator, nil)
	if err := proc.Process(ctx, entity.Job{DocumentID: doc.ID, Dtype: doc.Dtype}); err != nil {
		t.Fatalf("process: %v", err)
	}

	got := store.current(t, doc.ID)
	if got.Status != entity.StatusPersisted {
		t.Fatalf("expected persisted, got %s", got.Status)
	}
	if got.OCRText == nil || *got.OCRText != "Rechnung 123.45 EUR" {
		t.Fatalf("ocrText not folded into the record: %v", got.OCRText)
	}
	inv, ok := got.Metadata.(entity.InvoiceMetadata)
	if !ok {
		t.Fatalf("expected InvoiceMetadata, got %T", got.Metadata)
	}
	if !invoiceNumberPattern.MatchString(inv.InvoiceNumber) {
		t.Fatalf("invoice number %q does not match INV-YYYYMMDD-NNNN", inv.InvoiceNumber)
	}

	history := store.statusHistory(doc.ID)
	want := []entity.DocumentStatus{entity.StatusProcessing, entity.StatusValidated, entity.StatusPersisted}
	if len(history) != len(want) {
		t.Fatalf("status history %v, want %v", history, want)
	}
	for i := range want {
		if history[i] != want[i] {
			t.Fatalf("status history %v, want %v", history, want)
		}
	}
}

// ocrText and metadata must only appear together with the validated
// transition, never alongside processing or failed.
func TestProcessor_FieldsOnlySetWithValidatedTransition(t *testing.T) {
	ctx := context.Background()

	doc := uploadedDoc("d1d1d1d1-0000-0000-0000-000000000002", entity.TypeReceipt, "receipt.txt")
	store := newFakeStore(doc)
	files := &fakeFiles{contents: map[string][]byte{doc.ID.String(): []byte("Kiosk 24/7 total 19.99")}}
	ocr, extractor, validator := realStages(t)

	proc := NewProcessor(store, files, ocr, extractor, validator, nil)
	if err := proc.Process(ctx, entity.Job{DocumentID: doc.ID, Dtype: doc.Dtype}); err != nil {
		t.Fatalf("process: %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	for _, u := range store.updates[doc.ID] {
		hasPayload := u.OCRText != nil || u.Metadata != nil
		isValidated := u.Status != nil && *u.Status == entity.StatusValidated
		if hasPayload && !isValidated {
			t.Fatalf("ocrText/metadata written outside the validated transition: %+v", u)
		}
		if isValidated && (u.OCRText == nil || u.Metadata == nil) {
			t.Fatalf("validated transition missing ocrText/metadata: %+v", u)
		}
	}
}

func TestProcessor_ValidationFailureMarksFailed(t *testing.T) {
	ctx := context.Background()

	doc := uploadedDoc("d1d1d1d1-0000-0000-0000-000000000003", entity.TypeInvoice, "invoice.txt")
	store := newFakeStore(doc)
	files := &fakeFiles{contents: map[string][]byte{doc.ID.String(): []byte("scan")}}
	ocr, _, validator := realStages(t)

	proc := NewProcessor(store, files, ocr, badDraftExtractor{}, validator, nil)
	err := proc.Process(ctx, entity.Job{DocumentID: doc.ID, Dtype: doc.Dtype})

	var ve *pipeline.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	got := store.current(t, doc.ID)
	if got.Status != entity.StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.Error == nil || *got.Error == "" {
		t.Fatal("expected error message on the record")
	}
	if got.OCRText != nil || got.Metadata != nil {
		t.Fatalf("ocrText/metadata must stay unset on failure: %+v", got)
	}
}

func TestProcessor_OCRFailureMarksFailed(t *testing.T) {
	ctx := context.Background()

	doc := uploadedDoc("d1d1d1d1-0000-0000-0000-000000000004", entity.TypeContract, "contract.bin")
	store := newFakeStore(doc)
	_, extractor, validator := realStages(t)

	proc := NewProcessor(store, &fakeFiles{}, failingEngine{}, extractor, validator, nil)
	err := proc.Process(ctx, entity.Job{DocumentID: doc.ID, Dtype: doc.Dtype})
	if !errors.Is(err, pipeline.ErrUnreadableInput) {
		t.Fatalf("expected ErrUnreadableInput, got %v", err)
	}

	if got := store.current(t, doc.ID); got.Status != entity.StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
}

func TestProcessor_MissingDocumentFailsJobOnly(t *testing.T) {
	store := newFakeStore()
	ocr, extractor, validator := realStages(t)
	proc := NewProcessor(store, &fakeFiles{}, ocr, extractor, validator, nil)

	err := proc.Process(context.Background(), entity.Job{
		DocumentID: uuid.MustParse("d1d1d1d1-0000-0000-0000-000000000005"),
		Dtype:      entity.TypeInvoice,
	})
	if !errors.Is(err, postgresql.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProcessor_MissingFileFallsBackToFilenameBytes(t *testing.T) {
	ctx := context.Background()

	doc := uploadedDoc("d1d1d1d1-0000-0000-0000-000000000006", entity.TypeInvoice, "lost-upload.txt")
	store := newFakeStore(doc)
	ocr, extractor, validator := realStages(t)

	proc := NewProcessor(store, &fakeFiles{}, ocr, extractor, validator, nil)
	if err := proc.Process(ctx, entity.Job{DocumentID: doc.ID, Dtype: doc.Dtype}); err != nil {
		t.Fatalf("process: %v", err)
	}

	got := store.current(t, doc.ID)
	if got.OCRText == nil || *got.OCRText != "lost-upload.txt" {
		t.Fatalf("expected filename stand-in as OCR input, got %v", got.OCRText)
	}
}
