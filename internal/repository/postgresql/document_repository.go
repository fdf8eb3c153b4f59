package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"document-worker-service/internal/entity"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("store unavailable")
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w: %w", ErrUnavailable, err)
	}
	return db, nil
}

// EnsureSchema bootstraps the documents table. The advisory lock serializes
// DDL across api/worker startups racing on a fresh database.
func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id UUID PRIMARY KEY,
	filename TEXT NOT NULL,
	dtype TEXT NOT NULL,
	status TEXT NOT NULL,
	ocr_text TEXT,
	metadata JSONB,
	error TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	return tx.Commit()
}

func (r *DocumentRepository) Create(ctx context.Context, filename string, dtype entity.DocumentType, status entity.DocumentStatus) (*entity.Document, error) {
	now := time.Now().UTC()
	doc := &entity.Document{
		ID:        uuid.New(),
		Filename:  filename,
		Dtype:     dtype,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}

	const q = `
INSERT INTO documents (id, filename, dtype, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6);
`
	if _, err := r.db.ExecContext(ctx, q, doc.ID, doc.Filename, string(doc.Dtype), string(doc.Status), doc.CreatedAt, doc.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert document: %w: %w", ErrUnavailable, err)
	}
	return doc, nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	const q = `
SELECT id, filename, dtype, status, ocr_text, metadata, error, created_at, updated_at
FROM documents
WHERE id = $1;
`

	var (
		doc         entity.Document
		dtypeText   string
		statusText  string
		metadataRaw []byte
		createdAt   time.Time
		updatedAt   time.Time
	)

	if err := r.db.QueryRowContext(ctx, q, id).Scan(
		&doc.ID,
		&doc.Filename,
		&dtypeText,
		&statusText,
		&doc.OCRText, // NULL => nil
		&metadataRaw, // NULL => nil
		&doc.Error,   // NULL => nil
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select document: %w: %w", ErrUnavailable, err)
	}

	doc.Dtype = entity.DocumentType(dtypeText)
	doc.Status = entity.DocumentStatus(statusText)
	doc.CreatedAt = createdAt
	doc.UpdatedAt = updatedAt

	if metadataRaw != nil {
		m, err := entity.UnmarshalMetadata(doc.Dtype, metadataRaw)
		if err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", id, err)
		}
		doc.Metadata = m
	}

	return &doc, nil
}

// UpdateFields carries the partial update for a document. Nil fields are left
// untouched; updated_at is refreshed on every call.
type UpdateFields struct {
	Status   *entity.DocumentStatus
	OCRText  *string
	Metadata entity.Metadata
	Error    *string
}

func (r *DocumentRepository) Update(ctx context.Context, id uuid.UUID, fields UpdateFields) error {
	set := []string{}
	args := []any{id}

	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if fields.Status != nil {
		set = append(set, "status="+arg(string(*fields.Status)))
	}
	if fields.OCRText != nil {
		set = append(set, "ocr_text="+arg(*fields.OCRText))
	}
	if fields.Metadata != nil {
		raw, err := json.Marshal(fields.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		set = append(set, "metadata="+arg(raw))
	}
	if fields.Error != nil {
		set = append(set, "error="+arg(*fields.Error))
	}
	set = append(set, "updated_at="+arg(time.Now().UTC()))

	q := "UPDATE documents SET " + strings.Join(set, ", ") + " WHERE id=$1;"

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update document: %w: %w", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
