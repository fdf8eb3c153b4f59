package entity

import (
	"time"

	"github.com/google/uuid"
)

type DocumentType string

const (
	TypeInvoice  DocumentType = "invoice"
	TypeReceipt  DocumentType = "receipt"
	TypeContract DocumentType = "contract"
)

func (t DocumentType) Valid() bool {
	switch t {
	case TypeInvoice, TypeReceipt, TypeContract:
		return true
	}
	return false
}

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusValidated  DocumentStatus = "validated"
	StatusPersisted  DocumentStatus = "persisted"
	StatusFailed     DocumentStatus = "failed"
)

// transitions lists the legal status edges. uploaded must pass through
// processing, persisted/failed are terminal.
var transitions = map[DocumentStatus][]DocumentStatus{
	StatusUploaded:   {StatusProcessing},
	StatusProcessing: {StatusValidated, StatusFailed},
	StatusValidated:  {StatusPersisted, StatusFailed},
}

func ValidTransition(from, to DocumentStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Document struct {
	ID        uuid.UUID      `json:"id"`
	Filename  string         `json:"filename"`
	Dtype     DocumentType   `json:"dtype"`
	Status    DocumentStatus `json:"status"`
	OCRText   *string        `json:"ocrText,omitempty"`
	Metadata  Metadata       `json:"metadata,omitempty"`
	Error     *string        `json:"error,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}
