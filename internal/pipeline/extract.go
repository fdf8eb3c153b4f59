package pipeline

import (
	"fmt"
	"math/rand"
	"time"

	"document-worker-service/internal/entity"
)

// Extractor produces a type-specific draft metadata record from OCR output.
type Extractor interface {
	Extract(dtype entity.DocumentType, ocr OCRResult) (entity.Metadata, error)
}

// DraftExtractor is a pure stand-in for real field extraction: deterministic
// for a fixed (dtype, OCR result) pair except for processedAt and the
// generated invoice number, which are expected to differ between runs.
type DraftExtractor struct {
	// Now is a clock seam for tests; defaults to time.Now.
	Now func() time.Time
}

func (e *DraftExtractor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *DraftExtractor) Extract(dtype entity.DocumentType, ocr OCRResult) (entity.Metadata, error) {
	now := e.now().UTC()
	processedAt := now.Format(time.RFC3339)
	date := now.Format("2006-01-02")

	switch dtype {
	case entity.TypeInvoice:
		return entity.InvoiceMetadata{
			SourceLanguage: ocr.Language,
			OCRConfidence:  ocr.Confidence,
			ProcessedAt:    processedAt,
			InvoiceNumber:  fmt.Sprintf("INV-%s-%04d", now.Format("20060102"), rand.Intn(10000)),
			CustomerName:   "ACME GmbH",
			Total:          123.45,
			Currency:       "EUR",
			InvoiceDate:    date,
		}, nil
	case entity.TypeReceipt:
		return entity.ReceiptMetadata{
			SourceLanguage: ocr.Language,
			OCRConfidence:  ocr.Confidence,
			ProcessedAt:    processedAt,
			Merchant:       "Kiosk 24/7",
			Total:          19.99,
			Items: []entity.ReceiptItem{
				{Name: "Coffee", Price: 2.99},
				{Name: "Snack", Price: 1.49},
			},
			Currency:    "EUR",
			ReceiptDate: processedAt,
		}, nil
	case entity.TypeContract:
		return entity.ContractMetadata{
			SourceLanguage: ocr.Language,
			OCRConfidence:  ocr.Confidence,
			ProcessedAt:    processedAt,
			Parties:        []string{"Example AG", "Example Person"},
			EffectiveDate:  date,
			TermMonths:     12,
		}, nil
	default:
		// dtype is validated at the ingress boundary; reaching this is a
		// programmer error.
		return nil, fmt.Errorf("extract: unknown dtype %q", dtype)
	}
}
