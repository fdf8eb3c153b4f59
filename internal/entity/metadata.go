package entity

import (
	"encoding/json"
	"fmt"
)

// Metadata is the validated, type-tagged metadata record for a document.
// Exactly one implementation exists per DocumentType, so dispatch on dtype
// is exhaustive at compile time.
type Metadata interface {
	Dtype() DocumentType
}

type InvoiceMetadata struct {
	SourceLanguage string  `json:"sourceLanguage"`
	OCRConfidence  float64 `json:"ocrConfidence"`
	ProcessedAt    string  `json:"processedAt"`
	InvoiceNumber  string  `json:"invoiceNumber"`
	CustomerName   string  `json:"customerName"`
	Total          float64 `json:"total"`
	Currency       string  `json:"currency"`
	InvoiceDate    string  `json:"invoiceDate"`
}

func (InvoiceMetadata) Dtype() DocumentType { return TypeInvoice }

type ReceiptItem struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type ReceiptMetadata struct {
	SourceLanguage string        `json:"sourceLanguage"`
	OCRConfidence  float64       `json:"ocrConfidence"`
	ProcessedAt    string        `json:"processedAt"`
	Merchant       string        `json:"merchant"`
	Total          float64       `json:"total"`
	Items          []ReceiptItem `json:"items"`
	Currency       string        `json:"currency"`
	ReceiptDate    string        `json:"receiptDate"`
}

func (ReceiptMetadata) Dtype() DocumentType { return TypeReceipt }

type ContractMetadata struct {
	SourceLanguage string   `json:"sourceLanguage"`
	OCRConfidence  float64  `json:"ocrConfidence"`
	ProcessedAt    string   `json:"processedAt"`
	Parties        []string `json:"parties"`
	EffectiveDate  string   `json:"effectiveDate"`
	TermMonths     int      `json:"termMonths"`
}

func (ContractMetadata) Dtype() DocumentType { return TypeContract }

// UnmarshalMetadata decodes a stored metadata blob into the shape matching
// dtype. The document row carries the discriminator, so the blob itself does
// not need a type tag.
func UnmarshalMetadata(dtype DocumentType, raw []byte) (Metadata, error) {
	switch dtype {
	case TypeInvoice:
		var m InvoiceMetadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("unmarshal invoice metadata: %w", err)
		}
		return m, nil
	case TypeReceipt:
		var m ReceiptMetadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("unmarshal receipt metadata: %w", err)
		}
		return m, nil
	case TypeContract:
		var m ContractMetadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("unmarshal contract metadata: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown dtype %q", dtype)
	}
}
