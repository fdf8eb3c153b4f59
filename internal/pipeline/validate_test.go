package pipeline

import (
	"errors"
	"strings"
	"testing"

	"document-worker-service/internal/entity"
)

func newValidator(t *testing.T) *SchemaValidator {
	t.Helper()
	v, err := NewSchemaValidator()
	if err != nil {
		t.Fatalf("NewSchemaValidator: %v", err)
	}
	return v
}

func violationFields(t *testing.T, err error) []string {
	t.Helper()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	fields := make([]string, 0, len(ve.Violations))
	for _, viol := range ve.Violations {
		fields = append(fields, viol.Field)
	}
	return fields
}

func validInvoiceDraft() entity.InvoiceMetadata {
	return entity.InvoiceMetadata{
		SourceLanguage: "en",
		OCRConfidence:  0.9,
		ProcessedAt:    "2026-08-28T12:00:00Z",
		InvoiceNumber:  "INV-20260828-0042",
		CustomerName:   "ACME GmbH",
		Total:          123.45,
		Currency:       "EUR",
		InvoiceDate:    "2026-08-28",
	}
}

func TestValidate_AcceptsConformingDrafts(t *testing.T) {
	v := newValidator(t)

	got, err := v.Validate(entity.TypeInvoice, validInvoiceDraft())
	if err != nil {
		t.Fatalf("expected valid invoice, got %v", err)
	}
	if got.Dtype() != entity.TypeInvoice {
		t.Fatalf("validated record lost its type: %v", got.Dtype())
	}

	receipt := entity.ReceiptMetadata{
		SourceLanguage: "en",
		OCRConfidence:  0.8,
		ProcessedAt:    "2026-08-28T12:00:00Z",
		Merchant:       "Kiosk 24/7",
		Total:          19.99,
		Items:          []entity.ReceiptItem{{Name: "Coffee", Price: 2.99}},
		Currency:       "EUR",
		ReceiptDate:    "2026-08-28T12:00:00Z",
	}
	if _, err := v.Validate(entity.TypeReceipt, receipt); err != nil {
		t.Fatalf("expected valid receipt, got %v", err)
	}

	contract := entity.ContractMetadata{
		SourceLanguage: "de",
		OCRConfidence:  0.7,
		ProcessedAt:    "2026-08-28T12:00:00Z",
		Parties:        []string{"Example AG", "Example Person"},
		EffectiveDate:  "2026-08-28",
		TermMonths:     12,
	}
	if _, err := v.Validate(entity.TypeContract, contract); err != nil {
		t.Fatalf("expected valid contract, got %v", err)
	}
}

func TestValidate_RejectsNegativeReceiptItemPrice(t *testing.T) {
	v := newValidator(t)

	draft := entity.ReceiptMetadata{
		SourceLanguage: "en",
		OCRConfidence:  0.8,
		ProcessedAt:    "2026-08-28T12:00:00Z",
		Merchant:       "Kiosk 24/7",
		Total:          19.99,
		Items:          []entity.ReceiptItem{{Name: "Coffee", Price: -2.99}},
		Currency:       "EUR",
		ReceiptDate:    "2026-08-28T12:00:00Z",
	}

	_, err := v.Validate(entity.TypeReceipt, draft)
	fields := violationFields(t, err)
	found := false
	for _, f := range fields {
		if strings.Contains(f, "items.0.price") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a violation naming items.0.price, got %v", fields)
	}
}

func TestValidate_RejectsTwoLetterCurrency(t *testing.T) {
	v := newValidator(t)

	draft := validInvoiceDraft()
	draft.Currency = "EU"

	_, err := v.Validate(entity.TypeInvoice, draft)
	fields := violationFields(t, err)
	if len(fields) != 1 || fields[0] != "currency" {
		t.Fatalf("expected exactly one violation on currency, got %v", fields)
	}
}

func TestValidate_RejectsSinglePartyContract(t *testing.T) {
	v := newValidator(t)

	draft := entity.ContractMetadata{
		SourceLanguage: "en",
		OCRConfidence:  0.7,
		ProcessedAt:    "2026-08-28T12:00:00Z",
		Parties:        []string{"Example AG"},
		EffectiveDate:  "2026-08-28",
		TermMonths:     12,
	}

	_, err := v.Validate(entity.TypeContract, draft)
	fields := violationFields(t, err)
	if len(fields) != 1 || fields[0] != "parties" {
		t.Fatalf("expected exactly one violation on parties, got %v", fields)
	}
}

func TestValidate_RejectsDtypeMismatch(t *testing.T) {
	v := newValidator(t)

	if _, err := v.Validate(entity.TypeReceipt, validInvoiceDraft()); err == nil {
		t.Fatal("expected mismatch error")
	}
}
