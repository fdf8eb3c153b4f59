package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

var ErrUnreadableInput = errors.New("unreadable input")

// OCRResult is the ephemeral output of the OCR stage. It is never persisted
// on its own; the worker folds text into the document record on success.
type OCRResult struct {
	Text       string
	Confidence float64
	Language   string
}

// Engine is the OCR seam: raw document bytes in, recognized text out.
// The simulated engine below can be swapped for a real inference backend
// without touching the worker.
type Engine interface {
	Recognize(ctx context.Context, data []byte) (OCRResult, error)
}

// SimulatedEngine stands in for a real OCR backend. PDF input gets its text
// layer extracted for real, valid UTF-8 passes through, anything else yields
// canned text. The configurable latency mimics a remote inference call.
type SimulatedEngine struct {
	Latency time.Duration
}

const simulatedText = "This is a simulated OCR result."

func (e *SimulatedEngine) Recognize(ctx context.Context, data []byte) (OCRResult, error) {
	if len(data) == 0 {
		return OCRResult{}, fmt.Errorf("%w: empty input", ErrUnreadableInput)
	}

	if e.Latency > 0 {
		timer := time.NewTimer(e.Latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return OCRResult{}, ctx.Err()
		case <-timer.C:
		}
	}

	var text string
	switch {
	case bytes.HasPrefix(data, []byte("%PDF-")):
		extracted, err := pdfText(data)
		if err != nil {
			return OCRResult{}, fmt.Errorf("%w: %v", ErrUnreadableInput, err)
		}
		text = extracted
	case utf8.Valid(data):
		text = strings.TrimSpace(string(data))
	}
	if text == "" {
		text = simulatedText
	}

	return OCRResult{
		Text:       text,
		Confidence: heuristicConfidence(text),
		Language:   detectLanguage(text),
	}, nil
}

func pdfText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if _, err := io.Copy(&b, plain); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}

var (
	reDate   = regexp.MustCompile(`\b20\d{2}-?\d{2}-?\d{2}\b`)
	reCurr   = regexp.MustCompile(`\b(usd|eur|gbp|chf)\b|[$£€]`)
	reAmount = regexp.MustCompile(`\b\d{1,3}(,\d{3})*\.\d{2}\b|\b\d+\.\d{2}\b`)
)

// heuristicConfidence scores recognized text by how many document-ish
// artifacts it contains. Deterministic for a fixed text.
func heuristicConfidence(text string) float64 {
	lower := strings.ToLower(text)
	score := 0.5
	if reDate.MatchString(lower) {
		score += 0.2
	}
	if reCurr.MatchString(lower) {
		score += 0.15
	}
	if reAmount.MatchString(lower) {
		score += 0.1
	}
	if len(text) > 120 {
		score += 0.05
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func detectLanguage(text string) string {
	if strings.ContainsAny(text, "äöüßÄÖÜ") {
		return "de"
	}
	return "en"
}
