package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerEngine wraps an Engine with a circuit breaker so a flapping OCR
// backend sheds load instead of stalling every worker. Unreadable input is
// the document's fault rather than the backend's and does not count as a
// failure, nor do caller-side cancellations.
type BreakerEngine struct {
	engine  Engine
	breaker *gobreaker.CircuitBreaker[OCRResult]
}

func NewBreakerEngine(engine Engine) *BreakerEngine {
	settings := gobreaker.Settings{
		Name:    "ocr",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrUnreadableInput) ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded)
		},
	}
	return &BreakerEngine{
		engine:  engine,
		breaker: gobreaker.NewCircuitBreaker[OCRResult](settings),
	}
}

func (b *BreakerEngine) Recognize(ctx context.Context, data []byte) (OCRResult, error) {
	return b.breaker.Execute(func() (OCRResult, error) {
		return b.engine.Recognize(ctx, data)
	})
}
