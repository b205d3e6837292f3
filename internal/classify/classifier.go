// Package classify decides whether an image is a receipt from the text printed on it.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zombor/receipt-catcher/internal/imaging"
	"github.com/zombor/receipt-catcher/internal/scanning"
)

// DefaultConcurrency bounds how many recognitions a batch runs at once
const DefaultConcurrency = 3

// Result is the classification of a single image
type Result struct {
	IsReceipt  bool    `json:"isReceipt"`
	Confidence float64 `json:"confidence"`
}

// Observer is notified of every classification; used for metrics
type Observer func(result Result, elapsed time.Duration, err error)

// Classifier scores images by the receipt keywords found in their text
type Classifier struct {
	scanner  scanning.Scanner
	observer Observer
}

// NewClassifier creates a Classifier backed by the given text scanner
func NewClassifier(scanner scanning.Scanner) *Classifier {
	return &Classifier{scanner: scanner}
}

// WithObserver returns a copy of the classifier reporting to observer
func (c *Classifier) WithObserver(observer Observer) *Classifier {
	cp := *c
	cp.observer = observer
	return &cp
}

// Classify extracts the text of the image and scores it.
// It never fails: any extraction error, or a panic inside the scanner,
// yields a negative result with zero confidence.
func (c *Classifier) Classify(ctx context.Context, p imaging.Payload) (result Result) {
	start := time.Now()
	var err error

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scanner panic: %v", r)
			result = Result{}
		}
		if err != nil {
			slog.WarnContext(ctx, "Text extraction failed, treating image as not a receipt",
				"filename", p.Name,
				"content_type", p.ContentType,
				"file_size", p.Size(),
				"error", err,
			)
		}
		if c.observer != nil {
			c.observer(result, time.Since(start), err)
		}
	}()

	text, err := c.scanner.ExtractText(ctx, p.Data, p.ContentType)
	if err != nil {
		return Result{}
	}

	result = Score(text)
	slog.DebugContext(ctx, "Classified image",
		"filename", p.Name,
		"is_receipt", result.IsReceipt,
		"confidence", result.Confidence,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result
}

// ClassifyBatch classifies every payload with at most limit recognitions in
// flight. Results are indexed by input position. A limit below 1 uses
// DefaultConcurrency.
func (c *Classifier) ClassifyBatch(ctx context.Context, payloads []imaging.Payload, limit int) []Result {
	if limit < 1 {
		limit = DefaultConcurrency
	}

	results := make([]Result, len(payloads))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, p := range payloads {
		g.Go(func() error {
			results[i] = c.Classify(ctx, p)
			return nil
		})
	}
	// Classify never fails, so neither can the group
	_ = g.Wait()

	return results
}
