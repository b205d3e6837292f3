package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/zombor/receipt-catcher/internal/classify"
	"github.com/zombor/receipt-catcher/internal/imaging"
)

var errNoFiles = errors.New("no files given")

// scan classifies the files named in args and prints one line per file
func scan(ctx context.Context, opts *options, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errNoFiles
	}

	scanner, err := newScanner(opts)
	if err != nil {
		return fmt.Errorf("initializing scanner: %w", err)
	}
	defer scanner.Close()

	normalizer := imaging.NewNormalizer(opts.normalizerOptions())
	classifier := classify.NewClassifier(scanner)

	return classifyFiles(ctx, normalizer, classifier, args, opts.concurrency, out)
}

// classifyFiles normalizes and batch-classifies files, writing
// "path<TAB>receipt|not-receipt<TAB>confidence" lines in input order
func classifyFiles(ctx context.Context, normalizer *imaging.Normalizer, classifier *classify.Classifier, paths []string, concurrency int, out io.Writer) error {
	payloads := make([]imaging.Payload, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		original := imaging.Payload{
			Name:        filepath.Base(path),
			ContentType: contentTypeFor(path, data),
			Data:        data,
		}

		normalized, err := normalizer.Normalize(ctx, original)
		if err != nil {
			slog.WarnContext(ctx, "Failed to normalize image, classifying the original", "path", path, "error", err)
			payloads = append(payloads, original)
			continue
		}
		payloads = append(payloads, normalized.Payload)
	}

	results := classifier.ClassifyBatch(ctx, payloads, concurrency)

	for i, result := range results {
		label := "not-receipt"
		if result.IsReceipt {
			label = "receipt"
		}
		if _, err := fmt.Fprintf(out, "%s\t%s\t%.2f\n", paths[i], label, result.Confidence); err != nil {
			return err
		}
	}
	return nil
}

// contentTypeFor guesses a content type from the extension, then the bytes
func contentTypeFor(path string, data []byte) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return imaging.NormalizeContentType(http.DetectContentType(data))
}
