package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zombor/receipt-catcher/internal/classify"
	"github.com/zombor/receipt-catcher/internal/delivery"
	"github.com/zombor/receipt-catcher/internal/imaging"
	"github.com/zombor/receipt-catcher/internal/receipt"
	"github.com/zombor/receipt-catcher/internal/scanning"
)

// newScanner builds the text recognizer selected by opts.scanner
func newScanner(opts *options) (scanning.Scanner, error) {
	switch opts.scanner {
	case "tesseract":
		slog.Info("Initializing Tesseract scanner...", "binary", opts.tesseractBin, "lang", opts.tesseractLang)
		return scanning.NewTesseract(scanning.TesseractConfig{
			Binary:      opts.tesseractBin,
			Lang:        opts.tesseractLang,
			TessdataDir: opts.tessdataDir,
			PSM:         opts.tesseractPSM,
		}), nil
	case "gemini":
		apiKey := opts.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini scanner...", "model", opts.geminiModel)
		return scanning.NewGemini(apiKey, opts.geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", opts.ollamaURL, "model", opts.ollamaModel)
		return scanning.NewOllama(opts.ollamaURL, opts.ollamaModel)
	default:
		return nil, fmt.Errorf("invalid scanner type %q: valid types are tesseract, gemini or ollama", opts.scanner)
	}
}

// newStorage keeps previews on disk when a directory is configured
func newStorage(path string) (receipt.Storage, error) {
	if path == "" {
		slog.Info("Keeping previews in memory")
		return receipt.NewMemoryStorage(), nil
	}
	slog.Info("Initializing storage...", "path", path)
	return receipt.NewLocalStorage(path)
}

// serve runs the wizard web server until ctx is cancelled
func serve(ctx context.Context, opts *options) error {
	slog.Info("Initializing database...", "path", opts.dbPath)
	db, err := receipt.NewBoltDB(opts.dbPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	store, err := newStorage(opts.storagePath)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	scanner, err := newScanner(opts)
	if err != nil {
		return fmt.Errorf("initializing scanner: %w", err)
	}
	defer scanner.Close()

	metrics := receipt.NewMetrics(prometheus.DefaultRegisterer)

	service := receipt.NewService(receipt.Deps{
		DB:          db,
		Previews:    receipt.NewPreviewStore(store),
		Normalizer:  imaging.NewNormalizer(opts.normalizerOptions()),
		Classifier:  classify.NewClassifier(scanner).WithObserver(metrics.ObserveClassification),
		Dispatcher:  delivery.NewDispatcher(delivery.NewEmailJS(opts.emailjsURL, opts.emailjsToken)),
		Concurrency: opts.concurrency,
		Metrics:     metrics,
	})
	defer service.Close()

	basicAuth := receipt.BasicAuth{
		Username: opts.authUser,
		Password: opts.authPass,
	}
	server := receipt.NewServer(service, basicAuth)

	addr := fmt.Sprintf(":%d", opts.port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if opts.authUser != "" || opts.authPass != "" {
		slog.Info("Basic auth enabled", "user", opts.authUser)
	}

	if err := server.Start(ctx, addr); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("Shutting down...")
	return nil
}
