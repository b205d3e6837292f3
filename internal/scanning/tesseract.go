package scanning

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zombor/receipt-catcher/internal/imaging"
)

// TesseractConfig configures the local tesseract binary
type TesseractConfig struct {
	Binary      string // binary name or absolute path; if empty -> "tesseract"
	Lang        string // default "eng"
	TessdataDir string
	PSM         int // page segmentation mode; 0 keeps the tesseract default
}

// Tesseract implements the Scanner interface by shelling out to tesseract
type Tesseract struct {
	cfg    TesseractConfig
	runner Runner
}

// NewTesseract creates a new Tesseract Scanner instance
func NewTesseract(cfg TesseractConfig) *Tesseract {
	return NewTesseractWithRunner(cfg, execRunner{})
}

// NewTesseractWithRunner creates a Tesseract scanner with a custom command runner for testing
func NewTesseractWithRunner(cfg TesseractConfig, runner Runner) *Tesseract {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	return &Tesseract{cfg: cfg, runner: runner}
}

// ExtractText writes the image to a private temp directory, runs
// `tesseract <file> stdout` on it and removes the directory before returning.
func (t *Tesseract) ExtractText(ctx context.Context, imageData []byte, contentType string) (string, error) {
	pngData, _, err := imaging.ToPNG(imageData, contentType)
	if err != nil {
		return "", err
	}

	tmpDir, err := os.MkdirTemp("", "receipt-ocr-*")
	if err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	in := filepath.Join(tmpDir, "page.png")
	if err := os.WriteFile(in, pngData, 0600); err != nil {
		return "", fmt.Errorf("writing temp image: %w", err)
	}

	args := []string{in, "stdout", "-l", t.cfg.Lang}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", fmt.Sprintf("%d", t.cfg.PSM))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}

	out, errb, err := t.runner.Run(ctx, t.cfg.Binary, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, truncate(string(errb), 512))
	}

	return cleanText(string(out)), nil
}

// Close is a no-op; every call cleans up after itself
func (t *Tesseract) Close() error {
	return nil
}
