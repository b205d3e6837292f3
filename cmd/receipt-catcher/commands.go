package main

import (
	"context"
	"errors"
	"io"

	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/receipt-catcher/internal/classify"
	"github.com/zombor/receipt-catcher/internal/delivery"
	"github.com/zombor/receipt-catcher/internal/imaging"
)

// options collects every flag value
type options struct {
	logEnv      string
	concurrency int

	scanner       string
	tesseractBin  string
	tesseractLang string
	tessdataDir   string
	tesseractPSM  int
	geminiKey     string
	geminiModel   string
	ollamaURL     string
	ollamaModel   string
	maxWidth      int
	maxHeight     int
	quality       float64

	port         int
	dbPath       string
	storagePath  string
	emailjsURL   string
	emailjsToken string
	authUser     string
	authPass     string
}

func (o *options) normalizerOptions() imaging.Options {
	return imaging.Options{
		MaxWidth:  o.maxWidth,
		MaxHeight: o.maxHeight,
		Quality:   o.quality,
	}
}

// rootCommand wraps the ff command tree and the options it fills
type rootCommand struct {
	*ff.Command
	opts *options
}

func newRootCommand(stdout io.Writer) *rootCommand {
	opts := &options{}
	defaults := imaging.DefaultOptions()

	rootFlags := ff.NewFlagSet("receipt-catcher")
	rootFlags.StringVar(&opts.logEnv, 0, "log-env", "development", "Log format: 'development' or 'production'")
	rootFlags.IntVar(&opts.concurrency, 0, "concurrency", classify.DefaultConcurrency, "Images recognized at once")
	rootFlags.StringVar(&opts.scanner, 0, "scanner", "tesseract", "Text recognizer: 'tesseract', 'gemini' or 'ollama'")
	rootFlags.StringVar(&opts.tesseractBin, 0, "tesseract-bin", "tesseract", "Tesseract binary")
	rootFlags.StringVar(&opts.tesseractLang, 0, "tesseract-lang", "eng", "Tesseract language")
	rootFlags.StringVar(&opts.tessdataDir, 0, "tessdata-dir", "", "Tesseract data directory (optional)")
	rootFlags.IntVar(&opts.tesseractPSM, 0, "tesseract-psm", 0, "Tesseract page segmentation mode (0 uses the default)")
	rootFlags.StringVar(&opts.geminiKey, 0, "gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
	rootFlags.StringVar(&opts.geminiModel, 0, "gemini-model", "gemini-2.5-flash", "Google Gemini model name")
	rootFlags.StringVar(&opts.ollamaURL, 0, "ollama-url", "http://localhost:11434", "Ollama API base URL")
	rootFlags.StringVar(&opts.ollamaModel, 0, "ollama-model", "llava", "Ollama vision model name")
	rootFlags.IntVar(&opts.maxWidth, 0, "max-width", defaults.MaxWidth, "Maximum width of normalized images")
	rootFlags.IntVar(&opts.maxHeight, 0, "max-height", defaults.MaxHeight, "Maximum height of normalized images")
	rootFlags.Float64Var(&opts.quality, 0, "quality", defaults.Quality, "JPEG quality of normalized images, 0 to 1")

	serveFlags := ff.NewFlagSet("serve").SetParent(rootFlags)
	serveFlags.IntVar(&opts.port, 0, "port", 8080, "HTTP server port")
	serveFlags.StringVar(&opts.dbPath, 0, "db", "receipt-catcher.db", "Settings database file path")
	serveFlags.StringVar(&opts.storagePath, 0, "storage", "", "Preview storage directory (empty keeps previews in memory)")
	serveFlags.StringVar(&opts.emailjsURL, 0, "emailjs-url", delivery.DefaultEmailJSURL, "EmailJS API base URL")
	serveFlags.StringVar(&opts.emailjsToken, 0, "emailjs-token", "", "EmailJS private key (optional)")
	serveFlags.StringVar(&opts.authUser, 0, "auth-user", "", "Basic auth username (optional)")
	serveFlags.StringVar(&opts.authPass, 0, "auth-pass", "", "Basic auth password (optional)")

	serveCmd := &ff.Command{
		Name:      "serve",
		Usage:     "receipt-catcher serve [FLAGS]",
		ShortHelp: "run the receipt wizard web server",
		Flags:     serveFlags,
		Exec: func(ctx context.Context, args []string) error {
			return serve(ctx, opts)
		},
	}

	scanFlags := ff.NewFlagSet("scan").SetParent(rootFlags)
	scanCmd := &ff.Command{
		Name:      "scan",
		Usage:     "receipt-catcher scan [FLAGS] FILE...",
		ShortHelp: "classify image files as receipts",
		Flags:     scanFlags,
		Exec: func(ctx context.Context, args []string) error {
			return scan(ctx, opts, args, stdout)
		},
	}

	root := &ff.Command{
		Name:        "receipt-catcher",
		Usage:       "receipt-catcher <SUBCOMMAND> [FLAGS]",
		ShortHelp:   "find receipts among photos and email them",
		Flags:       rootFlags,
		Subcommands: []*ff.Command{serveCmd, scanCmd},
		Exec: func(ctx context.Context, args []string) error {
			return errors.New("missing subcommand: serve or scan")
		},
	}

	return &rootCommand{Command: root, opts: opts}
}
