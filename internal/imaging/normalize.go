package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"math"
	"strings"

	"golang.org/x/image/draw"
)

// Payload is an uploaded image: its bytes plus the declared name and type.
type Payload struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the payload size in bytes
func (p Payload) Size() int {
	return len(p.Data)
}

// Options bounds the normalized output
type Options struct {
	MaxWidth  int
	MaxHeight int
	Quality   float64 // 0.0-1.0
}

// DefaultOptions returns the bounds used for uploaded photos
func DefaultOptions() Options {
	return Options{
		MaxWidth:  1200,
		MaxHeight: 1600,
		Quality:   0.7,
	}
}

// Result is the outcome of a normalization
type Result struct {
	Payload Payload
	// Preview is a self-contained data URL of Payload.
	Preview string
	// Reencoded is false when the original payload was kept.
	Reencoded bool
}

// PreviewFunc builds a displayable preview for a payload
type PreviewFunc func(Payload) (string, error)

// ErrEmptyPayload is returned when a preview is requested for a payload with no bytes
var ErrEmptyPayload = errors.New("empty payload")

// Normalizer resizes and re-encodes uploaded images
type Normalizer struct {
	opts    Options
	preview PreviewFunc
}

// NewNormalizer creates a Normalizer producing data URL previews
func NewNormalizer(opts Options) *Normalizer {
	return NewNormalizerWithPreview(opts, DataURL)
}

// NewNormalizerWithPreview creates a Normalizer with a custom preview builder for testing
func NewNormalizerWithPreview(opts Options, preview PreviewFunc) *Normalizer {
	def := DefaultOptions()
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = def.MaxWidth
	}
	if opts.MaxHeight <= 0 {
		opts.MaxHeight = def.MaxHeight
	}
	if opts.Quality <= 0 || opts.Quality > 1 {
		opts.Quality = def.Quality
	}
	return &Normalizer{opts: opts, preview: preview}
}

// Normalize bounds the payload's dimensions and re-encodes it.
//
// Any failure while decoding, encoding or previewing the re-encoded payload
// falls back to the original payload. An error is only returned when the
// preview of the original cannot be produced either.
func (n *Normalizer) Normalize(ctx context.Context, original Payload) (*Result, error) {
	compressed, err := n.compress(original)
	if err != nil {
		slog.WarnContext(ctx, "Image compression failed, using original",
			"filename", original.Name,
			"content_type", original.ContentType,
			"file_size", original.Size(),
			"error", err,
		)
		return n.fallback(original)
	}

	out := compressed
	reencoded := true
	// The re-encoded image must never be heavier than what was uploaded
	if compressed.Size() > original.Size() {
		out = original
		reencoded = false
	}

	preview, err := n.preview(out)
	if err != nil {
		slog.WarnContext(ctx, "Preview generation failed, using original",
			"filename", original.Name,
			"error", err,
		)
		return n.fallback(original)
	}

	return &Result{Payload: out, Preview: preview, Reencoded: reencoded}, nil
}

func (n *Normalizer) fallback(original Payload) (*Result, error) {
	preview, err := n.preview(original)
	if err != nil {
		return nil, fmt.Errorf("creating preview of original: %w", err)
	}
	return &Result{Payload: original, Preview: preview}, nil
}

// compress decodes, resizes and JPEG-encodes the payload
func (n *Normalizer) compress(p Payload) (Payload, error) {
	src, err := Decode(p.Data, p.ContentType)
	if err != nil {
		return Payload{}, err
	}

	b := src.Bounds()
	width, height := FitWithin(b.Dx(), b.Dy(), n.opts.MaxWidth, n.opts.MaxHeight)
	if width <= 0 || height <= 0 {
		return Payload{}, fmt.Errorf("invalid image dimensions %dx%d", b.Dx(), b.Dy())
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if width == b.Dx() && height == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality(n.opts.Quality)}); err != nil {
		return Payload{}, fmt.Errorf("encoding JPEG: %w", err)
	}

	return Payload{
		Name:        p.Name,
		ContentType: "image/jpeg",
		Data:        buf.Bytes(),
	}, nil
}

// FitWithin returns the target dimensions for an image of width x height.
// The longer side is clamped to its bound and the other side scaled
// proportionally; images already within bounds are never upscaled.
func FitWithin(width, height, maxWidth, maxHeight int) (int, int) {
	if width >= height {
		if width > maxWidth {
			height = max(1, int(math.Round(float64(height)*float64(maxWidth)/float64(width))))
			width = maxWidth
		}
	} else {
		if height > maxHeight {
			width = max(1, int(math.Round(float64(width)*float64(maxHeight)/float64(height))))
			height = maxHeight
		}
	}
	return width, height
}

func jpegQuality(q float64) int {
	quality := int(math.Round(q * 100))
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	return quality
}

// DataURL encodes a payload as a data URL suitable for direct display
func DataURL(p Payload) (string, error) {
	if len(p.Data) == 0 {
		return "", ErrEmptyPayload
	}
	contentType := p.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(p.Data), nil
}

// DecodeDataURL is the inverse of DataURL
func DecodeDataURL(url string) (Payload, error) {
	const prefix = "data:"
	const marker = ";base64,"
	if !strings.HasPrefix(url, prefix) {
		return Payload{}, fmt.Errorf("not a data URL")
	}
	rest := strings.TrimPrefix(url, prefix)
	i := strings.Index(rest, marker)
	if i < 0 {
		return Payload{}, fmt.Errorf("data URL is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(rest[i+len(marker):])
	if err != nil {
		return Payload{}, fmt.Errorf("decoding data URL: %w", err)
	}
	return Payload{ContentType: rest[:i], Data: data}, nil
}
