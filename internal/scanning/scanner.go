package scanning

import "context"

// Scanner extracts the text printed on an image.
//
// Implementations must release anything they allocate for a call before
// returning, since a session may invoke them for every uploaded photo.
type Scanner interface {
	// ExtractText returns the plain text recognized in the image/PDF
	ExtractText(ctx context.Context, imageData []byte, contentType string) (string, error)
	// Close closes the scanner and releases resources
	Close() error
}

// transcribePrompt is the shared prompt used by the LLM providers
const transcribePrompt = `Transcribe all text visible in this image exactly as printed, line by line.

Important:
- Return only the transcribed text, in plain text
- Do not summarize, translate, or correct the text
- Do not add any commentary before or after the text
- Do not use markdown code blocks
- If the image contains no readable text, return an empty response`
