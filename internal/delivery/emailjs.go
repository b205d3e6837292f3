package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

// DefaultEmailJSURL is the public EmailJS API
const DefaultEmailJSURL = "https://api.emailjs.com"

// EmailJS implements Mailer using the EmailJS form endpoint
type EmailJS struct {
	baseURL     string
	accessToken string
	client      *http.Client
}

// NewEmailJS creates an EmailJS mailer. accessToken is the optional private
// key required by accounts that block non-browser API calls.
func NewEmailJS(baseURL string, accessToken string) *EmailJS {
	if baseURL == "" {
		baseURL = DefaultEmailJSURL
	}

	return &EmailJS{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		client:      &http.Client{},
	}
}

// Send posts the message and its attachment as a multipart form
func (e *EmailJS) Send(ctx context.Context, msg Message) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	fields := [][2]string{
		{"service_id", msg.ServiceID},
		{"template_id", msg.TemplateID},
		{"user_id", msg.PublicKey},
		{"to_email", msg.Params.ToEmail},
		{"subject", msg.Params.Subject},
		{"message", msg.Params.Message},
	}
	if e.accessToken != "" {
		fields = append(fields, [2]string{"accessToken", e.accessToken})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("writing field %s: %w", f[0], err)
		}
	}

	if len(msg.Attachment.Data) > 0 {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="attachment"; filename=%q`, msg.Attachment.Filename))
		contentType := msg.Attachment.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h.Set("Content-Type", contentType)

		part, err := w.CreatePart(h)
		if err != nil {
			return fmt.Errorf("creating attachment part: %w", err)
		}
		if _, err := part.Write(msg.Attachment.Data); err != nil {
			return fmt.Errorf("writing attachment: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("closing form: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1.0/email/send-form", e.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, &body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling emailjs API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("emailjs API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(text)))
	}

	return nil
}
