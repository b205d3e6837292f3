// Package delivery emails confirmed receipts through an email relay service.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

const (
	fallbackSubject = "Your Receipt"
	bodyText        = "Please find your receipt attached."
)

// ErrNothingToSend is returned when no candidate is both selected and a receipt
var ErrNothingToSend = errors.New("no valid receipts selected")

// Attachment is the file sent along with a message
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Params are the template parameters of a single message
type Params struct {
	ToEmail string
	Subject string
	Message string
}

// Message is one email as handed to a Mailer
type Message struct {
	ServiceID  string
	TemplateID string
	PublicKey  string
	Params     Params
	Attachment Attachment
}

// Mailer sends a single message through the relay service
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Candidate is an image that may be sent
type Candidate struct {
	Attachment Attachment
	Selected   bool
	// IsReceipt is nil while the image has not been classified
	IsReceipt *bool
}

// Qualifies reports whether the candidate is selected and classified as a receipt
func (c Candidate) Qualifies() bool {
	return c.Selected && c.IsReceipt != nil && *c.IsReceipt
}

// Report is the user-facing outcome of a dispatch
type Report struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Sent    int    `json:"-"`
}

// Dispatcher sends qualifying receipts one message at a time
type Dispatcher struct {
	mailer Mailer
}

// NewDispatcher creates a Dispatcher that sends through mailer
func NewDispatcher(mailer Mailer) *Dispatcher {
	return &Dispatcher{mailer: mailer}
}

// Dispatch sends one message per qualifying candidate, in order. The first
// failure stops the run; messages already sent are not retracted. The
// returned report is never nil, and err is non-nil whenever the report is a
// failure.
func (d *Dispatcher) Dispatch(ctx context.Context, candidates []Candidate, cfg Config) (*Report, error) {
	var toSend []Candidate
	for _, c := range candidates {
		if c.Qualifies() {
			toSend = append(toSend, c)
		}
	}

	if len(toSend) == 0 {
		return &Report{Success: false, Message: "No valid receipts selected"}, ErrNothingToSend
	}

	subject := cfg.Subject
	if subject == "" {
		subject = fallbackSubject
	}

	for i, c := range toSend {
		msg := Message{
			ServiceID:  cfg.ServiceID,
			TemplateID: cfg.TemplateID,
			PublicKey:  cfg.PublicKey,
			Params: Params{
				ToEmail: cfg.ToEmail,
				Subject: subject,
				Message: bodyText,
			},
			Attachment: c.Attachment,
		}

		if err := d.mailer.Send(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "Failed to send receipt",
				"filename", c.Attachment.Filename,
				"sent", i,
				"remaining", len(toSend)-i,
				"error", err,
			)
			return &Report{
				Success: false,
				Message: fmt.Sprintf("Failed to send email: %s", err.Error()),
				Sent:    i,
			}, fmt.Errorf("sending %s: %w", c.Attachment.Filename, err)
		}

		slog.InfoContext(ctx, "Sent receipt", "filename", c.Attachment.Filename, "to", cfg.ToEmail)
	}

	return &Report{
		Success: true,
		Message: fmt.Sprintf("Successfully sent %d receipt(s) to %s", len(toSend), cfg.ToEmail),
		Sent:    len(toSend),
	}, nil
}
