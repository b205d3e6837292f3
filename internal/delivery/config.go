package delivery

import (
	"errors"
	"regexp"
)

// DefaultSubject is the subject a fresh configuration starts with
const DefaultSubject = "Receipts from Receipt Scanner"

// ErrInvalidConfig is matched by every error returned from Config.Validate
var ErrInvalidConfig = errors.New("invalid email configuration")

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Config holds the EmailJS credentials and the recipient of the receipts.
// It is persisted as-is, so the JSON keys are part of the stored format.
type Config struct {
	ServiceID  string `json:"serviceId"`
	TemplateID string `json:"templateId"`
	PublicKey  string `json:"publicKey"`
	ToEmail    string `json:"toEmail"`
	Subject    string `json:"subject"`
}

// DefaultConfig returns an empty configuration with the default subject
func DefaultConfig() Config {
	return Config{Subject: DefaultSubject}
}

// ConfigUpdate is a partial edit; nil fields are left untouched
type ConfigUpdate struct {
	ServiceID  *string `json:"serviceId,omitempty"`
	TemplateID *string `json:"templateId,omitempty"`
	PublicKey  *string `json:"publicKey,omitempty"`
	ToEmail    *string `json:"toEmail,omitempty"`
	Subject    *string `json:"subject,omitempty"`
}

// Merge applies the non-nil fields of u to a copy of c
func (c Config) Merge(u ConfigUpdate) Config {
	if u.ServiceID != nil {
		c.ServiceID = *u.ServiceID
	}
	if u.TemplateID != nil {
		c.TemplateID = *u.TemplateID
	}
	if u.PublicKey != nil {
		c.PublicKey = *u.PublicKey
	}
	if u.ToEmail != nil {
		c.ToEmail = *u.ToEmail
	}
	if u.Subject != nil {
		c.Subject = *u.Subject
	}
	return c
}

// ConfigError describes the first problem found in a Config.
// Its message is meant to be shown to the user verbatim.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

// Is reports ConfigError as an ErrInvalidConfig
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Validate checks that the configuration is complete enough to send with.
// The recipient format is only checked here, never while editing.
func (c Config) Validate() error {
	switch {
	case c.ServiceID == "":
		return &ConfigError{Message: "Email service ID is required"}
	case c.TemplateID == "":
		return &ConfigError{Message: "Email template ID is required"}
	case c.PublicKey == "":
		return &ConfigError{Message: "Email public key is required"}
	case c.ToEmail == "":
		return &ConfigError{Message: "Recipient email is required"}
	case !emailPattern.MatchString(c.ToEmail):
		return &ConfigError{Message: "Please enter a valid email address"}
	}
	return nil
}
