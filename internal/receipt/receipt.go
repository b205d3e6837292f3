package receipt

import (
	"fmt"

	"github.com/zombor/receipt-catcher/internal/delivery"
	"github.com/zombor/receipt-catcher/internal/wizard"
)

// Image is the JSON view of an uploaded image, without its bytes
type Image struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	ContentType string  `json:"content_type"`
	Size        int     `json:"size"`
	PreviewURL  string  `json:"preview_url,omitempty"`
	IsReceipt   *bool   `json:"is_receipt"` // null until classified
	Confidence  float64 `json:"confidence"`
	IsSelected  bool    `json:"is_selected"`
	Error       string  `json:"error,omitempty"`
}

// Session is the JSON view of the wizard
type Session struct {
	Step            wizard.Step     `json:"step"`
	Images          []Image         `json:"images"`
	Processing      bool            `json:"processing"`
	Pending         int             `json:"pending"`
	Sending         bool            `json:"sending"`
	SelectedCount   int             `json:"selected_count"`
	ReceiptCount    int             `json:"receipt_count"`
	QualifyingCount int             `json:"qualifying_count"`
	Config          delivery.Config `json:"config"`
	Notice          *wizard.Notice  `json:"notice,omitempty"`
}

func previewURL(id string) string {
	return fmt.Sprintf("/api/images/%s/preview", id)
}

// newSession builds the view of a wizard state
func newSession(s wizard.State) *Session {
	images := make([]Image, 0, len(s.Images))
	for _, img := range s.Images {
		view := Image{
			ID:          img.ID,
			Name:        img.Payload.Name,
			ContentType: img.Payload.ContentType,
			Size:        img.Payload.Size(),
			IsReceipt:   img.IsReceipt,
			Confidence:  img.Confidence,
			IsSelected:  img.IsSelected,
			Error:       img.Error,
		}
		if img.PreviewRef != "" {
			view.PreviewURL = previewURL(img.ID)
		}
		images = append(images, view)
	}

	return &Session{
		Step:            s.Step,
		Images:          images,
		Processing:      s.Processing(),
		Pending:         s.Pending,
		Sending:         s.Sending,
		SelectedCount:   s.SelectedCount(),
		ReceiptCount:    s.ReceiptCount(),
		QualifyingCount: len(s.Qualifying()),
		Config:          s.Config,
		Notice:          s.Notice,
	}
}
