// Package wizard holds the state of the upload, review and email wizard.
// State only changes through Reduce.
package wizard

import (
	"github.com/zombor/receipt-catcher/internal/delivery"
	"github.com/zombor/receipt-catcher/internal/imaging"
)

// Step is a page of the wizard
type Step string

const (
	StepUpload Step = "upload"
	StepReview Step = "review"
	StepEmail  Step = "email"
)

var steps = []Step{StepUpload, StepReview, StepEmail}

// Severity of a notice
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Notice is a transient message for the user
type Notice struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Image is an uploaded image and what is known about it so far
type Image struct {
	ID      string
	Payload imaging.Payload
	// PreviewRef is the key of the preview resource currently shown
	PreviewRef string
	// IsReceipt is nil until classification completes
	IsReceipt  *bool
	Confidence float64
	IsSelected bool
	Error      string
}

// Qualifies reports whether the image would be sent
func (i Image) Qualifies() bool {
	return i.IsSelected && i.IsReceipt != nil && *i.IsReceipt
}

// Candidate converts the image for the dispatcher
func (i Image) Candidate() delivery.Candidate {
	return delivery.Candidate{
		Attachment: delivery.Attachment{
			Filename:    i.Payload.Name,
			ContentType: i.Payload.ContentType,
			Data:        i.Payload.Data,
		},
		Selected:  i.IsSelected,
		IsReceipt: i.IsReceipt,
	}
}

// State is the whole wizard
type State struct {
	Step   Step
	Images []Image
	// Pending counts images whose normalization and classification has not finished
	Pending int
	Sending bool
	Config  delivery.Config
	Notice  *Notice
}

// New returns the initial state for the given configuration
func New(cfg delivery.Config) State {
	return State{Step: StepUpload, Config: cfg}
}

// Processing is true while any image is pending or a send is in flight
func (s State) Processing() bool {
	return s.Pending > 0 || s.Sending
}

// Image returns the image with the given ID
func (s State) Image(id string) (Image, bool) {
	for _, img := range s.Images {
		if img.ID == id {
			return img, true
		}
	}
	return Image{}, false
}

// SelectedCount is the number of images the user has selected
func (s State) SelectedCount() int {
	n := 0
	for _, img := range s.Images {
		if img.IsSelected {
			n++
		}
	}
	return n
}

// ReceiptCount is the number of images classified as receipts
func (s State) ReceiptCount() int {
	n := 0
	for _, img := range s.Images {
		if img.IsReceipt != nil && *img.IsReceipt {
			n++
		}
	}
	return n
}

// Qualifying returns the images that are both selected and receipts, in order
func (s State) Qualifying() []Image {
	var out []Image
	for _, img := range s.Images {
		if img.Qualifies() {
			out = append(out, img)
		}
	}
	return out
}

// Candidates converts every image for the dispatcher
func (s State) Candidates() []delivery.Candidate {
	out := make([]delivery.Candidate, 0, len(s.Images))
	for _, img := range s.Images {
		out = append(out, img.Candidate())
	}
	return out
}

// PreviewRefs returns the set of preview keys referenced by the state
func (s State) PreviewRefs() map[string]struct{} {
	refs := make(map[string]struct{}, len(s.Images))
	for _, img := range s.Images {
		if img.PreviewRef != "" {
			refs[img.PreviewRef] = struct{}{}
		}
	}
	return refs
}
