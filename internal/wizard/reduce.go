package wizard

import (
	"github.com/zombor/receipt-catcher/internal/classify"
	"github.com/zombor/receipt-catcher/internal/delivery"
	"github.com/zombor/receipt-catcher/internal/imaging"
)

// Intent is a request to change the wizard state
type Intent interface {
	intent()
}

// FilesAdded appends new images and returns to the upload step
type FilesAdded struct {
	Images []Image
}

// ImageProcessed replaces an image with its normalized payload and classification
type ImageProcessed struct {
	ID         string
	Payload    imaging.Payload
	PreviewRef string
	Result     classify.Result
}

// ImageFailed marks an image whose processing failed
type ImageFailed struct {
	ID    string
	Error string
}

// SelectionChanged includes or excludes an image from sending
type SelectionChanged struct {
	ID       string
	Selected bool
}

// ConfigChanged edits the delivery configuration
type ConfigChanged struct {
	Update delivery.ConfigUpdate
}

type (
	StepForward     struct{}
	StepBack        struct{}
	SendStarted     struct{}
	ImagesCleared   struct{}
	NoticeDismissed struct{}
)

// SendSucceeded resets the wizard after a completed send
type SendSucceeded struct {
	Message string
}

// SendFailed reports a send that was rejected or aborted
type SendFailed struct {
	Message string
}

func (FilesAdded) intent()       {}
func (ImageProcessed) intent()   {}
func (ImageFailed) intent()      {}
func (SelectionChanged) intent() {}
func (ConfigChanged) intent()    {}
func (StepForward) intent()      {}
func (StepBack) intent()         {}
func (SendStarted) intent()      {}
func (SendSucceeded) intent()    {}
func (SendFailed) intent()       {}
func (ImagesCleared) intent()    {}
func (NoticeDismissed) intent()  {}

// Reduce returns the state that follows s after intent. It never modifies s;
// images are replaced as whole records. Completions for images no longer in
// the list only settle the pending count.
func Reduce(s State, intent Intent) State {
	switch in := intent.(type) {
	case FilesAdded:
		if len(in.Images) == 0 {
			return s
		}
		images := make([]Image, 0, len(s.Images)+len(in.Images))
		images = append(images, s.Images...)
		images = append(images, in.Images...)
		s.Images = images
		s.Pending += len(in.Images)
		s.Step = StepUpload

	case ImageProcessed:
		s.Pending = settle(s.Pending)
		s.Images = replace(s.Images, in.ID, func(img Image) Image {
			isReceipt := in.Result.IsReceipt
			img.Payload = in.Payload
			img.PreviewRef = in.PreviewRef
			img.IsReceipt = &isReceipt
			img.Confidence = in.Result.Confidence
			img.Error = ""
			return img
		})

	case ImageFailed:
		s.Pending = settle(s.Pending)
		s.Images = replace(s.Images, in.ID, func(img Image) Image {
			img.Error = in.Error
			return img
		})

	case SelectionChanged:
		s.Images = replace(s.Images, in.ID, func(img Image) Image {
			img.IsSelected = in.Selected
			return img
		})

	case ConfigChanged:
		s.Config = s.Config.Merge(in.Update)

	case StepForward:
		s.Step = move(s.Step, 1)

	case StepBack:
		s.Step = move(s.Step, -1)

	case SendStarted:
		s.Sending = true
		s.Notice = nil

	case SendSucceeded:
		s.Sending = false
		s.Step = StepUpload
		s.Images = nil
		s.Notice = &Notice{Message: in.Message, Severity: SeveritySuccess}

	case SendFailed:
		s.Sending = false
		s.Notice = &Notice{Message: in.Message, Severity: SeverityError}

	case ImagesCleared:
		s.Images = nil
		s.Step = StepUpload

	case NoticeDismissed:
		s.Notice = nil
	}

	return s
}

func settle(pending int) int {
	if pending > 0 {
		return pending - 1
	}
	return 0
}

// replace returns a copy of images with the image matching id passed through fn.
// The original slice is returned untouched when id is absent.
func replace(images []Image, id string, fn func(Image) Image) []Image {
	for i, img := range images {
		if img.ID != id {
			continue
		}
		out := make([]Image, len(images))
		copy(out, images)
		out[i] = fn(img)
		return out
	}
	return images
}

func move(current Step, delta int) Step {
	for i, step := range steps {
		if step != current {
			continue
		}
		next := i + delta
		if next < 0 || next >= len(steps) {
			return current
		}
		return steps[next]
	}
	return StepUpload
}
