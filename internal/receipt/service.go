package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/zombor/receipt-catcher/internal/classify"
	"github.com/zombor/receipt-catcher/internal/delivery"
	"github.com/zombor/receipt-catcher/internal/imaging"
	"github.com/zombor/receipt-catcher/internal/wizard"
)

var (
	// ErrBusy is returned by Send while images are processing or a send is in flight
	ErrBusy = errors.New("processing in progress")
	// ErrImageNotFound is returned for IDs that are not in the image list
	ErrImageNotFound = errors.New("image not found")
	// ErrClosed is returned by AddImages after Close
	ErrClosed = errors.New("session closed")
)

const processingError = "Error processing image"

// IDGenerator generates unique IDs for images
type IDGenerator interface {
	Generate() string
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// Normalizer resizes and re-encodes an uploaded image
type Normalizer interface {
	Normalize(ctx context.Context, original imaging.Payload) (*imaging.Result, error)
}

// Classifier decides whether an image is a receipt
type Classifier interface {
	Classify(ctx context.Context, p imaging.Payload) classify.Result
}

// Dispatcher emails the qualifying images
type Dispatcher interface {
	Dispatch(ctx context.Context, candidates []delivery.Candidate, cfg delivery.Config) (*delivery.Report, error)
}

// Deps are the collaborators of a Service
type Deps struct {
	DB         DB
	Previews   *PreviewStore
	Normalizer Normalizer
	Classifier Classifier
	Dispatcher Dispatcher
	// Concurrency bounds how many images are processed at once
	Concurrency int
	// IDGenerator defaults to random UUIDs
	IDGenerator IDGenerator
	// Metrics is optional
	Metrics *Metrics
}

// taskResult is the completion of one image's processing
type taskResult struct {
	id      string
	intent  wizard.Intent
	preview string // preview ref created by the task, if any
}

// Service is the wizard session. Every image gets its own processing task;
// completions are merged into the state by a single aggregator goroutine.
type Service struct {
	db          DB
	previews    *PreviewStore
	normalizer  Normalizer
	classifier  Classifier
	dispatcher  Dispatcher
	idGenerator IDGenerator
	metrics     *Metrics

	sem     *semaphore.Weighted
	results chan taskResult
	tasks   sync.WaitGroup
	done    chan struct{}

	mu     sync.Mutex
	state  wizard.State
	seq    uint64
	closed bool
}

// NewService creates a Service and starts its aggregator. The saved delivery
// configuration is loaded once here.
func NewService(deps Deps) *Service {
	if deps.Concurrency < 1 {
		deps.Concurrency = classify.DefaultConcurrency
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = &uuidGenerator{}
	}

	cfg, err := deps.DB.LoadDeliveryConfig()
	if err != nil {
		slog.Warn("Failed to load delivery config, using defaults", "error", err)
		cfg = delivery.DefaultConfig()
	}

	s := &Service{
		db:          deps.DB,
		previews:    deps.Previews,
		normalizer:  deps.Normalizer,
		classifier:  deps.Classifier,
		dispatcher:  deps.Dispatcher,
		idGenerator: deps.IDGenerator,
		metrics:     deps.Metrics,
		sem:         semaphore.NewWeighted(int64(deps.Concurrency)),
		results:     make(chan taskResult),
		done:        make(chan struct{}),
		state:       wizard.New(cfg),
	}
	s.previews.OnChange(s.metrics.SetLivePreviews)

	go s.aggregate()

	return s
}

// State returns the current wizard state
func (s *Service) State() wizard.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AddImages appends the uploaded images and starts processing each of them.
// It returns the IDs of the new images in upload order.
func (s *Service) AddImages(payloads []imaging.Payload) ([]string, error) {
	if len(payloads) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	images := make([]wizard.Image, 0, len(payloads))
	ids := make([]string, 0, len(payloads))
	for _, p := range payloads {
		img := wizard.Image{
			ID:         s.idGenerator.Generate(),
			Payload:    p,
			IsSelected: true,
		}
		img.PreviewRef = s.storePreview(img.ID, p)
		images = append(images, img)
		ids = append(ids, img.ID)
	}

	s.apply(wizard.FilesAdded{Images: images})
	s.metrics.uploaded(len(images))

	s.tasks.Add(len(images))
	for _, img := range images {
		go s.process(img)
	}

	slog.Info("Added images", "count", len(images))
	return ids, nil
}

// storePreview creates a preview resource from p and returns its ref, or ""
// when no preview could be made
func (s *Service) storePreview(id string, p imaging.Payload) string {
	dataURL, err := imaging.DataURL(p)
	if err != nil {
		slog.Warn("Failed to create preview", "id", id, "filename", p.Name, "error", err)
		return ""
	}
	return s.putPreview(id, dataURL)
}

func (s *Service) putPreview(id string, dataURL string) string {
	s.seq++
	ref := fmt.Sprintf("%s-%d", id, s.seq)
	if err := s.previews.Put(ref, dataURL); err != nil {
		slog.Warn("Failed to store preview", "id", id, "error", err)
		return ""
	}
	return ref
}

// process normalizes and classifies a single image and publishes the result.
// Tasks are not tied to any request, so they run to completion.
func (s *Service) process(img wizard.Image) {
	defer s.tasks.Done()

	ctx := context.Background()
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer s.sem.Release(1)

	normalized, err := s.normalizer.Normalize(ctx, img.Payload)
	if err != nil {
		slog.Error("Failed to process image", "id", img.ID, "filename", img.Payload.Name, "error", err)
		s.metrics.failed()
		s.results <- taskResult{
			id:     img.ID,
			intent: wizard.ImageFailed{ID: img.ID, Error: processingError},
		}
		return
	}

	s.mu.Lock()
	ref := s.putPreview(img.ID, normalized.Preview)
	s.mu.Unlock()
	if ref == "" {
		ref = img.PreviewRef
	}

	result := s.classifier.Classify(ctx, normalized.Payload)

	s.results <- taskResult{
		id: img.ID,
		intent: wizard.ImageProcessed{
			ID:         img.ID,
			Payload:    normalized.Payload,
			PreviewRef: ref,
			Result:     result,
		},
		preview: ref,
	}
}

// aggregate merges task completions into the state in arrival order
func (s *Service) aggregate() {
	defer close(s.done)

	for r := range s.results {
		s.mu.Lock()
		_, present := s.state.Image(r.id)
		s.apply(r.intent)
		if !present && r.preview != "" {
			// The image was removed while it was processing
			s.previews.Release(r.preview)
		}
		s.mu.Unlock()
	}
}

// apply reduces intent into the state and releases the previews the new
// state no longer references. Must be called with s.mu held.
func (s *Service) apply(intent wizard.Intent) {
	prev := s.state
	next := wizard.Reduce(prev, intent)

	nextRefs := next.PreviewRefs()
	for ref := range prev.PreviewRefs() {
		if _, ok := nextRefs[ref]; !ok {
			s.previews.Release(ref)
		}
	}

	s.state = next
}

// SetSelection includes or excludes an image from sending
func (s *Service) SetSelection(id string, selected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.Image(id); !ok {
		return fmt.Errorf("%w: %s", ErrImageNotFound, id)
	}
	s.apply(wizard.SelectionChanged{ID: id, Selected: selected})
	return nil
}

// UpdateConfig edits the delivery configuration and persists the result
func (s *Service) UpdateConfig(update delivery.ConfigUpdate) (delivery.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.apply(wizard.ConfigChanged{Update: update})
	cfg := s.state.Config
	if err := s.db.SaveDeliveryConfig(cfg); err != nil {
		return cfg, fmt.Errorf("saving delivery config: %w", err)
	}
	return cfg, nil
}

// Next moves the wizard one step forward
func (s *Service) Next() wizard.State {
	return s.transition(wizard.StepForward{})
}

// Back moves the wizard one step back
func (s *Service) Back() wizard.State {
	return s.transition(wizard.StepBack{})
}

// Clear removes every image and releases their previews
func (s *Service) Clear() wizard.State {
	return s.transition(wizard.ImagesCleared{})
}

// DismissNotice hides the current notice
func (s *Service) DismissNotice() wizard.State {
	return s.transition(wizard.NoticeDismissed{})
}

func (s *Service) transition(intent wizard.Intent) wizard.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(intent)
	return s.state
}

// Preview returns the preview currently shown for an image
func (s *Service) Preview(id string) ([]byte, string, error) {
	s.mu.Lock()
	img, ok := s.state.Image(id)
	s.mu.Unlock()
	if !ok || img.PreviewRef == "" {
		return nil, "", fmt.Errorf("%w: %s", ErrImageNotFound, id)
	}

	data, contentType, err := s.previews.Get(img.PreviewRef)
	if err != nil {
		return nil, "", fmt.Errorf("getting preview: %w", err)
	}
	return data, contentType, nil
}

// Send emails every selected receipt. The outcome is also recorded as the
// wizard notice; a successful send resets the wizard.
func (s *Service) Send(ctx context.Context) (*delivery.Report, error) {
	s.mu.Lock()

	if s.state.Processing() {
		s.mu.Unlock()
		return nil, ErrBusy
	}

	if len(s.state.Qualifying()) == 0 {
		report := &delivery.Report{Success: false, Message: "No valid receipts selected"}
		s.apply(wizard.SendFailed{Message: report.Message})
		s.mu.Unlock()
		return report, delivery.ErrNothingToSend
	}

	cfg := s.state.Config
	if err := cfg.Validate(); err != nil {
		report := &delivery.Report{Success: false, Message: err.Error()}
		s.apply(wizard.SendFailed{Message: report.Message})
		s.mu.Unlock()
		return report, err
	}

	candidates := s.state.Candidates()
	s.apply(wizard.SendStarted{})
	s.mu.Unlock()

	if err := s.db.SaveDeliveryConfig(cfg); err != nil {
		slog.WarnContext(ctx, "Failed to save delivery config before sending", "error", err)
	}

	report, err := s.dispatcher.Dispatch(ctx, candidates, cfg)
	if report == nil {
		report = &delivery.Report{Success: false, Message: "Failed to send emails"}
	}
	s.metrics.sent(report.Sent, err == nil)

	s.mu.Lock()
	if err != nil {
		s.apply(wizard.SendFailed{Message: report.Message})
	} else {
		s.apply(wizard.SendSucceeded{Message: report.Message})
	}
	s.mu.Unlock()

	return report, err
}

// Close waits for in-flight tasks, stops the aggregator and releases every
// remaining preview
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.tasks.Wait()
	close(s.results)
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()
	for ref := range s.state.PreviewRefs() {
		s.previews.Release(ref)
	}
	return nil
}
