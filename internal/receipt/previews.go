package receipt

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/zombor/receipt-catcher/internal/imaging"
)

// PreviewStore owns the preview resources shown for uploaded images.
// Each resource is released at most once; releasing an unknown or already
// released key is a no-op.
type PreviewStore struct {
	storage Storage

	mu           sync.Mutex
	contentTypes map[string]string
	released     map[string]struct{}
	onChange     func(live int)
}

// NewPreviewStore creates a PreviewStore keeping blobs in storage
func NewPreviewStore(storage Storage) *PreviewStore {
	return &PreviewStore{
		storage:      storage,
		contentTypes: make(map[string]string),
		released:     make(map[string]struct{}),
	}
}

// Put decodes a data URL preview and stores it under ref
func (p *PreviewStore) Put(ref string, dataURL string) error {
	payload, err := imaging.DecodeDataURL(dataURL)
	if err != nil {
		return fmt.Errorf("decoding preview: %w", err)
	}
	if err := p.storage.Save(ref, payload.Data); err != nil {
		return fmt.Errorf("saving preview: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.contentTypes[ref] = payload.ContentType
	delete(p.released, ref)
	p.notify()
	return nil
}

// Get returns the preview bytes and content type stored under ref
func (p *PreviewStore) Get(ref string) ([]byte, string, error) {
	p.mu.Lock()
	contentType, ok := p.contentTypes[ref]
	p.mu.Unlock()
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrBlobNotFound, ref)
	}

	data, err := p.storage.Get(ref)
	if err != nil {
		return nil, "", err
	}
	return data, contentType, nil
}

// Release frees the preview stored under ref and reports whether it was live
func (p *PreviewStore) Release(ref string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.contentTypes[ref]; !ok {
		return false
	}
	delete(p.contentTypes, ref)
	p.released[ref] = struct{}{}
	p.notify()

	if err := p.storage.Delete(ref); err != nil {
		slog.Warn("Failed to delete preview", "ref", ref, "error", err)
	}
	return true
}

// Released reports whether ref has been released
func (p *PreviewStore) Released(ref string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.released[ref]
	return ok
}

// Live is the number of previews not yet released
func (p *PreviewStore) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.contentTypes)
}

// OnChange registers a callback receiving the live count after every change
func (p *PreviewStore) OnChange(fn func(live int)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = fn
}

// notify must be called with p.mu held
func (p *PreviewStore) notify() {
	if p.onChange != nil {
		p.onChange(len(p.contentTypes))
	}
}
