package download

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"tunebridge/models"
	"tunebridge/services/formathistory"
)

// Downloader is the extractor face the coordinator needs.
type Downloader interface {
	Download(ctx context.Context, contentID, url, format string) (string, error)
}

// History records download format outcomes.
type History interface {
	RecordSuccess(key, format string, device models.DeviceClass) error
	RecordFailure(key, format string) error
}

// Cache answers whether a content id is already on disk.
type Cache interface {
	Exists(contentID string) bool
}

// FormatSource supplies the ordered download format candidates for an id.
type FormatSource interface {
	DownloadOrder(contentID string) []string
}

// Coordinator runs at most one background fetch per content id. Callers
// fire and forget; fetch failures are logged, never surfaced. The in-flight
// slot is released on every exit path including panics.
type Coordinator struct {
	downloader Downloader
	history    History
	cache      Cache
	formats    FormatSource

	mu       sync.Mutex
	inflight map[string]struct{}
	closed   bool

	wg     conc.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewCoordinator(dl Downloader, history History, cache Cache, formats FormatSource) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		downloader: dl,
		history:    history,
		cache:      cache,
		formats:    formats,
		inflight:   make(map[string]struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// EnsureCached starts a background fetch for the content id unless the file
// is already cached, a fetch is already in flight, or the coordinator is
// shutting down. It reports whether a fetch was started.
func (c *Coordinator) EnsureCached(contentID, url string, device models.DeviceClass) bool {
	contentID = strings.TrimSpace(contentID)
	if contentID == "" || c.cache.Exists(contentID) {
		return false
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	if _, busy := c.inflight[contentID]; busy {
		c.mu.Unlock()
		return false
	}
	c.inflight[contentID] = struct{}{}
	c.mu.Unlock()

	fetchID := uuid.NewString()[:8]

	c.wg.Go(func() {
		defer c.release(contentID)
		c.fetch(fetchID, contentID, url, device)
	})

	return true
}

// InFlight reports whether a fetch for the content id is running.
func (c *Coordinator) InFlight(contentID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, busy := c.inflight[contentID]
	return busy
}

// Shutdown stops accepting work, cancels running fetches, and waits for
// them until ctx expires.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if recovered := c.wg.WaitAndRecover(); recovered != nil {
			log.Printf("[download] fetch panicked: %v", recovered.Value)
		}
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) release(contentID string) {
	c.mu.Lock()
	delete(c.inflight, contentID)
	c.mu.Unlock()
}

func (c *Coordinator) fetch(fetchID, contentID, url string, device models.DeviceClass) {
	key := formathistory.Key(contentID, models.MediaKindAudio)

	for _, format := range c.formats.DownloadOrder(contentID) {
		if c.ctx.Err() != nil {
			log.Printf("[download] %s: fetch of %s cancelled", fetchID, contentID)
			return
		}

		path, err := c.downloader.Download(c.ctx, contentID, url, format)
		if err == nil {
			if recErr := c.history.RecordSuccess(key, format, device); recErr != nil {
				log.Printf("[download] %s: record success for %s: %v", fetchID, key, recErr)
			}
			log.Printf("[download] %s: cached %s as %s (format %q)", fetchID, contentID, path, format)
			return
		}

		if c.ctx.Err() != nil {
			return
		}

		log.Printf("[download] %s: %s format %q failed: %v", fetchID, contentID, format, err)
		if recErr := c.history.RecordFailure(key, format); recErr != nil {
			log.Printf("[download] %s: record failure for %s: %v", fetchID, key, recErr)
		}
	}

	log.Printf("[download] %s: all formats failed for %s", fetchID, contentID)
}
