package resolver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/avast/retry-go/v4"

	"tunebridge/config"
	"tunebridge/models"
	"tunebridge/services/formathistory"
)

var (
	ErrResolutionExhausted = errors.New("no format candidate yielded a stream")
	ErrNoCandidates        = errors.New("no format candidates configured")
)

// Extractor is the outward face the resolver needs from the extraction
// backend.
type Extractor interface {
	ExtractStream(ctx context.Context, url, format string) (*models.MediaInfo, error)
}

// History is the learned-format store the resolver consults and feeds back.
type History interface {
	CandidateOrder(key string, defaults []string) []string
	Entry(key string) (models.FormatHistoryEntry, bool)
	RecordSuccess(key, format string, device models.DeviceClass) error
	RecordFailure(key, format string) error
}

// Resolution is the outcome of a successful format walk.
type Resolution struct {
	Info        *models.MediaInfo
	Format      string
	FromHistory bool
}

// Service walks ordered format candidates against the extractor until one
// yields a stream URL, recording each outcome so later resolutions of the
// same content converge on the working format.
type Service struct {
	extractor Extractor
	history   History
	settings  config.ResolverSettings
}

func NewService(ext Extractor, history History, settings config.ResolverSettings) *Service {
	return &Service{extractor: ext, history: history, settings: settings}
}

// Resolve tries each candidate format in order. Failures are recorded and
// the walk continues; the first success is recorded and returned. Context
// cancellation aborts immediately without recording an outcome.
func (s *Service) Resolve(ctx context.Context, contentID, url string, kind models.MediaKind, device models.DeviceClass) (*Resolution, error) {
	defaults := s.defaultOrder(kind, device)
	if len(defaults) == 0 {
		return nil, ErrNoCandidates
	}

	key := formathistory.Key(contentID, kind)
	candidates := s.history.CandidateOrder(key, defaults)
	if len(candidates) == 0 {
		candidates = defaults
	}

	entry, hasEntry := s.history.Entry(key)

	for _, format := range candidates {
		info, err := s.attempt(ctx, url, format)
		if err == nil && (info == nil || info.StreamURL == "") {
			err = errors.New("extraction yielded no stream url")
		}
		if err == nil {
			if recErr := s.history.RecordSuccess(key, format, device); recErr != nil {
				log.Printf("[resolver] record success for %s: %v", key, recErr)
			}
			return &Resolution{
				Info:        info,
				Format:      format,
				FromHistory: hasEntry && entry.SuccessFormat == format,
			}, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		log.Printf("[resolver] %s: format %q failed: %v", key, format, err)
		if recErr := s.history.RecordFailure(key, format); recErr != nil {
			log.Printf("[resolver] record failure for %s: %v", key, recErr)
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrResolutionExhausted, contentID)
}

// ResolveDirect is a single-shot extraction that touches neither the cache
// nor the history. Passthrough clients use it.
func (s *Service) ResolveDirect(ctx context.Context, url, format string) (*models.MediaInfo, error) {
	return s.attempt(ctx, url, format)
}

// DownloadOrder returns the background-download candidate list for a
// content id, reordered by what the history has learned.
func (s *Service) DownloadOrder(contentID string) []string {
	key := formathistory.Key(contentID, models.MediaKindAudio)
	return s.history.CandidateOrder(key, s.settings.DownloadFormats)
}

func (s *Service) attempt(ctx context.Context, url, format string) (*models.MediaInfo, error) {
	attempts := uint(s.settings.MaxAttempts)
	if attempts == 0 {
		attempts = 1
	}
	timeout := time.Duration(s.settings.AttemptTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	return retry.DoWithData(
		func() (*models.MediaInfo, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return s.extractor.ExtractStream(attemptCtx, url, format)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled)
		}),
	)
}

func (s *Service) defaultOrder(kind models.MediaKind, device models.DeviceClass) []string {
	switch {
	case kind == models.MediaKindVideo:
		return s.settings.VideoFormats
	case device == models.DeviceMobile && len(s.settings.MobileStreamFormats) > 0:
		return s.settings.MobileStreamFormats
	default:
		return s.settings.StreamFormats
	}
}
