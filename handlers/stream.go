package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"tunebridge/internal/probe"
	"tunebridge/models"
	"tunebridge/services/cache"
	"tunebridge/services/catalog"
	"tunebridge/services/download"
	"tunebridge/services/extractor"
	"tunebridge/services/resolver"
	"tunebridge/utils/deviceclass"
	"tunebridge/utils/mediaid"
)

const (
	passthroughAudioFormat = "bestaudio/best"
	passthroughVideoFormat = "best"
	metadataFetchTimeout   = 20 * time.Second
)

type streamResolver interface {
	Resolve(ctx context.Context, contentID, url string, kind models.MediaKind, device models.DeviceClass) (*resolver.Resolution, error)
	ResolveDirect(ctx context.Context, url, format string) (*models.MediaInfo, error)
}

var _ streamResolver = (*resolver.Service)(nil)

type streamCoordinator interface {
	EnsureCached(contentID, url string, device models.DeviceClass) bool
	InFlight(contentID string) bool
}

var _ streamCoordinator = (*download.Coordinator)(nil)

type cacheIndex interface {
	Lookup(contentID string) (cache.CachedFile, bool)
	Exists(contentID string) bool
}

var _ cacheIndex = (*cache.Index)(nil)

type catalogService interface {
	Put(contentID string, entry models.CatalogEntry) error
	Get(contentID string) (models.CatalogEntry, bool)
}

var _ catalogService = (*catalog.Service)(nil)

type durationProber interface {
	Available() bool
	Duration(ctx context.Context, path string) (float64, error)
}

var _ durationProber = (*probe.Prober)(nil)

type metadataExtractor interface {
	ExtractMetadata(ctx context.Context, url string) (*models.MediaInfo, error)
	Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error)
}

var _ metadataExtractor = (*extractor.Service)(nil)

type StreamHandler struct {
	Resolver    streamResolver
	Coordinator streamCoordinator
	Cache       cacheIndex
	Catalog     catalogService
	Prober      durationProber
	Extractor   metadataExtractor
}

func NewStreamHandler(res streamResolver, coord streamCoordinator, idx cacheIndex, cat catalogService, prober durationProber, ext metadataExtractor) *StreamHandler {
	return &StreamHandler{
		Resolver:    res,
		Coordinator: coord,
		Cache:       idx,
		Catalog:     cat,
		Prober:      prober,
		Extractor:   ext,
	}
}

// Stream resolves an audio stream: cached files play instantly from the
// local media endpoint, everything else relays the remote URL while a
// background download fills the cache.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	req, contentID, device, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	if req.SkipCache {
		h.passthrough(w, r, req.URL, contentID, models.MediaKindAudio)
		return
	}

	if cached, hit := h.Cache.Lookup(contentID); hit {
		resp := models.StreamResponse{
			Success:     true,
			AudioURL:    "/api/media/" + contentID,
			ContentID:   contentID,
			LocalFile:   true,
			FromCache:   true,
			InstantPlay: true,
		}
		h.fillMetadata(r.Context(), &resp, contentID, req.URL, cached)
		writeJSON(w, http.StatusOK, resp)
		return
	}

	res, err := h.Resolver.Resolve(r.Context(), contentID, req.URL, models.MediaKindAudio, device)
	if err != nil {
		h.writeResolveError(w, contentID, err)
		return
	}

	h.recordCatalog(contentID, res.Info)
	downloading := h.Coordinator.EnsureCached(contentID, req.URL, device) || h.Coordinator.InFlight(contentID)

	writeJSON(w, http.StatusOK, models.StreamResponse{
		Success:         true,
		AudioURL:        res.Info.StreamURL,
		Title:           res.Info.Title,
		DurationSeconds: res.Info.DurationSeconds,
		Thumbnail:       res.Info.Thumbnail,
		ContentID:       contentID,
		Downloading:     downloading,
	})
}

// VideoStream is the video variant: its own format order and history
// namespace, and no background caching.
func (h *StreamHandler) VideoStream(w http.ResponseWriter, r *http.Request) {
	req, contentID, device, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	if req.SkipCache {
		h.passthrough(w, r, req.URL, contentID, models.MediaKindVideo)
		return
	}

	res, err := h.Resolver.Resolve(r.Context(), contentID, req.URL, models.MediaKindVideo, device)
	if err != nil {
		h.writeResolveError(w, contentID, err)
		return
	}

	h.recordCatalog(contentID, res.Info)

	writeJSON(w, http.StatusOK, models.StreamResponse{
		Success:         true,
		VideoURL:        res.Info.StreamURL,
		Title:           res.Info.Title,
		DurationSeconds: res.Info.DurationSeconds,
		Thumbnail:       res.Info.Thumbnail,
		ContentID:       contentID,
	})
}

// CheckDownload reports cache and in-flight state for a content id.
func (h *StreamHandler) CheckDownload(w http.ResponseWriter, r *http.Request) {
	contentID := strings.TrimSpace(mux.Vars(r)["contentID"])
	if contentID == "" {
		http.Error(w, "content id is required", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, models.DownloadStatus{
		ContentID:   contentID,
		Cached:      h.Cache.Exists(contentID),
		Downloading: h.Coordinator.InFlight(contentID),
	})
}

// Search runs a flat search against the extractor.
func (h *StreamHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	results, err := h.Extractor.Search(r.Context(), req.Query, req.Limit)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, extractor.ErrQueryRequired) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"results": results,
	})
}

func (h *StreamHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (models.StreamRequest, string, models.DeviceClass, bool) {
	var req models.StreamRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return req, "", "", false
	}

	contentID, err := mediaid.Extract(req.URL)
	if err != nil {
		http.Error(w, "could not determine content id from url", http.StatusBadRequest)
		return req, "", "", false
	}

	device := models.ParseDeviceClass(req.DeviceClass)
	if strings.TrimSpace(req.DeviceClass) == "" {
		device = deviceclass.FromUserAgent(r.UserAgent())
	}

	return req, contentID, device, true
}

// passthrough skips cache and history entirely, resolving one best-effort
// format and relaying the remote URL.
func (h *StreamHandler) passthrough(w http.ResponseWriter, r *http.Request, url, contentID string, kind models.MediaKind) {
	format := passthroughAudioFormat
	if kind == models.MediaKindVideo {
		format = passthroughVideoFormat
	}

	info, err := h.Resolver.ResolveDirect(r.Context(), url, format)
	if err != nil {
		log.Printf("[stream] passthrough for %s failed: %v", contentID, err)
		http.Error(w, "stream extraction failed", http.StatusBadGateway)
		return
	}

	resp := models.StreamResponse{
		Success:         true,
		Title:           info.Title,
		DurationSeconds: info.DurationSeconds,
		Thumbnail:       info.Thumbnail,
		ContentID:       contentID,
	}
	if kind == models.MediaKindVideo {
		resp.VideoURL = info.StreamURL
	} else {
		resp.AudioURL = info.StreamURL
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *StreamHandler) writeResolveError(w http.ResponseWriter, contentID string, err error) {
	if errors.Is(err, resolver.ErrResolutionExhausted) || errors.Is(err, resolver.ErrNoCandidates) {
		writeJSON(w, http.StatusUnprocessableEntity, models.StreamResponse{
			Success:   false,
			ContentID: contentID,
			ErrorType: "format_not_available",
			Error:     "no playable format found",
		})
		return
	}

	log.Printf("[stream] resolve %s: %v", contentID, err)
	http.Error(w, "stream extraction failed", http.StatusBadGateway)
}

// fillMetadata applies the priority chain for cache hits: catalog entry,
// then ffprobe on the cached file, then a one-off extractor metadata call.
// The extractor is never asked for a stream URL here.
func (h *StreamHandler) fillMetadata(ctx context.Context, resp *models.StreamResponse, contentID, url string, cached cache.CachedFile) {
	if entry, ok := h.Catalog.Get(contentID); ok {
		resp.Title = entry.Title
		resp.DurationSeconds = entry.DurationSeconds
		resp.Thumbnail = entry.Thumbnail
		if resp.Title != "" && resp.DurationSeconds > 0 {
			return
		}
	}

	if resp.DurationSeconds == 0 && h.Prober.Available() {
		if seconds, err := h.Prober.Duration(ctx, cached.Path); err == nil {
			resp.DurationSeconds = seconds
		}
	}

	if resp.Title == "" {
		metaCtx, cancel := context.WithTimeout(ctx, metadataFetchTimeout)
		defer cancel()
		if info, err := h.Extractor.ExtractMetadata(metaCtx, url); err == nil {
			resp.Title = info.Title
			if resp.DurationSeconds == 0 {
				resp.DurationSeconds = info.DurationSeconds
			}
			if resp.Thumbnail == "" {
				resp.Thumbnail = info.Thumbnail
			}
			h.recordCatalog(contentID, info)
		}
	}

	if resp.Title != "" || resp.DurationSeconds > 0 {
		h.recordCatalogFields(contentID, resp.Title, resp.DurationSeconds, resp.Thumbnail)
	}
}

func (h *StreamHandler) recordCatalog(contentID string, info *models.MediaInfo) {
	if info == nil {
		return
	}
	h.recordCatalogFields(contentID, info.Title, info.DurationSeconds, info.Thumbnail)
}

func (h *StreamHandler) recordCatalogFields(contentID, title string, duration float64, thumbnail string) {
	err := h.Catalog.Put(contentID, models.CatalogEntry{
		Title:           title,
		DurationSeconds: duration,
		Thumbnail:       thumbnail,
	})
	if err != nil {
		log.Printf("[stream] catalog put %s: %v", contentID, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
