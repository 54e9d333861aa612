package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"tunebridge/models"
	"tunebridge/services/streaming"
)

type mediaStreamer interface {
	ServeFile(w http.ResponseWriter, r *http.Request, path string) error
}

var _ mediaStreamer = (*streaming.Streamer)(nil)

// MediaHandler serves cached media files with byte-range support.
type MediaHandler struct {
	Cache    cacheIndex
	Streamer mediaStreamer
}

func NewMediaHandler(idx cacheIndex, streamer mediaStreamer) *MediaHandler {
	return &MediaHandler{Cache: idx, Streamer: streamer}
}

func (h *MediaHandler) Serve(w http.ResponseWriter, r *http.Request) {
	contentID := strings.TrimSpace(mux.Vars(r)["contentID"])
	if contentID == "" {
		http.Error(w, "content id is required", http.StatusBadRequest)
		return
	}

	cached, ok := h.Cache.Lookup(contentID)
	if !ok {
		writeJSON(w, http.StatusNotFound, models.StreamResponse{
			Success: false,
			Error:   "media not cached",
		})
		return
	}

	if err := h.Streamer.ServeFile(w, r, cached.Path); err != nil {
		if errors.Is(err, streaming.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, models.StreamResponse{
				Success: false,
				Error:   "media not cached",
			})
			return
		}
		// headers may already be out, nothing useful left to send
		log.Printf("[media] stream %s: %v", contentID, err)
	}
}
