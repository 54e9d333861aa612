package handlers

import (
	"net/http"
	"os/exec"
)

// HealthHandler reports liveness plus availability of the external tools
// the server degrades without.
type HealthHandler struct {
	Prober       durationProber
	extractorBin bool
}

func NewHealthHandler(prober durationProber) *HealthHandler {
	_, err := exec.LookPath("yt-dlp")
	return &HealthHandler{Prober: prober, extractorBin: err == nil}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"extractor": h.extractorBin,
		"ffprobe":   h.Prober.Available(),
	})
}
