package models

// StreamRequest is the body of the stream and video-stream endpoints.
type StreamRequest struct {
	URL         string `json:"url"`
	DeviceClass string `json:"deviceClass,omitempty"`
	SkipCache   bool   `json:"skipCache,omitempty"`
}

// StreamResponse is the envelope returned by the stream endpoints. AudioURL
// and VideoURL are mutually exclusive; LocalFile is set only on cache hits.
type StreamResponse struct {
	Success         bool    `json:"success"`
	AudioURL        string  `json:"audioUrl,omitempty"`
	VideoURL        string  `json:"videoUrl,omitempty"`
	Title           string  `json:"title,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
	Thumbnail       string  `json:"thumbnail,omitempty"`
	ContentID       string  `json:"contentId,omitempty"`
	LocalFile       bool    `json:"localFile"`
	FromCache       bool    `json:"fromCache"`
	Downloading     bool    `json:"downloading"`
	InstantPlay     bool    `json:"instantPlay"`
	ErrorType       string  `json:"errorType,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// SearchRequest is the body of the search endpoint.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// DownloadStatus reports cache and in-flight state for one content id.
type DownloadStatus struct {
	ContentID   string `json:"contentId"`
	Cached      bool   `json:"cached"`
	Downloading bool   `json:"downloading"`
}
