package models

import "time"

// MediaKind distinguishes audio-only resolutions from full video ones. The
// two kinds keep separate format preferences and history entries.
type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)

// DeviceClass is a coarse client classification. It selects the default
// audio format order and is recorded on history entries; it never gates a
// resolution.
type DeviceClass string

const (
	DeviceDesktop DeviceClass = "desktop"
	DeviceMobile  DeviceClass = "mobile"
)

// ParseDeviceClass normalises a client-provided device string, defaulting to
// desktop for anything unrecognised.
func ParseDeviceClass(raw string) DeviceClass {
	switch raw {
	case string(DeviceMobile), "phone", "tablet":
		return DeviceMobile
	default:
		return DeviceDesktop
	}
}

// MediaInfo is what an extraction yields: the direct stream URL plus the
// metadata that travels with it.
type MediaInfo struct {
	ContentID       string  `json:"contentId"`
	Title           string  `json:"title,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
	Thumbnail       string  `json:"thumbnail,omitempty"`
	Uploader        string  `json:"uploader,omitempty"`
	StreamURL       string  `json:"streamUrl,omitempty"`
	Ext             string  `json:"ext,omitempty"`
}

// CatalogEntry is one row of the metadata side table.
type CatalogEntry struct {
	Title           string    `json:"title,omitempty"`
	DurationSeconds float64   `json:"durationSeconds,omitempty"`
	Thumbnail       string    `json:"thumbnail,omitempty"`
	AddedAt         time.Time `json:"addedAt"`
}

// FormatHistoryEntry records learned extractor format outcomes for one
// content id. SuccessFormat and FailedFormats are mutually exclusive: a
// format that later succeeds is removed from the failed list.
type FormatHistoryEntry struct {
	SuccessFormat string      `json:"successFormat,omitempty"`
	FailedFormats []string    `json:"failedFormats,omitempty"`
	SuccessCount  int         `json:"successCount"`
	LastUpdated   time.Time   `json:"lastUpdated"`
	Device        DeviceClass `json:"device,omitempty"`
}

// SearchResult is one flat search hit.
type SearchResult struct {
	ContentID       string  `json:"contentId"`
	Title           string  `json:"title,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
	Thumbnail       string  `json:"thumbnail,omitempty"`
	Uploader        string  `json:"uploader,omitempty"`
}
