package extractor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/lrstanley/go-ytdlp"

	"tunebridge/models"
)

var (
	ErrURLRequired   = errors.New("url is required")
	ErrQueryRequired = errors.New("search query is required")
	ErrNoStreamURL   = errors.New("extraction yielded no stream url")
	ErrNoOutputFile  = errors.New("download yielded no output file")
)

const defaultSearchLimit = 10

// Service drives yt-dlp for stream-url extraction, cache downloads, and
// flat search. The binary is resolved from PATH at run time; construction
// never fails so the server can start without it and report unhealthy.
type Service struct {
	cacheDir string
}

func NewService(cacheDir string) *Service {
	return &Service{cacheDir: cacheDir}
}

// ExtractStream resolves a direct stream URL for the given format selector
// without downloading anything.
func (s *Service) ExtractStream(ctx context.Context, url, format string) (*models.MediaInfo, error) {
	if strings.TrimSpace(url) == "" {
		return nil, ErrURLRequired
	}

	dl := ytdlp.New().
		Format(format).
		SkipDownload().
		NoPlaylist().
		NoWarnings().
		Quiet()

	result, err := dl.Run(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("extract %q with format %q: %w", url, format, err)
	}

	info, err := firstInfo(result)
	if err != nil {
		return nil, err
	}

	media := infoToMedia(info)
	if media.StreamURL == "" {
		return nil, ErrNoStreamURL
	}

	return media, nil
}

// ExtractMetadata fetches title/duration/thumbnail without committing to a
// playable format. Used as the last step of the metadata fallback chain.
func (s *Service) ExtractMetadata(ctx context.Context, url string) (*models.MediaInfo, error) {
	if strings.TrimSpace(url) == "" {
		return nil, ErrURLRequired
	}

	dl := ytdlp.New().
		SkipDownload().
		NoPlaylist().
		NoWarnings().
		Quiet()

	result, err := dl.Run(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("extract metadata for %q: %w", url, err)
	}

	info, err := firstInfo(result)
	if err != nil {
		return nil, err
	}

	return infoToMedia(info), nil
}

// Download fetches the media into the cache directory as
// {contentID}.{ext} and returns the final path.
func (s *Service) Download(ctx context.Context, contentID, url, format string) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", ErrURLRequired
	}

	outputTemplate := filepath.Join(s.cacheDir, contentID) + ".%(ext)s"

	dl := ytdlp.New().
		Format(format).
		NoPlaylist().
		NoWarnings().
		Quiet().
		ForceOverwrites().
		RestrictFilenames().
		Output(outputTemplate)

	result, err := dl.Run(ctx, url)
	if err != nil {
		return "", fmt.Errorf("download %q with format %q: %w", url, format, err)
	}

	info, err := firstInfo(result)
	if err != nil {
		return "", err
	}

	if info.Filename != nil && *info.Filename != "" {
		return *info.Filename, nil
	}
	if info.Extension != "" {
		return filepath.Join(s.cacheDir, contentID+"."+info.Extension), nil
	}

	log.Printf("[extractor] download of %s finished without a reported filename", contentID)
	return "", ErrNoOutputFile
}

// Search runs a flat "ytsearchN:" query and returns lightweight results.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrQueryRequired
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	dl := ytdlp.New().
		SkipDownload().
		FlatPlaylist().
		NoWarnings().
		Quiet()

	result, err := dl.Run(ctx, fmt.Sprintf("ytsearch%d:%s", limit, query))
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	infos, err := result.GetExtractedInfo()
	if err != nil {
		return nil, fmt.Errorf("decode search results: %w", err)
	}

	results := make([]models.SearchResult, 0, limit)
	for _, info := range infos {
		if info == nil {
			continue
		}
		entries := info.Entries
		if len(entries) == 0 {
			entries = []*ytdlp.ExtractedInfo{info}
		}
		for _, entry := range entries {
			if entry == nil || entry.ID == "" {
				continue
			}
			media := infoToMedia(entry)
			results = append(results, models.SearchResult{
				ContentID:       media.ContentID,
				Title:           media.Title,
				DurationSeconds: media.DurationSeconds,
				Thumbnail:       media.Thumbnail,
				Uploader:        media.Uploader,
			})
		}
	}

	return results, nil
}

// firstInfo unwraps the extraction result down to a single entry, stepping
// into playlist wrappers when needed.
func firstInfo(result *ytdlp.Result) (*ytdlp.ExtractedInfo, error) {
	infos, err := result.GetExtractedInfo()
	if err != nil {
		return nil, fmt.Errorf("decode extraction result: %w", err)
	}
	if len(infos) == 0 {
		return nil, errors.New("empty extraction result")
	}

	info := infos[0]
	if len(info.Entries) > 0 && info.Entries[0] != nil {
		info = info.Entries[0]
	}
	return info, nil
}

func infoToMedia(info *ytdlp.ExtractedInfo) *models.MediaInfo {
	media := &models.MediaInfo{ContentID: info.ID}
	if info.Title != nil {
		media.Title = *info.Title
	}
	if info.Duration != nil {
		media.DurationSeconds = *info.Duration
	}
	if info.Thumbnail != nil {
		media.Thumbnail = *info.Thumbnail
	}
	if info.Uploader != nil {
		media.Uploader = *info.Uploader
	}
	if info.URL != nil {
		media.StreamURL = *info.URL
	}
	if info.Extension != "" {
		media.Ext = info.Extension
	}
	return media
}
