package streaming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
)

var ErrNotFound = errors.New("cached file not found")

const (
	// full responses stream in small chunks so playback starts immediately
	fullChunkSize = 64 * 1024
	// range responses are seeks, larger chunks keep throughput up
	rangeChunkSize = 256 * 1024
)

var mimeByExt = map[string]string{
	".m4a":  "audio/mp4",
	".mp4":  "audio/mp4",
	".mp3":  "audio/mpeg",
	".webm": "audio/webm",
	".opus": "audio/ogg",
	".ogg":  "audio/ogg",
}

// Streamer serves cached media files with single-range byte-range support.
// A malformed or unsupported Range header degrades to a full response
// instead of an error.
type Streamer struct {
	fs afero.Fs
}

func NewStreamer(fsys afero.Fs) *Streamer {
	return &Streamer{fs: fsys}
}

// ContentType resolves the MIME type for a cached file, preferring the fixed
// extension table and falling back to content sniffing.
func (s *Streamer) ContentType(path string) string {
	if ct, ok := mimeByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}

	f, err := s.fs.Open(path)
	if err == nil {
		defer f.Close()
		if mt, err := mimetype.DetectReader(f); err == nil {
			return mt.String()
		}
	}

	return "application/octet-stream"
}

// ServeFile streams the file at path, honoring a single bytes= range.
func (s *Streamer) ServeFile(w http.ResponseWriter, r *http.Request, path string) error {
	info, err := s.fs.Stat(path)
	if err != nil || info.IsDir() {
		return ErrNotFound
	}
	size := info.Size()

	start, end, partial := parseRange(r.Header.Get("Range"), size)

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", s.ContentType(path))

	chunkSize := fullChunkSize
	if partial {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
		w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
		chunkSize = rangeChunkSize
	} else {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}

	if partial {
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	if r.Method == http.MethodHead {
		return nil
	}

	file, err := s.fs.Open(path)
	if err != nil {
		return ErrNotFound
	}
	defer file.Close()

	if partial && start > 0 {
		if _, err := file.Seek(start, io.SeekStart); err != nil {
			return fmt.Errorf("seek %s: %w", path, err)
		}
	}

	remaining := size
	if partial {
		remaining = end - start + 1
	}

	return copyChunks(r.Context(), w, file, remaining, int64(chunkSize))
}

// parseRange interprets a single "bytes=start-end" header against the file
// size. It reports partial=false for anything it cannot serve as a range:
// missing header, non-bytes units, suffix or multi ranges, garbage, start
// past EOF. An end past EOF clamps to the last byte.
func parseRange(header string, size int64) (start, end int64, partial bool) {
	if header == "" || size == 0 {
		return 0, 0, false
	}

	spec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return 0, 0, false
	}

	startRaw, endRaw, ok := strings.Cut(spec, "-")
	if !ok || strings.TrimSpace(startRaw) == "" {
		return 0, 0, false
	}

	start, err := strconv.ParseInt(strings.TrimSpace(startRaw), 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, false
	}

	end = size - 1
	if trimmed := strings.TrimSpace(endRaw); trimmed != "" {
		end, err = strconv.ParseInt(trimmed, 10, 64)
		if err != nil || end < start {
			return 0, 0, false
		}
		if end >= size {
			end = size - 1
		}
	}

	return start, end, true
}

func copyChunks(ctx context.Context, w http.ResponseWriter, file io.Reader, remaining, chunkSize int64) error {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, chunkSize)

	for remaining > 0 {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		limit := chunkSize
		if remaining < limit {
			limit = remaining
		}

		n, err := file.Read(buf[:limit])
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				// client went away mid-stream, normal for seeks
				return nil
			}
			if flusher != nil {
				flusher.Flush()
			}
			remaining -= int64(n)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			log.Printf("[streaming] read error: %v", err)
			return fmt.Errorf("read cached file: %w", err)
		}
	}

	return nil
}
