package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

var ErrStorageDirRequired = errors.New("storage directory not provided")

// ExtensionPriority is the fixed probe order for cached media files. The
// first extension found wins; the order is not configurable.
var ExtensionPriority = []string{"m4a", "webm", "opus", "mp3", "mp4"}

// CachedFile describes one cached media file.
type CachedFile struct {
	ContentID string
	Path      string
	Ext       string
	Size      int64
}

// Index locates cached media files named {contentID}.{ext} under a single
// directory.
type Index struct {
	fs  afero.Fs
	dir string
}

// NewIndex creates an index rooted at dir on the given filesystem.
func NewIndex(fsys afero.Fs, dir string) (*Index, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, ErrStorageDirRequired
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Index{fs: fsys, dir: dir}, nil
}

// Dir returns the cache directory.
func (i *Index) Dir() string {
	return i.dir
}

// Lookup probes the extension priority order and returns the first cached
// file for the content id. A zero-byte file is not a hit: a crashed partial
// download must not shadow resolution.
func (i *Index) Lookup(contentID string) (CachedFile, bool) {
	contentID = strings.TrimSpace(contentID)
	if contentID == "" {
		return CachedFile{}, false
	}

	for _, ext := range ExtensionPriority {
		path := filepath.Join(i.dir, contentID+"."+ext)
		info, err := i.fs.Stat(path)
		if err != nil || info.IsDir() || info.Size() == 0 {
			continue
		}
		return CachedFile{
			ContentID: contentID,
			Path:      path,
			Ext:       ext,
			Size:      info.Size(),
		}, true
	}

	return CachedFile{}, false
}

// Exists reports whether any cached file exists for the content id.
func (i *Index) Exists(contentID string) bool {
	_, ok := i.Lookup(contentID)
	return ok
}

// Remove deletes every extension variant for the content id.
func (i *Index) Remove(contentID string) error {
	contentID = strings.TrimSpace(contentID)
	if contentID == "" {
		return nil
	}

	var firstErr error
	for _, ext := range ExtensionPriority {
		path := filepath.Join(i.dir, contentID+"."+ext)
		err := i.fs.Remove(path)
		if err == nil || errors.Is(err, os.ErrNotExist) || errors.Is(err, afero.ErrFileNotFound) {
			continue
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return firstErr
}
