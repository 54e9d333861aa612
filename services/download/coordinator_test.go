package download_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"tunebridge/models"
	"tunebridge/services/cache"
	"tunebridge/services/download"
	"tunebridge/services/formathistory"
)

type fakeDownloader struct {
	fs      afero.Fs
	dir     string
	started atomic.Int32
	gate    chan struct{}
	fail    map[string]bool
	panics  bool
}

func (f *fakeDownloader) Download(ctx context.Context, contentID, url, format string) (string, error) {
	f.started.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.panics {
		panic("downloader blew up")
	}
	if f.fail[format] {
		return "", errors.New("format unavailable")
	}
	path := f.dir + "/" + contentID + ".m4a"
	if err := afero.WriteFile(f.fs, path, []byte("audio"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type staticFormats struct{ order []string }

func (s staticFormats) DownloadOrder(string) []string { return s.order }

func newCoordinator(t *testing.T, dl *fakeDownloader, order []string) (*download.Coordinator, *cache.Index, *formathistory.Service, afero.Fs) {
	t.Helper()

	fsys := afero.NewMemMapFs()
	idx, err := cache.NewIndex(fsys, "cache/media")
	require.NoError(t, err)
	history, err := formathistory.NewService(t.TempDir())
	require.NoError(t, err)

	dl.fs = fsys
	dl.dir = "cache/media"

	return download.NewCoordinator(dl, history, idx, staticFormats{order}), idx, history, fsys
}

func TestEnsureCachedDownloadsAndRecords(t *testing.T) {
	dl := &fakeDownloader{}
	coord, idx, history, _ := newCoordinator(t, dl, []string{"d1"})

	require.True(t, coord.EnsureCached("vid-1", "u", models.DeviceDesktop))
	require.NoError(t, coord.Shutdown(context.Background()))

	require.True(t, idx.Exists("vid-1"))
	entry, ok := history.Entry("vid-1")
	require.True(t, ok)
	require.Equal(t, "d1", entry.SuccessFormat)
	require.False(t, coord.InFlight("vid-1"))
}

func TestEnsureCachedNoOpWhenAlreadyCached(t *testing.T) {
	dl := &fakeDownloader{}
	coord, _, _, fsys := newCoordinator(t, dl, []string{"d1"})

	require.NoError(t, afero.WriteFile(fsys, "cache/media/vid-1.m4a", []byte("x"), 0o644))

	require.False(t, coord.EnsureCached("vid-1", "u", models.DeviceDesktop))
	require.NoError(t, coord.Shutdown(context.Background()))
	require.Equal(t, int32(0), dl.started.Load())
}

func TestConcurrentEnsureCachedStartsOneFetch(t *testing.T) {
	dl := &fakeDownloader{gate: make(chan struct{})}
	coord, _, _, _ := newCoordinator(t, dl, []string{"d1"})

	var started atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if coord.EnsureCached("vid-1", "u", models.DeviceDesktop) {
				started.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), started.Load())
	require.True(t, coord.InFlight("vid-1"))

	close(dl.gate)
	require.NoError(t, coord.Shutdown(context.Background()))
	require.Equal(t, int32(1), dl.started.Load())
	require.False(t, coord.InFlight("vid-1"))
}

func TestFetchWalksFormatsAndRecordsFailures(t *testing.T) {
	dl := &fakeDownloader{fail: map[string]bool{"d1": true, "d2": true}}
	coord, idx, history, _ := newCoordinator(t, dl, []string{"d1", "d2", "d3"})

	require.True(t, coord.EnsureCached("vid-1", "u", models.DeviceDesktop))
	require.NoError(t, coord.Shutdown(context.Background()))

	require.True(t, idx.Exists("vid-1"))
	entry, _ := history.Entry("vid-1")
	require.Equal(t, "d3", entry.SuccessFormat)
	require.ElementsMatch(t, []string{"d1", "d2"}, entry.FailedFormats)
}

func TestSlotReleasedAfterPanic(t *testing.T) {
	dl := &fakeDownloader{panics: true}
	coord, _, _, _ := newCoordinator(t, dl, []string{"d1"})

	require.True(t, coord.EnsureCached("vid-1", "u", models.DeviceDesktop))
	require.NoError(t, coord.Shutdown(context.Background()))
	require.False(t, coord.InFlight("vid-1"))
}

func TestShutdownRejectsNewWork(t *testing.T) {
	dl := &fakeDownloader{}
	coord, _, _, _ := newCoordinator(t, dl, []string{"d1"})

	require.NoError(t, coord.Shutdown(context.Background()))
	require.False(t, coord.EnsureCached("vid-1", "u", models.DeviceDesktop))
}

func TestShutdownHonorsDeadline(t *testing.T) {
	dl := &fakeDownloader{gate: make(chan struct{})}
	coord, _, _, _ := newCoordinator(t, dl, []string{"d1"})

	require.True(t, coord.EnsureCached("vid-1", "u", models.DeviceDesktop))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	// the fake honors ctx cancellation, so Shutdown's own cancel unblocks it
	require.NoError(t, coord.Shutdown(ctx))
	close(dl.gate)
}
