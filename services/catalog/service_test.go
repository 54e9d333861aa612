package catalog_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"tunebridge/models"
	"tunebridge/services/catalog"
)

func TestPutAndGet(t *testing.T) {
	svc, err := catalog.NewService(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, svc.Put("vid-1", models.CatalogEntry{
		Title:           "First Track",
		DurationSeconds: 212,
		Thumbnail:       "https://img.example/vid-1.jpg",
	}))

	entry, ok := svc.Get("vid-1")
	require.True(t, ok)
	require.Equal(t, "First Track", entry.Title)
	require.Equal(t, float64(212), entry.DurationSeconds)
	require.False(t, entry.AddedAt.IsZero())
}

func TestPutDoesNotClobberWithEmptyFields(t *testing.T) {
	svc, err := catalog.NewService(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, svc.Put("vid-1", models.CatalogEntry{Title: "First Track", DurationSeconds: 212}))
	require.NoError(t, svc.Put("vid-1", models.CatalogEntry{Thumbnail: "https://img.example/vid-1.jpg"}))

	entry, _ := svc.Get("vid-1")
	require.Equal(t, "First Track", entry.Title)
	require.Equal(t, float64(212), entry.DurationSeconds)
	require.Equal(t, "https://img.example/vid-1.jpg", entry.Thumbnail)
}

func TestPersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()

	svc, err := catalog.NewService(dir)
	require.NoError(t, err)
	require.NoError(t, svc.Put("vid-1", models.CatalogEntry{Title: "First Track"}))

	reloaded, err := catalog.NewService(dir)
	require.NoError(t, err)

	entry, ok := reloaded.Get("vid-1")
	require.True(t, ok)
	require.Equal(t, "First Track", entry.Title)
}

func TestCorruptFileDegradesToEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata.json"), []byte("nope"), 0o644))

	svc, err := catalog.NewService(dir)
	require.NoError(t, err)
	require.Equal(t, 0, svc.Len())
}
