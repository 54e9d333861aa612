package streaming_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"tunebridge/services/streaming"
)

func serve(t *testing.T, body []byte, rangeHeader, method string) *httptest.ResponseRecorder {
	t.Helper()

	fsys := afero.NewMemMapFs()
	if err := afero.WriteFile(fsys, "cache/media/vid-1.mp3", body, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	streamer := streaming.NewStreamer(fsys)

	req := httptest.NewRequest(method, "/api/media/vid-1", nil)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	rec := httptest.NewRecorder()

	if err := streamer.ServeFile(rec, req, "cache/media/vid-1.mp3"); err != nil {
		t.Fatalf("ServeFile: %v", err)
	}
	return rec
}

func TestFullResponseWithoutRange(t *testing.T) {
	body := []byte("0123456789")
	rec := serve(t, body, "", http.MethodGet)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Accept-Ranges"); got != "bytes" {
		t.Fatalf("expected Accept-Ranges bytes, got %q", got)
	}
	if got := rec.Header().Get("Content-Length"); got != "10" {
		t.Fatalf("expected Content-Length 10, got %q", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), body) {
		t.Fatalf("body mismatch: %q", rec.Body.String())
	}
}

func TestRangeMidSection(t *testing.T) {
	rec := serve(t, []byte("0123456789"), "bytes=2-5", http.MethodGet)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 2-5/10" {
		t.Fatalf("unexpected Content-Range %q", got)
	}
	if got := rec.Header().Get("Content-Length"); got != "4" {
		t.Fatalf("expected Content-Length 4, got %q", got)
	}
	if rec.Body.String() != "2345" {
		t.Fatalf("body mismatch: %q", rec.Body.String())
	}
}

func TestRangeOpenEndedFromZeroIsPartial(t *testing.T) {
	rec := serve(t, []byte("0123456789"), "bytes=0-", http.MethodGet)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 0-9/10" {
		t.Fatalf("unexpected Content-Range %q", got)
	}
	if rec.Body.String() != "0123456789" {
		t.Fatalf("body mismatch: %q", rec.Body.String())
	}
}

func TestRangeEndClampsToFileSize(t *testing.T) {
	rec := serve(t, []byte("0123456789"), "bytes=4-9999", http.MethodGet)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 4-9/10" {
		t.Fatalf("unexpected Content-Range %q", got)
	}
	if rec.Body.String() != "456789" {
		t.Fatalf("body mismatch: %q", rec.Body.String())
	}
}

func TestMalformedRangeFallsBackToFullResponse(t *testing.T) {
	cases := []string{
		"bytes=abc-def",
		"bytes=-500",
		"bytes=5-2",
		"bytes=0-3,5-9",
		"items=0-5",
		"bytes=99-",
	}

	for _, header := range cases {
		rec := serve(t, []byte("0123456789"), header, http.MethodGet)
		if rec.Code != http.StatusOK {
			t.Fatalf("header %q: expected 200, got %d", header, rec.Code)
		}
		if rec.Body.String() != "0123456789" {
			t.Fatalf("header %q: body mismatch %q", header, rec.Body.String())
		}
	}
}

func TestHeadReturnsHeadersOnly(t *testing.T) {
	rec := serve(t, []byte("0123456789"), "bytes=2-5", http.MethodHead)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", rec.Body.String())
	}
}

func TestContentTypeTable(t *testing.T) {
	fsys := afero.NewMemMapFs()
	streamer := streaming.NewStreamer(fsys)

	cases := map[string]string{
		"a.m4a":  "audio/mp4",
		"a.mp4":  "audio/mp4",
		"a.mp3":  "audio/mpeg",
		"a.webm": "audio/webm",
		"a.opus": "audio/ogg",
		"a.ogg":  "audio/ogg",
	}
	for path, want := range cases {
		if got := streamer.ContentType(path); got != want {
			t.Fatalf("%s: expected %s, got %s", path, want, got)
		}
	}
}

func TestContentTypeUnknownExtensionFallsBack(t *testing.T) {
	fsys := afero.NewMemMapFs()
	streamer := streaming.NewStreamer(fsys)

	got := streamer.ContentType("a.xyz")
	if got == "" || strings.Contains(got, " ") {
		t.Fatalf("unexpected content type %q", got)
	}
}

func TestMissingFileReturnsErrNotFound(t *testing.T) {
	streamer := streaming.NewStreamer(afero.NewMemMapFs())

	req := httptest.NewRequest(http.MethodGet, "/api/media/vid-1", nil)
	rec := httptest.NewRecorder()

	if err := streamer.ServeFile(rec, req, "cache/media/vid-1.mp3"); err != streaming.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
