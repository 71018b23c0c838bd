package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/Zetic/zpt/pkg/entities"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)

func TestFetchImage_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client())

	asset, err := f.FetchImage(context.Background(), srv.URL, 1024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if asset.MIME != entities.MIMEPNG {
		t.Errorf("unexpected mime: %q", asset.MIME)
	}
	if asset.Size() != int64(len(pngBytes)) {
		t.Errorf("unexpected size: %d", asset.Size())
	}
}

func TestFetchImage_SniffsTypeWhenHeaderUseless(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(pngBytes)
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client())

	asset, err := f.FetchImage(context.Background(), srv.URL, 1024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if asset.MIME != entities.MIMEPNG {
		t.Errorf("expected sniffed png, got %q", asset.MIME)
	}
}

func TestFetchImage_UnsupportedType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("not an image at all"))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client())

	_, err := f.FetchImage(context.Background(), srv.URL, 1024)
	assertFailureKind(t, err, entities.FailureKindValidation)
}

func TestFetchImage_DeclaredSizeExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, 4096)
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client())

	_, err := f.FetchImage(context.Background(), srv.URL, 1024)
	assertFailureKind(t, err, entities.FailureKindValidation)
}

func TestFetchImage_StreamedSizeExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		// Flush after the first chunk so no Content-Length is declared.
		_, _ = w.Write(pngBytes)
		w.(http.Flusher).Flush()
		_, _ = w.Write(make([]byte, 4096))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client())

	_, err := f.FetchImage(context.Background(), srv.URL, 1024)
	assertFailureKind(t, err, entities.FailureKindValidation)
}

func TestFetchImage_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client())

	_, err := f.FetchImage(context.Background(), srv.URL, 1024)
	assertFailureKind(t, err, entities.FailureKindNetwork)
}

func TestFetchImage_ConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	f := NewFetcher(http.DefaultClient)

	_, err := f.FetchImage(context.Background(), srv.URL, 1024)
	assertFailureKind(t, err, entities.FailureKindNetwork)
}

func assertFailureKind(t *testing.T, err error, kind entities.FailureKind) {
	t.Helper()

	if err == nil {
		t.Fatal("expected error")
	}

	f, ok := entities.AsFailure(err)
	if !ok {
		t.Fatalf("expected a typed failure, got %v", err)
	}
	if f.Kind != kind {
		t.Fatalf("expected %s failure, got %s: %s", kind, f.Kind, f.Reason)
	}
}
