package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFetchAllDownloadsImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "bilddaten %s", r.URL.Path)
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := NewImageFetcher(3, 5*time.Second, zap.NewNop())

	urls := []string{
		srv.URL + "/bilder/10000N.jpg",
		srv.URL + "/bilder/20000N.jpg",
		srv.URL + "/bilder/10000N.jpg", // Duplikat, wird nur einmal geladen
	}
	results := f.FetchAll(context.Background(), urls, dir)
	require.Len(t, results, 2)

	for _, res := range results {
		assert.Equal(t, ImageOK, res.Outcome)
		_, err := os.Stat(res.Path)
		assert.NoError(t, err)
	}
	assert.Equal(t, filepath.Join(dir, "10000N.jpg"), results[0].Path)
}

func TestFetchAllRespectsConcurrencyLimit(t *testing.T) {
	var inFlight, maxInFlight int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt64(&inFlight, 1)
		for {
			prev := atomic.LoadInt64(&maxInFlight)
			if cur <= prev || atomic.CompareAndSwapInt64(&maxInFlight, prev, cur) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewImageFetcher(2, 5*time.Second, zap.NewNop())
	var urls []string
	for i := 0; i < 8; i++ {
		urls = append(urls, fmt.Sprintf("%s/bild_%d.jpg", srv.URL, i))
	}
	results := f.FetchAll(context.Background(), urls, t.TempDir())

	require.Len(t, results, 8)
	assert.LessOrEqual(t, atomic.LoadInt64(&maxInFlight), int64(2))
}

func TestFetchAllIsolatesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/kaputt.jpg" {
			http.Error(w, "weg", http.StatusNotFound)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewImageFetcher(2, 5*time.Second, zap.NewNop())
	results := f.FetchAll(context.Background(), []string{
		srv.URL + "/gut.jpg",
		srv.URL + "/kaputt.jpg",
		srv.URL + "/auch_gut.jpg",
	}, t.TempDir())

	require.Len(t, results, 3)
	counts := map[string]int{}
	for _, res := range results {
		counts[res.Outcome]++
	}
	assert.Equal(t, 2, counts[ImageOK])
	assert.Equal(t, 1, counts[ImageFailed])
}

func TestFetchAllSkipsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewImageFetcher(2, time.Second, zap.NewNop())
	results := f.FetchAll(ctx, []string{"http://example.invalid/a.jpg", "http://example.invalid/b.jpg"}, t.TempDir())

	require.Len(t, results, 2)
	for _, res := range results {
		assert.Equal(t, ImageSkipped, res.Outcome)
	}
}

func TestImageFilenameCollisions(t *testing.T) {
	assert.Equal(t, "10000N.jpg", ImageFilename("http://bilder.example.de/katalog/10000N.jpg"))
	assert.Equal(t, "bild", ImageFilename("http://bilder.example.de/"))
	assert.Equal(t, "Umlaut_.jpg", ImageFilename("http://x.de/Umlaut%C3%A4.jpg"))
}

func TestImageDirName(t *testing.T) {
	assert.Equal(t, "815_Muster-GmbH", ImageDirName("815", "Muster GmbH"))
	assert.Equal(t, "7_lieferant", ImageDirName("7", ""))
}
