package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Ergebnis eines einzelnen Bild-Downloads.
const (
	ImageOK      = "ok"
	ImageSkipped = "skipped"
	ImageFailed  = "failed"
)

// ImageFetchResult ist das Ergebnis für eine Bild-URL. Lebt nur für
// die Dauer eines Laufs.
type ImageFetchResult struct {
	URL     string
	Path    string
	Outcome string
	Err     string
}

// ImageFetcher lädt die referenzierten Artikelbilder mit begrenzter
// Parallelität herunter. Ein fehlschlagender Download blockiert die
// übrigen nicht und bricht den Lauf nie ab.
type ImageFetcher struct {
	Client      *http.Client
	Concurrency int
	Timeout     time.Duration
	Log         *zap.Logger
}

// NewImageFetcher erstellt einen Fetcher mit eigener HTTP-Client-Instanz.
func NewImageFetcher(concurrency int, timeout time.Duration, log *zap.Logger) *ImageFetcher {
	if concurrency < 1 {
		concurrency = 5
	}
	return &ImageFetcher{
		Client:      &http.Client{Timeout: timeout},
		Concurrency: concurrency,
		Timeout:     timeout,
		Log:         log,
	}
}

// FetchAll lädt alle Bilder in das Zielverzeichnis. Doppelte URLs
// werden nur einmal geladen. Bei abgebrochenem Kontext werden keine
// neuen Downloads mehr gestartet; bereits laufende dürfen zu Ende
// laufen oder in ihren Timeout laufen.
func (f *ImageFetcher) FetchAll(ctx context.Context, urls []string, destDir string) []ImageFetchResult {
	distinct := dedupeURLs(urls)
	if len(distinct) == 0 {
		return nil
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		results := make([]ImageFetchResult, len(distinct))
		for i, u := range distinct {
			results[i] = ImageFetchResult{URL: u, Outcome: ImageFailed, Err: err.Error()}
		}
		return results
	}

	// Dateinamen vorab ableiten, damit Kollisionen deterministisch
	// aufgelöst werden, bevor die Downloads parallel starten.
	names := make([]string, len(distinct))
	used := map[string]int{}
	for i, u := range distinct {
		name := ImageFilename(u)
		if n, ok := used[name]; ok {
			used[name] = n + 1
			name = fmt.Sprintf("%d_%s", n+1, name)
		} else {
			used[name] = 1
		}
		names[i] = name
	}

	results := make([]ImageFetchResult, len(distinct))
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, f.Concurrency)

	for i, u := range distinct {
		if ctx.Err() != nil {
			results[i] = ImageFetchResult{URL: u, Outcome: ImageSkipped, Err: "Lauf abgebrochen"}
			continue
		}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(i int, u string) {
			defer wg.Done()
			defer func() { <-semaphore }()
			results[i] = f.fetchOne(u, destDir, names[i])
		}(i, u)
	}

	wg.Wait()
	return results
}

// fetchOne lädt ein einzelnes Bild. Jeder Download hat seinen eigenen
// Timeout und seine eigene Verbindung; Fehler bleiben isoliert.
func (f *ImageFetcher) fetchOne(rawURL, destDir, filename string) ImageFetchResult {
	ctx, cancel := context.WithTimeout(context.Background(), f.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return ImageFetchResult{URL: rawURL, Outcome: ImageFailed, Err: err.Error()}
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		f.Log.Warn("Bild-Download fehlgeschlagen", zap.String("url", rawURL), zap.Error(err))
		return ImageFetchResult{URL: rawURL, Outcome: ImageFailed, Err: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.Log.Warn("Bild-Download mit Fehlerstatus",
			zap.String("url", rawURL),
			zap.Int("status", resp.StatusCode))
		return ImageFetchResult{URL: rawURL, Outcome: ImageFailed, Err: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	localPath := filepath.Join(destDir, filename)
	out, err := os.Create(localPath)
	if err != nil {
		return ImageFetchResult{URL: rawURL, Outcome: ImageFailed, Err: err.Error()}
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return ImageFetchResult{URL: rawURL, Outcome: ImageFailed, Err: err.Error()}
	}

	return ImageFetchResult{URL: rawURL, Path: localPath, Outcome: ImageOK}
}

// dedupeURLs entfernt Duplikate und leere URLs, Reihenfolge bleibt stabil.
func dedupeURLs(urls []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// ImageFilename leitet den lokalen Dateinamen aus der Bild-URL ab.
// Formatter und Fetcher benutzen dieselbe Ableitung, damit die
// Zieldatei auf die tatsächlich hochgeladenen Bilder verweist.
func ImageFilename(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "bild"
	}
	base := sanitizeFilename(path.Base(parsed.Path))
	if base == "" || base == "." {
		return "bild"
	}
	return base
}

func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "._")
}

// ImageDirName gibt den Verzeichnisnamen für die Bilder eines
// Lieferanten zurück: {externalID}_{Kurzname}.
func ImageDirName(externalID, shortName string) string {
	short := sanitizeFilename(strings.ReplaceAll(shortName, " ", "-"))
	if short == "" {
		short = "lieferant"
	}
	return fmt.Sprintf("%s_%s", externalID, short)
}
