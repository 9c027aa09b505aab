package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound zeigt an, dass keine passende Datei am Endpunkt existiert.
// Die Pipeline behandelt das als terminales "keine Daten", nicht als
// wiederholbaren Fehler.
var ErrNotFound = errors.New("keine passende Datei am Endpunkt")

// ConnectivityError wird geworfen, wenn ein Endpunkt nach allen
// Wiederholungsversuchen nicht erreichbar war.
type ConnectivityError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("Endpunkt nicht erreichbar (%s, %d Versuche): %v", e.Op, e.Attempts, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// RemoteFile beschreibt eine Datei am entfernten Endpunkt.
type RemoteFile struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Client ist die Abstraktion über die Datei-Endpunkte (FTP oder S3).
// Jede Operation öffnet und schließt ihre eigene Verbindung, es gibt
// keinen Verbindungspool.
type Client interface {
	List(ctx context.Context, dir string) ([]RemoteFile, error)
	Download(ctx context.Context, remotePath, localPath string) error
	Upload(ctx context.Context, localPath, remotePath string) error
	EnsureDir(ctx context.Context, dir string) error
}

// Endpoint sind die Verbindungsparameter eines FTP-Endpunkts.
type Endpoint struct {
	Host     string
	Port     int
	User     string
	Password string
}

// WithRetry wiederholt op bis zu attempts-mal mit linear wachsender
// Wartezeit. ErrNotFound und Kontextabbruch werden nicht wiederholt.
func WithRetry(ctx context.Context, log *zap.Logger, op string, attempts int, backoff time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrNotFound) || ctx.Err() != nil {
			return lastErr
		}
		if attempt < attempts {
			wait := time.Duration(attempt) * backoff
			log.Warn("Transfer fehlgeschlagen, neuer Versuch",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return &ConnectivityError{Op: op, Attempts: attempts, Err: lastErr}
}

// CatalogFilename ist der zerlegte Name einer Quelldatei nach der
// Konvention {prefix}_{externalID}_{name}_{sequence}.{ext}. Der Name
// selbst darf Unterstriche enthalten.
type CatalogFilename struct {
	Prefix     string
	ExternalID string
	Name       string
	Sequence   string
	Ext        string
}

// ParseCatalogFilename zerlegt einen Quelldateinamen. Die eingebettete
// ExternalID kann führende Nullen tragen und wird unverändert geliefert;
// die Normalisierung passiert erst beim Identitätsvergleich.
func ParseCatalogFilename(name string) (*CatalogFilename, error) {
	base := name
	ext := ""
	if idx := strings.LastIndex(base, "."); idx > 0 {
		ext = base[idx+1:]
		base = base[:idx]
	}
	parts := strings.Split(base, "_")
	if len(parts) < 4 {
		return nil, fmt.Errorf("Dateiname %q entspricht nicht der Konvention prefix_id_name_seq.ext", name)
	}
	return &CatalogFilename{
		Prefix:     parts[0],
		ExternalID: parts[1],
		Name:       strings.Join(parts[2:len(parts)-1], "_"),
		Sequence:   parts[len(parts)-1],
		Ext:        ext,
	}, nil
}
