package services

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"datanorm-bridge/models"
	"datanorm-bridge/transfer"
)

// DestinationPublisher lädt die Ergebnisse eines Laufs in das
// lieferantenspezifische Zielverzeichnis hoch: zuerst die Zieldatei,
// dann die Übersicht, dann die Bilder. Schlägt ein Upload endgültig
// fehl, bricht der Lauf ab; es wird nicht teilweise veröffentlicht
// weitergemacht.
type DestinationPublisher struct {
	Client  transfer.Client
	BaseDir string
	Retries int
	Backoff time.Duration
	Log     *zap.Logger
}

// PublishInput bündelt die lokalen Artefakte eines Laufs.
type PublishInput struct {
	TargetFile  string
	SummaryFile string
	ImageFiles  []string
}

// RemoteDir liefert das Zielverzeichnis des Lieferanten unterhalb des
// Basisverzeichnisses: {base}/{externalID}_{shortName}.
func (p *DestinationPublisher) RemoteDir(supplier *models.Supplier) string {
	return path.Join(p.BaseDir, ImageDirName(supplier.ExternalID, supplier.ShortName))
}

// Publish lädt alle Artefakte hoch und liefert das Zielverzeichnis.
func (p *DestinationPublisher) Publish(ctx context.Context, supplier *models.Supplier, in PublishInput) (string, error) {
	remoteDir := p.RemoteDir(supplier)

	err := transfer.WithRetry(ctx, p.Log, "Zielverzeichnis anlegen", p.Retries, p.Backoff, func() error {
		return p.Client.EnsureDir(ctx, remoteDir)
	})
	if err != nil {
		return remoteDir, err
	}

	files := make([]string, 0, len(in.ImageFiles)+2)
	if in.TargetFile != "" {
		files = append(files, in.TargetFile)
	}
	if in.SummaryFile != "" {
		files = append(files, in.SummaryFile)
	}
	files = append(files, in.ImageFiles...)

	for _, local := range files {
		name := filepath.Base(local)
		remote := path.Join(remoteDir, name)
		err := transfer.WithRetry(ctx, p.Log, fmt.Sprintf("Upload %s", name), p.Retries, p.Backoff, func() error {
			return p.Client.Upload(ctx, local, remote)
		})
		if err != nil {
			return remoteDir, err
		}
	}

	p.Log.Info("Ergebnisse veröffentlicht",
		zap.String("lieferant", supplier.ExternalID),
		zap.String("verzeichnis", remoteDir),
		zap.Int("dateien", len(files)))
	return remoteDir, nil
}
