package services

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"datanorm-bridge/models"
	"datanorm-bridge/transfer"
)

// SourceFetcher sucht im Quellverzeichnis die zum Lieferanten gehörende
// Katalogdatei und lädt sie in das Staging-Verzeichnis des Laufs.
type SourceFetcher struct {
	Client     transfer.Client
	SourceDir  string
	FilePrefix string
	Retries    int
	Backoff    time.Duration
	Log        *zap.Logger
}

// FetchResult beschreibt die geladene Quelldatei.
type FetchResult struct {
	// LocalPath ist der Pfad der heruntergeladenen Datei im Staging.
	LocalPath string
	// Remote ist der Verzeichniseintrag der gewählten Datei.
	Remote transfer.RemoteFile
	// Unchanged ist gesetzt, wenn Größe und Änderungszeit mit dem
	// letzten verarbeiteten Stand des Lieferanten übereinstimmen.
	// LocalPath ist dann leer, es wurde nichts geladen.
	Unchanged bool
}

// Fetch wählt die neueste passende Katalogdatei des Lieferanten aus.
// Existiert keine passende Datei, wird transfer.ErrNotFound geliefert.
func (f *SourceFetcher) Fetch(ctx context.Context, supplier *models.Supplier, stagingDir string) (*FetchResult, error) {
	var entries []transfer.RemoteFile
	err := transfer.WithRetry(ctx, f.Log, "Quellverzeichnis lesen", f.Retries, f.Backoff, func() error {
		var listErr error
		entries, listErr = f.Client.List(ctx, f.SourceDir)
		return listErr
	})
	if err != nil {
		return nil, err
	}

	wantID := models.NormalizeExternalID(supplier.ExternalID)
	var candidates []transfer.RemoteFile
	for _, e := range entries {
		info, perr := transfer.ParseCatalogFilename(e.Name)
		if perr != nil {
			continue
		}
		if info.Prefix != f.FilePrefix {
			continue
		}
		if models.NormalizeExternalID(info.ExternalID) != wantID {
			continue
		}
		candidates = append(candidates, e)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("keine Katalogdatei für Lieferant %s: %w", supplier.ExternalID, transfer.ErrNotFound)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ModTime.After(candidates[j].ModTime)
	})
	newest := candidates[0]

	if supplier.SourceFileSize == newest.Size && supplier.SourceFileModTime != nil && supplier.SourceFileModTime.Equal(newest.ModTime) {
		f.Log.Info("Quelldatei unverändert, Lauf wird übersprungen",
			zap.String("lieferant", supplier.ExternalID),
			zap.String("datei", newest.Name))
		return &FetchResult{Remote: newest, Unchanged: true}, nil
	}

	localPath := filepath.Join(stagingDir, newest.Name)
	remotePath := path.Join(f.SourceDir, newest.Name)
	err = transfer.WithRetry(ctx, f.Log, "Quelldatei laden", f.Retries, f.Backoff, func() error {
		return f.Client.Download(ctx, remotePath, localPath)
	})
	if err != nil {
		return nil, err
	}

	f.Log.Info("Quelldatei geladen",
		zap.String("lieferant", supplier.ExternalID),
		zap.String("datei", newest.Name),
		zap.Int64("groesse", newest.Size))
	return &FetchResult{LocalPath: localPath, Remote: newest}, nil
}
