package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"datanorm-bridge/datanorm"
	"datanorm-bridge/models"
	"datanorm-bridge/repository"
	"datanorm-bridge/transfer"
)

// ErrRunInProgress wird geliefert, wenn für den Lieferanten bereits
// ein Lauf aktiv ist. Pro Lieferant läuft höchstens eine Pipeline.
var ErrRunInProgress = errors.New("für diesen Lieferanten läuft bereits eine Konvertierung")

// RunMetrics zählt gestartete und beendete Läufe. Die Zähler werden
// vom Orchestrator selbst gepflegt, damit jeder Auslöseweg (einzeln,
// alle) identisch gezählt wird.
type RunMetrics struct {
	Started  prometheus.Counter
	Finished *prometheus.CounterVec // Label: outcome
}

// PipelineOrchestrator führt die Konvertierung für einen Lieferanten
// von der Quelldatei bis zur Importbenachrichtigung aus. Jede Stufe
// protokolliert ihren Status am Lauf; der Lauf wird genau einmal mit
// einem terminalen Ergebnis abgeschlossen.
type PipelineOrchestrator struct {
	Store       *repository.Store
	Schema      datanorm.Schema
	Source      *SourceFetcher
	Publisher   *DestinationPublisher
	Notifier    *ImportNotifier
	Images      *ImageFetcher
	Formatter   *TargetFormatter
	Summary     *SummaryBuilder
	StagingRoot string
	Metrics     *RunMetrics // optional
	Log         *zap.Logger

	mu      sync.Mutex
	running map[uint]bool
}

// Run führt die komplette Pipeline für einen Lieferanten aus. Der
// zurückgegebene Lauf trägt immer ein terminales Ergebnis, auch im
// Fehlerfall; der Fehler beschreibt dann die Abbruchursache.
func (p *PipelineOrchestrator) Run(ctx context.Context, supplierID uint) (*models.ConversionRun, error) {
	supplier, err := p.Store.Suppliers.ByID(supplierID)
	if err != nil {
		return nil, fmt.Errorf("Lieferant %d laden: %w", supplierID, err)
	}

	if !p.acquire(supplierID) {
		return nil, ErrRunInProgress
	}
	defer p.release(supplierID)

	run := &models.ConversionRun{
		SupplierID: supplier.ID,
		Outcome:    models.OutcomePending,
		StartedAt:  time.Now(),
	}
	if err := p.Store.Runs.Create(run); err != nil {
		return nil, fmt.Errorf("Lauf anlegen: %w", err)
	}
	if p.Metrics != nil && p.Metrics.Started != nil {
		p.Metrics.Started.Inc()
	}

	stagingDir := filepath.Join(p.StagingRoot, fmt.Sprintf("run_%d", run.ID))
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return run, p.abort(run, "Staging-Verzeichnis anlegen", err)
	}
	run.StagingDir = stagingDir

	p.Log.Info("Konvertierung gestartet",
		zap.Uint("lauf", run.ID),
		zap.String("lieferant", supplier.ExternalID))

	// Stufe 1: Quelldatei holen.
	run.FetchStatus = models.StageRunning
	p.save(run)
	fetched, err := p.Source.Fetch(ctx, supplier, stagingDir)
	switch {
	case errors.Is(err, transfer.ErrNotFound):
		run.FetchStatus = models.StageFailed
		run.ErrorMessage = err.Error()
		p.skipRemaining(run, &run.ParseStatus)
		return run, p.finish(run, models.OutcomeNoData, err)
	case err != nil:
		run.FetchStatus = models.StageFailed
		return run, p.abort(run, "Quelldatei holen", err)
	case fetched.Unchanged:
		run.FetchStatus = models.StageOK
		p.skipRemaining(run, &run.ParseStatus)
		return run, p.finish(run, models.OutcomeNoChange, nil)
	}
	run.FetchStatus = models.StageOK

	// Stufe 2: Quelldatei parsen.
	run.ParseStatus = models.StageRunning
	p.save(run)
	parser := datanorm.NewParser(p.Schema, p.Log)
	var records []*datanorm.SourceRecord
	stats, err := parser.ParseFile(fetched.LocalPath, func(rec *datanorm.SourceRecord) error {
		records = append(records, rec)
		return nil
	})
	run.RecordsParsed = stats.Records
	run.RecordsSkipped = stats.Skipped
	if err != nil {
		run.ParseStatus = models.StageFailed
		return run, p.abort(run, "Quelldatei parsen", err)
	}
	run.ParseStatus = models.StageOK

	// Stufe 3: Entitäten auflösen. Datensätze mit fehlenden
	// Pflichtfeldern werden übersprungen, alles andere bricht ab.
	run.ResolveStatus = models.StageRunning
	p.save(run)
	resolver := NewEntityResolver(p.Store, p.Log)
	var resolved []*ResolvedRecord
	for _, rec := range records {
		rr, rerr := resolver.Resolve(rec)
		if rerr != nil {
			var verr *ValidationError
			if errors.As(rerr, &verr) {
				p.Log.Warn("Datensatz übersprungen", zap.Error(verr))
				run.RecordsSkipped++
				continue
			}
			run.ResolveStatus = models.StageFailed
			return run, p.abort(run, "Entitäten auflösen", rerr)
		}
		resolved = append(resolved, rr)
	}
	run.EntitiesCreated = resolver.Created
	run.EntitiesUpdated = resolver.Updated
	run.ResolveStatus = models.StageOK
	p.save(run)

	// Stufen 4 und 5 laufen parallel: Zieldateien schreiben und
	// Bilder laden sind voneinander unabhängig.
	run.FormatStatus = models.StageRunning
	run.ImagesStatus = models.StageRunning
	p.save(run)

	// Artefaktnamen tragen neben dem Lieferanten die Startzeit und die
	// Lauf-ID; zwei Läufe veröffentlichen nie unter demselben Namen.
	artifactBase := fmt.Sprintf("%s_%s_%d",
		ImageDirName(supplier.ExternalID, supplier.ShortName),
		run.StartedAt.UTC().Format("20060102T150405"),
		run.ID)
	targetName := artifactBase + ".csv"
	targetPath := filepath.Join(stagingDir, targetName)
	summaryPath := filepath.Join(stagingDir, artifactBase+"_uebersicht.xlsx")
	imageDir := filepath.Join(stagingDir, "bilder")

	var (
		wg           sync.WaitGroup
		formatErr    error
		imageResults []ImageFetchResult
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, ferr := p.Formatter.WriteFile(targetPath, resolved); ferr != nil {
			formatErr = ferr
			return
		}
		formatErr = p.Summary.WriteFile(summaryPath, resolver.SupplierRow(), resolver.Manufacturers(), resolver.Brands())
	}()
	go func() {
		defer wg.Done()
		var urls []string
		for _, rr := range resolved {
			if rr.Record.ImageURL != "" {
				urls = append(urls, rr.Record.ImageURL)
			}
		}
		// FetchAll legt das Verzeichnis selbst an und bildet einen
		// Fehlschlag dabei auf fehlgeschlagene Einzelergebnisse ab.
		imageResults = p.Images.FetchAll(ctx, urls, imageDir)
	}()
	wg.Wait()

	var imagePaths []string
	for _, res := range imageResults {
		switch res.Outcome {
		case ImageOK:
			run.ImagesOK++
			imagePaths = append(imagePaths, res.Path)
		case ImageFailed:
			run.ImagesFailed++
		case ImageSkipped:
			run.ImagesSkipped++
		}
	}
	if run.ImagesFailed > 0 || run.ImagesSkipped > 0 {
		run.ImagesStatus = models.StageFailed
	} else {
		run.ImagesStatus = models.StageOK
	}

	if formatErr != nil {
		run.FormatStatus = models.StageFailed
		return run, p.abort(run, "Zieldateien schreiben", formatErr)
	}
	run.FormatStatus = models.StageOK
	run.TargetFile = targetName
	p.save(run)

	// Stufe 6: Veröffentlichen. Ein endgültig fehlschlagender Upload
	// bricht den Lauf ab, es bleibt kein halb veröffentlichter Stand
	// als Erfolg stehen.
	run.PublishStatus = models.StageRunning
	p.save(run)
	remoteDir, err := p.Publisher.Publish(ctx, supplier, PublishInput{
		TargetFile:  targetPath,
		SummaryFile: summaryPath,
		ImageFiles:  imagePaths,
	})
	run.RemoteDir = remoteDir
	if err != nil {
		run.PublishStatus = models.StageFailed
		return run, p.abort(run, "Veröffentlichen", err)
	}
	run.PublishStatus = models.StageOK
	p.save(run)

	p.recordSupplierState(supplier, fetched, stats.Records)

	// Stufe 7: Import anstoßen. Genau ein Versuch; ein Fehlschlag
	// ändert das Ergebnis des Laufs nicht mehr, er wird nur vermerkt.
	run.NotifyStatus = models.StageRunning
	p.save(run)
	notifyRes, notifyErr := p.Notifier.Notify(ctx, remoteDir, targetName)
	if notifyRes != nil {
		if raw, jerr := json.Marshal(notifyRes); jerr == nil {
			run.NotifyResponse = raw
		}
	}
	switch {
	case notifyErr != nil:
		run.NotifyStatus = models.StageFailed
		run.ErrorMessage = notifyErr.Error()
	case notifyRes == nil:
		run.NotifyStatus = models.StageSkipped
	default:
		run.NotifyStatus = models.StageOK
	}

	outcome := models.OutcomeSuccess
	if run.ImagesFailed > 0 || run.ImagesSkipped > 0 {
		outcome = models.OutcomePartial
	}
	// Ein Benachrichtigungsfehler ändert das Ergebnis nicht mehr,
	// geht aber als Fehlerwert an den Aufrufer zurück.
	return run, p.finish(run, outcome, notifyErr)
}

// RunAll führt die Pipeline nacheinander für alle aktiven Lieferanten
// aus. Fehler einzelner Läufe stoppen die übrigen nicht.
func (p *PipelineOrchestrator) RunAll(ctx context.Context) {
	suppliers, err := p.Store.Suppliers.Active()
	if err != nil {
		p.Log.Error("Aktive Lieferanten laden fehlgeschlagen", zap.Error(err))
		return
	}
	for _, s := range suppliers {
		if ctx.Err() != nil {
			return
		}
		if _, err := p.Run(ctx, s.ID); err != nil {
			p.Log.Error("Konvertierung fehlgeschlagen",
				zap.String("lieferant", s.ExternalID),
				zap.Error(err))
		}
	}
}

func (p *PipelineOrchestrator) acquire(supplierID uint) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running == nil {
		p.running = make(map[uint]bool)
	}
	if p.running[supplierID] {
		return false
	}
	p.running[supplierID] = true
	return true
}

func (p *PipelineOrchestrator) release(supplierID uint) {
	p.mu.Lock()
	delete(p.running, supplierID)
	p.mu.Unlock()
}

// skipRemaining markiert ab der übergebenen Stufe alle noch nicht
// gelaufenen Stufen als übersprungen.
func (p *PipelineOrchestrator) skipRemaining(run *models.ConversionRun, from *string) {
	stages := []*string{
		&run.ParseStatus, &run.ResolveStatus, &run.FormatStatus,
		&run.ImagesStatus, &run.PublishStatus, &run.NotifyStatus,
	}
	skip := false
	for _, s := range stages {
		if s == from {
			skip = true
		}
		if skip && *s == models.StagePending {
			*s = models.StageSkipped
		}
	}
}

// recordSupplierState merkt sich den verarbeiteten Quellstand am
// Lieferanten, damit der nächste Lauf unveränderte Dateien erkennt.
func (p *PipelineOrchestrator) recordSupplierState(supplier *models.Supplier, fetched *FetchResult, articleCount int) {
	now := time.Now()
	modTime := fetched.Remote.ModTime
	supplier.SourceFileSize = fetched.Remote.Size
	supplier.SourceFileModTime = &modTime
	supplier.LastArticleCount = articleCount
	supplier.LastConvertedAt = &now
	if err := p.Store.Suppliers.Save(supplier); err != nil {
		p.Log.Error("Lieferantenstand speichern fehlgeschlagen", zap.Error(err))
	}
}

func (p *PipelineOrchestrator) abort(run *models.ConversionRun, stage string, cause error) error {
	err := fmt.Errorf("%s: %w", stage, cause)
	run.ErrorMessage = err.Error()
	p.skipRemaining(run, &run.ParseStatus)
	if ferr := p.finish(run, models.OutcomeAborted, nil); ferr != nil {
		return ferr
	}
	return err
}

// finish schließt den Lauf genau einmal mit Ergebnis und Endzeit ab.
func (p *PipelineOrchestrator) finish(run *models.ConversionRun, outcome string, cause error) error {
	now := time.Now()
	run.Outcome = outcome
	run.FinishedAt = &now
	p.save(run)
	if p.Metrics != nil && p.Metrics.Finished != nil {
		p.Metrics.Finished.WithLabelValues(outcome).Inc()
	}
	p.Log.Info("Konvertierung beendet",
		zap.Uint("lauf", run.ID),
		zap.String("ergebnis", outcome),
		zap.Int("datensaetze", run.RecordsParsed),
		zap.Int("bilder_ok", run.ImagesOK),
		zap.Int("bilder_fehler", run.ImagesFailed))
	return cause
}

func (p *PipelineOrchestrator) save(run *models.ConversionRun) {
	if err := p.Store.Runs.Save(run); err != nil {
		p.Log.Error("Lauf speichern fehlgeschlagen", zap.Uint("lauf", run.ID), zap.Error(err))
	}
}
