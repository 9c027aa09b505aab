package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// NotifyError beschreibt eine fehlgeschlagene Importbenachrichtigung.
// Der Lauf selbst gilt trotzdem als veröffentlicht; der Fehler wird
// nur am Lauf vermerkt.
type NotifyError struct {
	Status int
	Body   string
	Err    error
}

func (e *NotifyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("Importbenachrichtigung fehlgeschlagen: %v", e.Err)
	}
	return fmt.Sprintf("Importbenachrichtigung fehlgeschlagen: Status %d", e.Status)
}

func (e *NotifyError) Unwrap() error {
	return e.Err
}

// ImportNotifier stößt nach dem Veröffentlichen den Import im Zielsystem
// an. Die Benachrichtigung wird genau einmal versucht, ohne Retry.
type ImportNotifier struct {
	TriggerURL string
	HTTPClient *http.Client
	Log        *zap.Logger
}

// NotifyResult hält Status und Antwortkörper des Zielsystems fest.
type NotifyResult struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// Notify ruft die Trigger-URL mit Zielverzeichnis und Dateiname als
// Query-Parameter auf. Bei leerem TriggerURL passiert nichts.
func (n *ImportNotifier) Notify(ctx context.Context, remoteDir, targetFile string) (*NotifyResult, error) {
	if n.TriggerURL == "" {
		return nil, nil
	}

	u, err := url.Parse(n.TriggerURL)
	if err != nil {
		return nil, &NotifyError{Err: err}
	}
	q := u.Query()
	q.Set("dir", remoteDir)
	q.Set("file", targetFile)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &NotifyError{Err: err}
	}

	client := n.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &NotifyError{Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	result := &NotifyResult{Status: resp.StatusCode, Body: string(body)}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		n.Log.Warn("Importbenachrichtigung abgelehnt",
			zap.Int("status", resp.StatusCode),
			zap.String("body", result.Body))
		return result, &NotifyError{Status: resp.StatusCode, Body: result.Body}
	}

	n.Log.Info("Import angestoßen", zap.String("verzeichnis", remoteDir), zap.Int("status", resp.StatusCode))
	return result, nil
}
