package transfer

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
)

// FTPClient spricht einen klassischen FTP-Endpunkt. Jede Operation
// wählt sich neu ein und beendet die Sitzung danach wieder.
type FTPClient struct {
	endpoint Endpoint
	timeout  time.Duration
}

// NewFTPClient erstellt einen FTP-Client für den Endpunkt.
func NewFTPClient(ep Endpoint) *FTPClient {
	return &FTPClient{endpoint: ep, timeout: 10 * time.Second}
}

func (c *FTPClient) dial(ctx context.Context) (*ftp.ServerConn, error) {
	addr := fmt.Sprintf("%s:%d", c.endpoint.Host, c.endpoint.Port)
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(c.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("FTP-Verbindung zu %s: %w", addr, err)
	}
	if err := conn.Login(c.endpoint.User, c.endpoint.Password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("FTP-Login auf %s: %w", addr, err)
	}
	return conn, nil
}

// List liefert die regulären Dateien eines Verzeichnisses.
func (c *FTPClient) List(ctx context.Context, dir string) ([]RemoteFile, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Quit()

	entries, err := conn.List(dir)
	if err != nil {
		return nil, fmt.Errorf("FTP-Listing von %s: %w", dir, err)
	}

	var out []RemoteFile
	for _, e := range entries {
		if e.Type != ftp.EntryTypeFile {
			continue
		}
		out = append(out, RemoteFile{
			Name:    e.Name,
			Size:    int64(e.Size),
			ModTime: e.Time,
		})
	}
	return out, nil
}

// Download holt eine Datei und schreibt sie in den lokalen Pfad.
func (c *FTPClient) Download(ctx context.Context, remotePath, localPath string) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Quit()

	resp, err := conn.Retr(remotePath)
	if err != nil {
		return fmt.Errorf("FTP-Download von %s: %w", remotePath, err)
	}
	defer resp.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.ReadFrom(resp); err != nil {
		return fmt.Errorf("FTP-Download nach %s schreiben: %w", localPath, err)
	}
	return nil
}

// Upload überträgt eine lokale Datei an den entfernten Pfad.
func (c *FTPClient) Upload(ctx context.Context, localPath, remotePath string) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Quit()

	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := conn.Stor(remotePath, f); err != nil {
		return fmt.Errorf("FTP-Upload nach %s: %w", remotePath, err)
	}
	return nil
}

// EnsureDir legt das Verzeichnis segmentweise an. Bereits vorhandene
// Segmente liefern am Server einen Fehler, der ignoriert wird.
func (c *FTPClient) EnsureDir(ctx context.Context, dir string) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Quit()

	current := ""
	if strings.HasPrefix(dir, "/") {
		current = "/"
	}
	for _, segment := range strings.Split(path.Clean(dir), "/") {
		if segment == "" || segment == "." {
			continue
		}
		current = path.Join(current, segment)
		_ = conn.MakeDir(current)
	}
	return nil
}
