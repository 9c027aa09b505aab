package config

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
// Wird einmal beim Start geladen und als Wertobjekt durchgereicht,
// kein globaler Zustand.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// Quell-Endpunkt (FTP), von dem die DATANORM-Dateien abgeholt werden.
	// Zugangsdaten dürfen base64-kodiert hinterlegt sein ("base64:"-Präfix).
	SourceFTPHost     string `envconfig:"SOURCE_FTP_HOST" required:"true"`
	SourceFTPPort     int    `envconfig:"SOURCE_FTP_PORT" default:"21"`
	SourceFTPUser     string `envconfig:"SOURCE_FTP_USER" required:"true"`
	SourceFTPPassword string `envconfig:"SOURCE_FTP_PASSWORD" required:"true"`
	SourceFTPDir      string `envconfig:"SOURCE_FTP_DIR" default:"/"`
	SourceFilePrefix  string `envconfig:"SOURCE_FILE_PREFIX" default:"DATANORM"`

	// Ziel-Endpunkt: "ftp" oder "s3".
	DestProtocol    string `envconfig:"DEST_PROTOCOL" default:"ftp"`
	DestFTPHost     string `envconfig:"DEST_FTP_HOST"`
	DestFTPPort     int    `envconfig:"DEST_FTP_PORT" default:"21"`
	DestFTPUser     string `envconfig:"DEST_FTP_USER"`
	DestFTPPassword string `envconfig:"DEST_FTP_PASSWORD"`
	DestBaseDir     string `envconfig:"DEST_BASE_DIR" default:"/import"`

	DestS3Key    string `envconfig:"DEST_S3_KEY"`
	DestS3Secret string `envconfig:"DEST_S3_SECRET"`
	DestS3URL    string `envconfig:"DEST_S3_URL"`
	DestS3Region string `envconfig:"DEST_S3_REGION"`
	DestS3Bucket string `envconfig:"DEST_S3_BUCKET"`

	// Import-Trigger des nachgelagerten Warenwirtschaftssystems.
	ImportTriggerURL string `envconfig:"IMPORT_TRIGGER_URL" required:"true"`

	ImageConcurrency   int `envconfig:"IMAGE_CONCURRENCY" default:"5"`
	ImageTimeoutSec    int `envconfig:"IMAGE_TIMEOUT_SECONDS" default:"30"`
	TransferRetries    int `envconfig:"TRANSFER_RETRIES" default:"3"`
	TransferBackoffSec int `envconfig:"TRANSFER_BACKOFF_SECONDS" default:"2"`

	StagingDir string `envconfig:"STAGING_DIR" default:"./staging"`

	// Zieldatei-Konventionen.
	TargetDelimiter string `envconfig:"TARGET_DELIMITER" default:";"`
	TargetUseCRLF   bool   `envconfig:"TARGET_USE_CRLF" default:"true"`

	// Optionale Spaltenschema-Datei (YAML); leer = eingebautes Schema.
	ColumnSchemaFile string `envconfig:"COLUMN_SCHEMA_FILE"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// ImageTimeout gibt den Timeout pro Bild-Download zurück.
func (c *Config) ImageTimeout() time.Duration {
	return time.Duration(c.ImageTimeoutSec) * time.Second
}

// TransferBackoff gibt die Basis-Wartezeit zwischen Transfer-Versuchen zurück.
func (c *Config) TransferBackoff() time.Duration {
	return time.Duration(c.TransferBackoffSec) * time.Second
}

// Load lädt die Konfiguration aus den Umgebungsvariablen und
// dekodiert base64-kodierte Zugangsdaten.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}

	for _, p := range []*string{
		&c.SourceFTPUser, &c.SourceFTPPassword,
		&c.DestFTPUser, &c.DestFTPPassword,
		&c.DestS3Key, &c.DestS3Secret,
	} {
		decoded, err := DecodeCredential(*p)
		if err != nil {
			return nil, err
		}
		*p = decoded
	}

	switch c.DestProtocol {
	case "ftp", "s3":
	default:
		return nil, fmt.Errorf("unbekanntes DEST_PROTOCOL %q (erwartet ftp oder s3)", c.DestProtocol)
	}

	return &c, nil
}

// DecodeCredential dekodiert Werte mit "base64:"-Präfix.
// Werte ohne Präfix werden unverändert zurückgegeben.
func DecodeCredential(v string) (string, error) {
	if !strings.HasPrefix(v, "base64:") {
		return v, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(v, "base64:"))
	if err != nil {
		return "", fmt.Errorf("base64-kodierter Wert ungültig: %w", err)
	}
	return string(raw), nil
}
