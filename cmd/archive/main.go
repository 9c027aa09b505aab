package main

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/kelseyhightower/envconfig"
)

// Archiviert abgeschlossene Staging-Verzeichnisse als tar.gz nach S3
// und räumt sie danach lokal weg. Gedacht als Aufräum-Job neben dem
// Dienst, z. B. einmal täglich per systemd-Timer.
type ArchiveConfig struct {
	StagingDir       string `envconfig:"STAGING_DIR" default:"./staging"`
	ArchiveBucket    string `envconfig:"ARCHIVE_S3_BUCKET" required:"true"`
	ArchiveEndpoint  string `envconfig:"ARCHIVE_S3_ENDPOINT" required:"true"`
	ArchiveAccessKey string `envconfig:"ARCHIVE_S3_ACCESS_KEY" required:"true"`
	ArchiveSecretKey string `envconfig:"ARCHIVE_S3_SECRET_KEY" required:"true"`
	ArchiveRegion    string `envconfig:"ARCHIVE_S3_REGION" required:"true"`
	MinAgeHours      int    `envconfig:"ARCHIVE_MIN_AGE_HOURS" default:"24"`
	KeepArchives     int    `envconfig:"KEEP_ARCHIVES" default:"30"`
}

func main() {
	log.Println("Starte Archivierung der Staging-Verzeichnisse...")

	var cfg ArchiveConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Fehler beim Laden der Konfiguration: %v", err)
	}

	s3Client, err := createS3Client(cfg)
	if err != nil {
		log.Fatalf("Fehler beim Erstellen des S3-Clients: %v", err)
	}

	entries, err := os.ReadDir(cfg.StagingDir)
	if err != nil {
		log.Fatalf("Fehler beim Lesen des Staging-Verzeichnisses: %v", err)
	}

	cutoff := time.Now().Add(-time.Duration(cfg.MinAgeHours) * time.Hour)
	archived := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "run_") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		dir := filepath.Join(cfg.StagingDir, entry.Name())
		data, err := packDir(dir)
		if err != nil {
			log.Printf("Fehler beim Packen von %s: %v", dir, err)
			continue
		}

		key := fmt.Sprintf("%s-%s.tar.gz", entry.Name(), time.Now().UTC().Format("2006-01-02T15-04-05Z"))
		if err := uploadToS3(s3Client, cfg, key, data); err != nil {
			log.Printf("Fehler beim Hochladen von %s: %v", key, err)
			continue
		}
		log.Printf("Archiviert: s3://%s/%s", cfg.ArchiveBucket, key)

		if err := os.RemoveAll(dir); err != nil {
			log.Printf("Fehler beim Entfernen von %s: %v", dir, err)
			continue
		}
		archived++
	}
	log.Printf("%d Verzeichnisse archiviert.", archived)

	if err := rotateArchives(s3Client, cfg); err != nil {
		log.Fatalf("Fehler bei der Rotation alter Archive: %v", err)
	}

	log.Println("Archivierung erfolgreich abgeschlossen.")
}

// packDir packt das Verzeichnis rekursiv als tar.gz in den Speicher.
// Die Staging-Verzeichnisse sind klein genug dafür.
func packDir(dir string) ([]byte, error) {
	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	tarWriter := tar.NewWriter(gzipWriter)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(filepath.Dir(dir), path)
		if err != nil {
			return err
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tarWriter, f)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := tarWriter.Close(); err != nil {
		return nil, err
	}
	if err := gzipWriter.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func createS3Client(cfg ArchiveConfig) (*s3.Client, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: cfg.ArchiveEndpoint,
		}, nil
	})

	awsCfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithEndpointResolverWithOptions(resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.ArchiveAccessKey, cfg.ArchiveSecretKey, "")),
		config.WithRegion(cfg.ArchiveRegion),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg), nil
}

func uploadToS3(client *s3.Client, cfg ArchiveConfig, key string, data []byte) error {
	_, err := client.PutObject(context.TODO(), &s3.PutObjectInput{
		Bucket: aws.String(cfg.ArchiveBucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return err
}

func rotateArchives(client *s3.Client, cfg ArchiveConfig) error {
	output, err := client.ListObjectsV2(context.TODO(), &s3.ListObjectsV2Input{
		Bucket: aws.String(cfg.ArchiveBucket),
	})
	if err != nil {
		return err
	}

	if len(output.Contents) <= cfg.KeepArchives {
		log.Printf("Weniger als %d Archive vorhanden, keine Rotation nötig.", cfg.KeepArchives)
		return nil
	}

	sort.Slice(output.Contents, func(i, j int) bool {
		return output.Contents[i].LastModified.After(*output.Contents[j].LastModified)
	})

	for _, obj := range output.Contents[cfg.KeepArchives:] {
		log.Printf("Lösche altes Archiv: %s", *obj.Key)
		_, err := client.DeleteObject(context.TODO(), &s3.DeleteObjectInput{
			Bucket: aws.String(cfg.ArchiveBucket),
			Key:    obj.Key,
		})
		if err != nil {
			log.Printf("Fehler beim Löschen von %s: %v", *obj.Key, err)
		}
	}

	return nil
}
