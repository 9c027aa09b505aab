package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Endpoint sind die Parameter eines S3-kompatiblen Ziels
// (z. B. Strato HiDrive).
type S3Endpoint struct {
	Key    string
	Secret string
	URL    string
	Region string
	Bucket string
}

// S3Client spricht einen S3-kompatiblen Endpunkt über die
// Client-Abstraktion. Verzeichnisse sind hier nur Schlüssel-Präfixe.
type S3Client struct {
	client *s3.Client
	bucket string
}

// NewS3Client erstellt einen S3-Client für einen eigenen Endpunkt
// mit statischen Zugangsdaten.
func NewS3Client(ctx context.Context, ep S3Endpoint) (*S3Client, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               ep.URL,
				SigningRegion:     ep.Region,
				HostnameImmutable: true,
			}, nil
		},
	)
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(ep.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(ep.Key, ep.Secret, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, err
	}
	return &S3Client{client: s3.NewFromConfig(awsCfg), bucket: ep.Bucket}, nil
}

// List liefert die Objekte unter dem Präfix dir.
func (c *S3Client) List(ctx context.Context, dir string) ([]RemoteFile, error) {
	prefix := strings.TrimPrefix(dir, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})

	var out []RemoteFile
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("S3-Listing unter %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			out = append(out, RemoteFile{
				Name:    name,
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			})
		}
	}
	return out, nil
}

// Download holt ein Objekt und schreibt es in den lokalen Pfad.
func (c *S3Client) Download(ctx context.Context, remotePath, localPath string) error {
	key := strings.TrimPrefix(remotePath, "/")
	obj, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("S3-Download von %s: %w", key, err)
	}
	defer obj.Body.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.ReadFrom(obj.Body); err != nil {
		return fmt.Errorf("S3-Download nach %s schreiben: %w", localPath, err)
	}
	return nil
}

// Upload überträgt eine lokale Datei als Objekt.
func (c *S3Client) Upload(ctx context.Context, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	key := strings.TrimPrefix(remotePath, "/")
	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("S3-Upload nach %s: %w", key, err)
	}
	return nil
}

// EnsureDir ist bei S3 ein No-op, Präfixe entstehen implizit.
func (c *S3Client) EnsureDir(ctx context.Context, dir string) error {
	return nil
}
