package filestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const minioScheme = "minio://"

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIOStorage keeps originals as objects in one bucket. Locations look like
// "minio://<bucket>/<object>".
type MinIOStorage struct {
	client *minio.Client
	bucket string
}

// NewMinIOStorage connects and creates the bucket if it does not exist.
func NewMinIOStorage(ctx context.Context, cfg MinIOConfig) (*MinIOStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check minio bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create minio bucket %s: %w", cfg.Bucket, err)
		}
		log.Printf("MinIO: created bucket %q", cfg.Bucket)
	}
	return &MinIOStorage{client: client, bucket: cfg.Bucket}, nil
}

func (m *MinIOStorage) Save(ctx context.Context, documentID, filename, contentType string, data []byte) (SavedFile, error) {
	objectName := ObjectName(documentID, filename)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	info, err := m.client.PutObject(ctx, m.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return SavedFile{}, fmt.Errorf("failed to upload %s to minio: %w", objectName, err)
	}
	return SavedFile{Location: minioLocation(m.bucket, objectName), Size: info.Size}, nil
}

func (m *MinIOStorage) ReadFile(ctx context.Context, location string) ([]byte, error) {
	bucket, objectName, err := parseMinioLocation(location)
	if err != nil {
		return nil, err
	}
	obj, err := m.client.GetObject(ctx, bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", location, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", location, err)
	}
	return data, nil
}

func minioLocation(bucket, objectName string) string {
	return minioScheme + bucket + "/" + objectName
}

func parseMinioLocation(location string) (bucket, objectName string, err error) {
	rest, ok := strings.CutPrefix(location, minioScheme)
	if !ok {
		return "", "", fmt.Errorf("not a minio location: %q", location)
	}
	bucket, objectName, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || objectName == "" {
		return "", "", fmt.Errorf("malformed minio location: %q", location)
	}
	return bucket, objectName, nil
}
