package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strconv"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/conformapro/conformapro/internal/shared"
)

// DownloadWriter sends the file as an HTTP attachment.
type DownloadWriter struct {
	W         http.ResponseWriter
	committed bool
}

// Committed reports whether the response status was already sent, after
// which the caller can no longer redirect.
func (d *DownloadWriter) Committed() bool {
	return d.committed
}

// WriteFile implements FileWriter.
func (d *DownloadWriter) WriteFile(_ context.Context, name string, data []byte) error {
	h := d.W.Header()
	h.Set("Content-Type", ContentType)
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	h.Set("Content-Length", strconv.Itoa(len(data)))
	h.Set("Cache-Control", "no-store")
	d.W.WriteHeader(http.StatusOK)
	d.committed = true
	_, err := d.W.Write(data)
	return err
}

// ArchiveConfig addresses an S3-compatible bucket.
type ArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Prefix    string
	UseSSL    bool
}

// ObjectArchive stores generated files in object storage.
type ObjectArchive struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewObjectArchive connects to the bucket described by cfg.
func NewObjectArchive(cfg ArchiveConfig) (*ObjectArchive, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("export: archive endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("export: archive client: %w", err)
	}
	return &ObjectArchive{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// WriteFile implements FileWriter.
func (a *ObjectArchive) WriteFile(ctx context.Context, name string, data []byte) error {
	key := path.Join(a.prefix, name)
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: ContentType,
	})
	if err != nil {
		return fmt.Errorf("export: archive %s: %w", key, err)
	}
	return nil
}

// Archived delivers through Primary and then keeps a copy in Archive. The
// copy is best effort.
type Archived struct {
	Primary FileWriter
	Archive FileWriter
	Logger  *slog.Logger
}

// WriteFile implements FileWriter.
func (a Archived) WriteFile(ctx context.Context, name string, data []byte) error {
	if err := a.Primary.WriteFile(ctx, name, data); err != nil {
		return err
	}
	if a.Archive == nil {
		return nil
	}
	if err := a.Archive.WriteFile(ctx, name, data); err != nil && a.Logger != nil {
		a.Logger.Warn("archive export", slog.String("file", name), slog.Any("error", err))
	}
	return nil
}

// SessionNotifier queues notices as session flash messages.
type SessionNotifier struct {
	Session *shared.Session
}

// Notify implements Notifier.
func (n SessionNotifier) Notify(kind, message string) {
	if n.Session != nil {
		n.Session.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
}
