package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// Publisher copies a finished workbook somewhere other than the local disk.
type Publisher interface {
	Publish(ctx context.Context, localPath string) (string, error)
}

type objectWriterFunc func(ctx context.Context, object string) io.WriteCloser

// GCSPublisher uploads workbooks to gs://<bucket>/<prefix>/<file>, replacing
// an existing object with the same name.
type GCSPublisher struct {
	bucket    string
	prefix    string
	newWriter objectWriterFunc
	logger    *slog.Logger
}

func NewGCSPublisher(client *storage.Client, bucket, prefix string, logger *slog.Logger) *GCSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	handle := client.Bucket(bucket)
	return &GCSPublisher{
		bucket: bucket,
		prefix: prefix,
		newWriter: func(ctx context.Context, object string) io.WriteCloser {
			w := handle.Object(object).NewWriter(ctx)
			w.ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
			return w
		},
		logger: logger,
	}
}

// ObjectName is the object key a local file is published under.
func (p *GCSPublisher) ObjectName(localPath string) string {
	return path.Join(p.prefix, filepath.Base(localPath))
}

func (p *GCSPublisher) Publish(ctx context.Context, localPath string) (string, error) {
	start := time.Now()
	object := p.ObjectName(localPath)

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer src.Close()

	w := p.newWriter(ctx, object)
	if _, err := io.Copy(w, src); err != nil {
		_ = w.Close()
		return "", p.uploadError(object, err)
	}
	if err := w.Close(); err != nil {
		return "", p.uploadError(object, err)
	}

	uri := fmt.Sprintf("gs://%s/%s", p.bucket, object)
	p.logger.Info("export.publish.ok", "uri", uri, "elapsed_ms", time.Since(start).Milliseconds())
	return uri, nil
}

func (p *GCSPublisher) uploadError(object string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		p.logger.Error("export.publish.failed", "bucket", p.bucket, "object", object, "status", gerr.Code, "error", gerr.Message)
		return fmt.Errorf("upload gs://%s/%s: status %d: %w", p.bucket, object, gerr.Code, err)
	}
	p.logger.Error("export.publish.failed", "bucket", p.bucket, "object", object, "error", err)
	return fmt.Errorf("upload gs://%s/%s: %w", p.bucket, object, err)
}
