package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/reddwatch/reddwatch/pkg/config"
	"github.com/reddwatch/reddwatch/pkg/logging"
)

// composedObjectName is the per-group rollup every upload is folded into so
// batch consumers read one object per group instead of many small ones
const composedObjectName = "composed.json.gz"

// ObjectSink writes archive batches to S3-compatible object storage. Each
// Write uploads one object per group and then folds it into the group's
// running composed object.
type ObjectSink struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

// NewObjectSink connects to the configured object store and verifies the
// target bucket exists
func NewObjectSink(ctx context.Context, cfg *config.ArchiveConfig) (*ObjectSink, error) {
	endpoint := cfg.S3Endpoint
	secure := strings.HasPrefix(endpoint, "https://")
	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" {
		endpoint = u.Host
		secure = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.S3Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check archive bucket: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("archive bucket %q does not exist", cfg.S3Bucket)
	}

	return &ObjectSink{
		client: client,
		bucket: cfg.S3Bucket,
		logger: logging.GetLogger().With(zap.String("component", "archive-object-sink")),
	}, nil
}

// Write uploads each group, reports completion once the upload is durable,
// then recomposes the group rollup. A recompose failure does not fail the
// batch: the uploaded object already holds the data and the next recompose
// picks it up.
func (s *ObjectSink) Write(ctx context.Context, groups map[string][]Document, onComplete func(group string)) error {
	for group, documents := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}

		objectName, err := s.upload(ctx, group, documents)
		if err != nil {
			return fmt.Errorf("failed to archive group %s: %w", group, err)
		}
		s.logger.Info("Archived group to object storage",
			zap.String("group", group),
			zap.String("object", objectName),
			zap.Int("stories", len(documents)))
		if onComplete != nil {
			onComplete(group)
		}

		if err := s.recompose(ctx, group, objectName); err != nil {
			s.logger.Error("Failed to recompose group rollup",
				zap.String("group", group), zap.Error(err))
		}
	}
	return nil
}

func (s *ObjectSink) upload(ctx context.Context, group string, documents []Document) (string, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	for _, document := range documents {
		if _, err := gz.Write(document.JSON); err != nil {
			return "", err
		}
		if _, err := gz.Write([]byte{'\n'}); err != nil {
			return "", err
		}
	}
	if err := gz.Close(); err != nil {
		return "", err
	}

	objectName := fmt.Sprintf("%s/stories-%d.json.gz", group, time.Now().UnixMilli())
	_, err := s.client.PutObject(ctx, s.bucket, objectName, &buf, int64(buf.Len()), minio.PutObjectOptions{
		ContentType: "application/x-gzip",
	})
	if err != nil {
		return "", err
	}
	return objectName, nil
}

// recompose folds the freshly uploaded object into the group's rollup. The
// first upload for a group seeds the rollup with a copy; later uploads are
// appended via server-side compose. Gzip members concatenate, so the rollup
// stays a valid gzip stream.
func (s *ObjectSink) recompose(ctx context.Context, group, objectName string) error {
	composed := group + "/" + composedObjectName
	dst := minio.CopyDestOptions{Bucket: s.bucket, Object: composed}

	_, err := s.client.StatObject(ctx, s.bucket, composed, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code != "NoSuchKey" {
			return err
		}
		_, err = s.client.CopyObject(ctx, dst, minio.CopySrcOptions{Bucket: s.bucket, Object: objectName})
		return err
	}

	_, err = s.client.ComposeObject(ctx, dst,
		minio.CopySrcOptions{Bucket: s.bucket, Object: composed},
		minio.CopySrcOptions{Bucket: s.bucket, Object: objectName})
	return err
}
