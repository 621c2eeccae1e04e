package archive

import (
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/reddwatch/reddwatch/pkg/logging"
)

// FileSink writes archive batches to the local filesystem. Each group becomes
// a directory under the root holding gzip-compressed files of newline-delimited
// JSON documents, one file per Write call.
type FileSink struct {
	root   string
	logger *zap.Logger
}

// NewFileSink creates a file-backed sink rooted at the given directory
func NewFileSink(root string) (*FileSink, error) {
	if root == "" {
		return nil, fmt.Errorf("archive_file_root is required for the file backend")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive root: %w", err)
	}

	return &FileSink{
		root:   root,
		logger: logging.GetLogger().With(zap.String("component", "archive-file-sink")),
	}, nil
}

// Write persists each group to its own compressed file and reports completion
func (s *FileSink) Write(ctx context.Context, groups map[string][]Document, onComplete func(group string)) error {
	for group, documents := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.writeGroup(group, documents); err != nil {
			return fmt.Errorf("failed to archive group %s: %w", group, err)
		}
		s.logger.Info("Archived group to file",
			zap.String("group", group),
			zap.Int("stories", len(documents)))
		if onComplete != nil {
			onComplete(group)
		}
	}
	return nil
}

func (s *FileSink) writeGroup(group string, documents []Document) error {
	dir := filepath.Join(s.root, group)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	name := fmt.Sprintf("stories-%d.json.gz", time.Now().UnixMilli())
	file, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(file)
	for _, document := range documents {
		if _, err := gz.Write(document.JSON); err != nil {
			file.Close()
			return err
		}
		if _, err := gz.Write([]byte{'\n'}); err != nil {
			file.Close()
			return err
		}
	}
	if err := gz.Close(); err != nil {
		file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
