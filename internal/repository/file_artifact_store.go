package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"RecessionLens/internal/domain/errs"
	domrepo "RecessionLens/internal/domain/repository"
	"RecessionLens/internal/services/artifact"
	applogger "RecessionLens/pkg/logger"
)

// FileArtifactStore keeps the current bundle at modelPath and exports its
// scaler alone at scalerPath. Every saved bundle is also kept under
// <dir(modelPath)>/runs/<id>.bundle so Get can reach older runs.
type FileArtifactStore struct {
	modelPath  string
	scalerPath string
	compress   bool
	l          *applogger.Logger
}

func NewFileArtifactStore(modelPath, scalerPath string, compress bool) *FileArtifactStore {
	return &FileArtifactStore{modelPath: modelPath, scalerPath: scalerPath, compress: compress}
}

// SetLogger injects a structured logger.
func (s *FileArtifactStore) SetLogger(l *applogger.Logger) { s.l = l }

var _ domrepo.ArtifactStore = (*FileArtifactStore)(nil)

func (s *FileArtifactStore) runPath(id string) string {
	return filepath.Join(filepath.Dir(s.modelPath), "runs", id+".bundle")
}

func (s *FileArtifactStore) Save(ctx context.Context, b *artifact.Bundle) error {
	if err := b.Validate(); err != nil {
		return err
	}
	data, err := artifact.Marshal(b, s.compress)
	if err != nil {
		return err
	}
	scaler, err := json.MarshalIndent(b.Scaler, "", "  ")
	if err != nil {
		return fmt.Errorf("encode scaler: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := writeFileAtomic(s.runPath(b.ID), data); err != nil {
		return err
	}
	if err := writeFileAtomic(s.modelPath, data); err != nil {
		return err
	}
	if s.scalerPath != "" {
		if err := writeFileAtomic(s.scalerPath, scaler); err != nil {
			return err
		}
	}
	if s.l != nil {
		s.l.Info("artifact saved",
			applogger.String("id", b.ID),
			applogger.String("model_path", s.modelPath),
			applogger.String("scaler_path", s.scalerPath),
			applogger.Int("bytes", len(data)),
		)
	}
	return nil
}

func (s *FileArtifactStore) Latest(ctx context.Context) (*artifact.Bundle, error) {
	return s.read(s.modelPath)
}

func (s *FileArtifactStore) Get(ctx context.Context, id string) (*artifact.Bundle, error) {
	return s.read(s.runPath(id))
}

func (s *FileArtifactStore) read(path string) (*artifact.Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errs.Config("artifact", "no artifact at %s; run train first", path).Wrap(domrepo.ErrNotFound)
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return artifact.Unmarshal(data)
}

func (s *FileArtifactStore) Close() error { return nil }

// writeFileAtomic writes through a temp file in the same directory and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
