package repository

import (
	"context"
	"errors"
	"fmt"

	"RecessionLens/internal/domain/errs"
	domrepo "RecessionLens/internal/domain/repository"
	"RecessionLens/internal/services/artifact"
	applogger "RecessionLens/pkg/logger"

	"github.com/dgraph-io/badger/v4"
)

const (
	artifactKeyPrefix = "artifact:"
	latestKey         = "artifact:latest"
)

// BadgerArtifactStore keeps every trained bundle in an embedded BadgerDB keyed
// by id, plus a pointer to the most recent one.
type BadgerArtifactStore struct {
	db       *badger.DB
	compress bool
	l        *applogger.Logger
}

// NewBadgerArtifactStore opens (or creates) the database at path.
func NewBadgerArtifactStore(path string, compress bool) (*BadgerArtifactStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable BadgerDB logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}
	return &BadgerArtifactStore{db: db, compress: compress}, nil
}

// SetLogger injects a structured logger.
func (s *BadgerArtifactStore) SetLogger(l *applogger.Logger) { s.l = l }

var _ domrepo.ArtifactStore = (*BadgerArtifactStore)(nil)

func (s *BadgerArtifactStore) Save(ctx context.Context, b *artifact.Bundle) error {
	if err := b.Validate(); err != nil {
		return err
	}
	data, err := artifact.Marshal(b, s.compress)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(artifactKeyPrefix+b.ID), data); err != nil {
			return err
		}
		return txn.Set([]byte(latestKey), []byte(b.ID))
	})
	if err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if s.l != nil {
		s.l.Info("artifact saved",
			applogger.String("id", b.ID),
			applogger.String("backend", "badger"),
			applogger.Int("bytes", len(data)),
		)
	}
	return nil
}

func (s *BadgerArtifactStore) Latest(ctx context.Context) (*artifact.Bundle, error) {
	var id string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(latestKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errs.Config("artifact", "artifact store is empty; run train first").Wrap(domrepo.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read latest artifact: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *BadgerArtifactStore) Get(ctx context.Context, id string) (*artifact.Bundle, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(artifactKeyPrefix + id))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errs.Config("artifact", "artifact %s not found", id).Wrap(domrepo.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	return artifact.Unmarshal(data)
}

// List returns the ids of every stored bundle.
func (s *BadgerArtifactStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(artifactKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			if key == latestKey {
				continue
			}
			ids = append(ids, key[len(artifactKeyPrefix):])
		}
		return nil
	})
	return ids, err
}

func (s *BadgerArtifactStore) Close() error {
	return s.db.Close()
}
