// Package imagestore keeps encoded QR images in badger, keyed by codeId.
package imagestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"qrtrack/internal/apperr"
)

type Config struct {
	// Path is the badger directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
	// Namespace prefixes keys and the public image path: /{Namespace}/{codeId}.
	Namespace string
}

type Store struct {
	db        *badger.DB
	namespace string
}

func Open(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open image store: %w", err)
	}
	return &Store{db: db, namespace: cfg.Namespace}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) key(codeID string) []byte {
	return []byte(s.namespace + "/" + codeID)
}

// URL is the stable path the image is served from.
func (s *Store) URL(codeID string) string {
	return "/" + s.namespace + "/" + codeID
}

func (s *Store) Namespace() string { return s.namespace }

func (s *Store) Put(ctx context.Context, codeID string, png []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key(codeID), png)
	})
}

func (s *Store) Get(ctx context.Context, codeID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(codeID))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, apperr.NotFound("image not found")
	}
	if err != nil {
		return nil, apperr.StorageUnavailable("read QR image", err)
	}
	return data, nil
}

// Delete is idempotent: removing a missing image is not an error.
func (s *Store) Delete(ctx context.Context, codeID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.key(codeID))
	})
}
