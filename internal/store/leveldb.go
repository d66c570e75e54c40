package store

import (
	"errors"
	"path/filepath"

	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelStore is a persistent Store backed by LevelDB. Batches map onto
// leveldb write batches, which commit atomically.
type LevelStore struct {
	db *leveldb.DB
}

// OpenLevel opens (or creates) the store under dataDir, scoped by the
// installation id so two installations never share state.
func OpenLevel(dataDir, installationID string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(filepath.Join(dataDir, installationID), nil)
	if err != nil {
		return nil, err
	}
	return &LevelStore{db: db}, nil
}

func (s *LevelStore) Get(key string) ([]byte, error) {
	value, err := s.db.Get([]byte(key), nil)
	if errors.Is(err, ldberrors.ErrNotFound) {
		return nil, ErrKeyNotFound
	}
	return value, err
}

func (s *LevelStore) Put(key string, value []byte) error {
	return s.db.Put([]byte(key), value, nil)
}

func (s *LevelStore) Delete(key string) error {
	return s.db.Delete([]byte(key), nil)
}

func (s *LevelStore) WriteBatch(fn func(b Batch) error) error {
	batch := new(leveldb.Batch)
	if err := fn(&levelBatch{batch: batch}); err != nil {
		return err
	}
	return s.db.Write(batch, nil)
}

func (s *LevelStore) Keys(prefix string) ([]string, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	var keys []string
	for iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	return keys, iter.Error()
}

func (s *LevelStore) Close() error {
	return s.db.Close()
}

type levelBatch struct {
	batch *leveldb.Batch
}

func (b *levelBatch) Put(key string, value []byte) {
	b.batch.Put([]byte(key), value)
}

func (b *levelBatch) Delete(key string) {
	b.batch.Delete([]byte(key))
}
