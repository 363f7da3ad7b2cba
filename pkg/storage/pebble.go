// pkg/storage/pebble.go

package storage

import (
	"context"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"logcache/pkg/utils"
)

type pebbleStore struct {
	sync.RWMutex
	dir    string
	db     *pebble.DB
	prefix []byte
}

func init() {
	Register("pebble", newPebbleStore)
}

func newPebbleStore(driver, addr string) (Storage, error) {
	if addr == "" {
		return nil, errors.New("pebble storage needs a directory")
	}
	return OpenPebble(addr)
}

// OpenPebble opens or creates the pebble database in dir. Every write is synced.
func OpenPebble(dir string) (Storage, error) {
	db, err := pebble.Open(dir, &pebble.Options{Logger: utils.GetLogger("pebble")})
	if err != nil {
		return nil, errors.Wrapf(err, "open pebble %s", dir)
	}
	return &pebbleStore{dir: dir, db: db, prefix: []byte(DefaultNamespace + "/")}, nil
}

func (s *pebbleStore) Name() string {
	return "pebble://" + s.dir
}

func (s *pebbleStore) Configure(ctx context.Context, conf *Config) error {
	s.Lock()
	defer s.Unlock()
	if s.db == nil {
		return errors.New("pebble storage is closed")
	}
	if err := checkNamespace("pebble", conf.namespace(), "/"); err != nil {
		return err
	}
	s.prefix = []byte(conf.namespace() + "/")
	return nil
}

// upperBound returns the smallest key greater than every key with the prefix.
func upperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (s *pebbleStore) key(k string) []byte {
	b := make([]byte, 0, len(s.prefix)+len(k))
	b = append(b, s.prefix...)
	return append(b, k...)
}

func (s *pebbleStore) Keys(ctx context.Context) ([]string, error) {
	s.RLock()
	defer s.RUnlock()
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: s.prefix, UpperBound: upperBound(s.prefix)})
	if err != nil {
		return nil, errors.Wrap(err, "new iterator")
	}
	var keys []string
	for it.First(); it.Valid(); it.Next() {
		keys = append(keys, string(it.Key()[len(s.prefix):]))
	}
	if err = it.Error(); err != nil {
		_ = it.Close()
		return nil, errors.Wrap(err, "iterate keys")
	}
	return keys, it.Close()
}

func (s *pebbleStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	s.RLock()
	defer s.RUnlock()
	val, closer, err := s.db.Get(s.key(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "get %s", key)
	}
	defer closer.Close()
	return string(val), true, nil
}

func (s *pebbleStore) SetItem(ctx context.Context, key, value string) error {
	s.RLock()
	defer s.RUnlock()
	if err := s.db.Set(s.key(key), []byte(value), pebble.Sync); err != nil {
		return errors.Wrapf(err, "set %s", key)
	}
	return nil
}

func (s *pebbleStore) RemoveItem(ctx context.Context, key string) error {
	s.RLock()
	defer s.RUnlock()
	if err := s.db.Delete(s.key(key), pebble.Sync); err != nil {
		return errors.Wrapf(err, "delete %s", key)
	}
	return nil
}

func (s *pebbleStore) Clear(ctx context.Context) error {
	s.Lock()
	defer s.Unlock()
	if err := s.db.DeleteRange(s.prefix, upperBound(s.prefix), pebble.Sync); err != nil {
		return errors.Wrapf(err, "delete range %s", s.prefix)
	}
	return nil
}

func (s *pebbleStore) Close() error {
	s.Lock()
	defer s.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
