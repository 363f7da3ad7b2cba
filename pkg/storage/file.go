// pkg/storage/file.go

package storage

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/natefinch/atomic"
	"github.com/pkg/errors"
)

const fileSuffix = ".item"

type fileStore struct {
	sync.RWMutex
	root string
	dir  string
}

func init() {
	Register("file", newFileStore)
}

func newFileStore(driver, addr string) (Storage, error) {
	root := addr
	if root == "" {
		return nil, errors.New("file storage needs a directory")
	}
	if !strings.HasPrefix(root, "/") {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, errors.Wrapf(err, "abs of %s", root)
		}
		root = abs
	}
	return NewFileStore(root), nil
}

// NewFileStore keeps one file per key below root/<namespace>.
func NewFileStore(root string) Storage {
	return &fileStore{root: root, dir: filepath.Join(root, DefaultNamespace)}
}

func (f *fileStore) Name() string {
	return "file://" + f.root
}

func (f *fileStore) Configure(ctx context.Context, conf *Config) error {
	ns := conf.namespace()
	if strings.ContainsAny(ns, `/\`) || ns == "." || ns == ".." {
		return errors.Errorf("invalid namespace for file storage: %q", ns)
	}
	dir := filepath.Join(f.root, ns)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}
	f.Lock()
	f.dir = dir
	f.Unlock()
	return nil
}

// keys are escaped so any key maps to a single file name
func (f *fileStore) path(key string) string {
	return filepath.Join(f.dir, url.PathEscape(key)+fileSuffix)
}

func (f *fileStore) Keys(ctx context.Context) ([]string, error) {
	f.RLock()
	defer f.RUnlock()
	entries, err := os.ReadDir(f.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", f.dir)
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(name, fileSuffix))
		if err != nil {
			logger.Warnf("skip unknown file %s in %s", name, f.dir)
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (f *fileStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	f.RLock()
	defer f.RUnlock()
	data, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "read %s", key)
	}
	return string(data), true, nil
}

func (f *fileStore) SetItem(ctx context.Context, key, value string) error {
	f.RLock()
	defer f.RUnlock()
	if err := atomic.WriteFile(f.path(key), strings.NewReader(value)); err != nil {
		return errors.Wrapf(err, "write %s", key)
	}
	return nil
}

func (f *fileStore) RemoveItem(ctx context.Context, key string) error {
	f.RLock()
	defer f.RUnlock()
	err := os.Remove(f.path(key))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove %s", key)
	}
	return nil
}

func (f *fileStore) Clear(ctx context.Context) error {
	f.Lock()
	defer f.Unlock()
	entries, err := os.ReadDir(f.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "list %s", f.dir)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileSuffix) {
			continue
		}
		p := filepath.Join(f.dir, e.Name())
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "remove %s", p)
		}
	}
	return nil
}
