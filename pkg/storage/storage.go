// pkg/storage/storage.go

package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"logcache/pkg/utils"
)

var logger = utils.GetLogger("logcache")

// DefaultNamespace is used when Config.Namespace is empty.
const DefaultNamespace = "logcache"

// Config is applied to a Storage by Configure.
type Config struct {
	Namespace string // scope of Keys and Clear
	Retries   int
}

func (c *Config) namespace() string {
	if c == nil || c.Namespace == "" {
		return DefaultNamespace
	}
	return c.Namespace
}

// Storage is a string key-value namespace.
//
// GetItem reports a missing key with ok == false and a nil error.
// RemoveItem of a missing key is not an error. Clear removes every key
// of the configured namespace and nothing outside of it.
type Storage interface {
	Name() string
	Configure(ctx context.Context, conf *Config) error
	Keys(ctx context.Context) ([]string, error)
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Closer is implemented by drivers holding a connection or file handles.
type Closer interface {
	Close() error
}

// Close closes s if its driver holds resources.
func Close(s Storage) error {
	if c, ok := s.(Closer); ok {
		return c.Close()
	}
	return nil
}

// checkNamespace rejects a namespace containing a character the driver uses
// to separate the namespace from its keys, as it would overlap another one.
func checkNamespace(driver, ns, seps string) error {
	if strings.ContainsAny(ns, seps) {
		return fmt.Errorf("invalid namespace for %s storage: %q", driver, ns)
	}
	return nil
}

// Creator builds a Storage for the part of the URL after "scheme://".
type Creator func(driver, addr string) (Storage, error)

var (
	driverLock sync.Mutex
	drivers    = make(map[string]Creator)
)

// Register makes a driver available under the URL scheme `name`.
func Register(name string, create Creator) {
	driverLock.Lock()
	defer driverLock.Unlock()
	drivers[name] = create
}

// Drivers returns the registered schemes in order.
func Drivers() []string {
	driverLock.Lock()
	defer driverLock.Unlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewStorage creates the Storage for a URL such as `redis://localhost:6379/1`
// or `file:///var/lib/logcache`.
func NewStorage(uri string) (Storage, error) {
	p := strings.Index(uri, "://")
	if p < 0 {
		return nil, fmt.Errorf("invalid storage URL: %s", uri)
	}
	driver := strings.ToLower(uri[:p])
	driverLock.Lock()
	create, ok := drivers[driver]
	driverLock.Unlock()
	if !ok {
		return nil, fmt.Errorf("invalid storage driver: %s (supported: %s)", driver, strings.Join(Drivers(), ", "))
	}
	s, err := create(driver, uri[p+3:])
	if err != nil {
		return nil, fmt.Errorf("create %s storage: %s", driver, err)
	}
	logger.Debugf("storage %s is created for %s", s.Name(), driver)
	return s, nil
}
