// pkg/chunk/chunk.go

// Package chunk buffers serialized log records into bounded text chunks and
// persists them to a storage.Storage under increasing sequence keys, so that
// the oldest chunk can be read and removed after a restart.
package chunk

import (
	"github.com/sirupsen/logrus"

	"logcache/pkg/utils"
)

const (
	// DefaultMaxLength is the chunk size, in bytes, used when Config.MaxLength is zero.
	DefaultMaxLength = 500000
	// DefaultSeparator joins records within a chunk.
	DefaultSeparator = ","
)

// Config of a Cache. Zero fields take the defaults.
type Config struct {
	MaxLength int
	Separator string
	Logger    logrus.FieldLogger
}

func (c *Config) withDefaults() Config {
	var conf Config
	if c != nil {
		conf = *c
	}
	if conf.MaxLength <= 0 {
		conf.MaxLength = DefaultMaxLength
	}
	if conf.Separator == "" {
		conf.Separator = DefaultSeparator
	}
	if conf.Logger == nil {
		conf.Logger = utils.GetLogger("logcache")
	}
	return conf
}

// Stats is a snapshot of the in-memory state of a Cache.
type Stats struct {
	Sequence     int64
	BufferLength int
	MaxLength    int
}
