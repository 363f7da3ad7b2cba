// cmd/main.go

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"logcache/pkg/chunk"
	"logcache/pkg/storage"
	"logcache/pkg/utils"
	"logcache/pkg/version"
)

var logger = utils.GetLogger("logcache")

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"debug", "v"},
			Usage:   "enable debug log",
		},
		&cli.BoolFlag{
			Name:    "quiet",
			Aliases: []string{"q"},
			Usage:   "only warning and errors",
		},
		&cli.StringFlag{
			Name:  "log",
			Usage: "path of log file (default: stderr)",
		},
		&cli.StringFlag{
			Name:    "namespace",
			Aliases: []string{"n"},
			Value:   storage.DefaultNamespace,
			Usage:   "storage namespace holding the chunks",
			EnvVars: []string{"LOGCACHE_NAMESPACE"},
		},
		&cli.IntFlag{
			Name:  "retries",
			Value: 10,
			Usage: "number of retries of the storage client, if it supports them",
		},
		&cli.IntFlag{
			Name:    "max-length",
			Value:   chunk.DefaultMaxLength,
			Usage:   "maximum length of a chunk in bytes",
			EnvVars: []string{"LOGCACHE_MAX_LENGTH"},
		},
		&cli.StringFlag{
			Name:  "separator",
			Value: chunk.DefaultSeparator,
			Usage: "separator between records of a chunk",
		},
	}
}

func setLoggerLevel(c *cli.Context) {
	if c.Bool("verbose") {
		utils.SetLogLevel(logrus.DebugLevel)
	} else if c.Bool("quiet") {
		utils.SetLogLevel(logrus.WarnLevel)
	} else {
		utils.SetLogLevel(logrus.InfoLevel)
	}
	if p := c.String("log"); p != "" {
		if err := utils.SetOutFile(p); err != nil {
			logger.Warnf("open log file %s: %s", p, err)
		}
	}
}

// openCache returns a cache over store, configured by the global flags.
func openCache(c *cli.Context, store storage.Storage) (*chunk.Cache, error) {
	cache := chunk.NewCache(store, &chunk.Config{
		MaxLength: c.Int("max-length"),
		Separator: c.String("separator"),
		Logger:    logger,
	})
	conf := &storage.Config{Namespace: c.String("namespace"), Retries: c.Int("retries")}
	if err := cache.Configure(c.Context, conf); err != nil {
		return nil, err
	}
	return cache, nil
}

func openStorage(c *cli.Context) (storage.Storage, error) {
	if c.Args().Len() < 1 {
		return nil, fmt.Errorf("STORAGE-URL is needed")
	}
	store, err := storage.NewStorage(c.Args().Get(0))
	if err != nil {
		return nil, err
	}
	// only the commands moving chunk data define these
	up, down := c.Int64("upload-limit"), c.Int64("download-limit")
	if up > 0 || down > 0 {
		store = storage.NewLimited(store, up, down)
	}
	return store, nil
}

// withCache runs fn over a configured cache and closes the storage afterwards.
func withCache(c *cli.Context, fn func(ctx context.Context, cache *chunk.Cache) error) error {
	setLoggerLevel(c)
	store, err := openStorage(c)
	if err != nil {
		return err
	}
	defer func() {
		if err := storage.Close(store); err != nil {
			logger.Warnf("close %s: %s", store.Name(), err)
		}
	}()
	cache, err := openCache(c, store)
	if err != nil {
		return err
	}
	return fn(c.Context, cache)
}

func newApp() *cli.App {
	// -v is taken by --verbose
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print only the version",
	}
	return &cli.App{
		Name:    "logcache",
		Usage:   "buffer log records into chunks kept in a key-value store",
		Version: version.Version(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			appendFlags(),
			oldestFlags(),
			popFlags(),
			lsFlags(),
			statusFlags(),
			drainFlags(),
			clearFlags(),
			checkFlags(),
		},
	}
}

func main() {
	err := newApp().Run(os.Args)
	if err != nil {
		logger.Fatalf("%s", err)
	}
}
