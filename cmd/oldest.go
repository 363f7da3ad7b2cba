// cmd/oldest.go

package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"logcache/pkg/chunk"
)

func oldest(c *cli.Context) error {
	return withCache(c, func(ctx context.Context, cache *chunk.Cache) error {
		seq, content, ok, err := cache.OldestChunk(ctx)
		if err != nil {
			return err
		}
		if !ok {
			logger.Infof("no chunk found")
			return nil
		}
		logger.Debugf("oldest chunk is %s", chunk.EncodeKey(seq))
		fmt.Println(content)
		return nil
	})
}

func oldestFlags() *cli.Command {
	return &cli.Command{
		Name:      "oldest",
		Usage:     "print the oldest chunk",
		ArgsUsage: "STORAGE-URL",
		Action:    oldest,
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:  "download-limit",
				Usage: "bandwidth limit for reading chunks in bytes per second (0 means unlimited)",
			},
		},
	}
}

func pop(c *cli.Context) error {
	return withCache(c, func(ctx context.Context, cache *chunk.Cache) error {
		seq, content, ok, err := cache.OldestChunk(ctx)
		if err != nil {
			return err
		}
		if !ok {
			logger.Infof("no chunk found")
			return nil
		}
		fmt.Println(content)
		if err = cache.RemoveOldestChunk(ctx); err != nil {
			return err
		}
		logger.Infof("removed chunk %s", chunk.EncodeKey(seq))
		return nil
	})
}

func popFlags() *cli.Command {
	return &cli.Command{
		Name:      "pop",
		Usage:     "print and remove the oldest chunk",
		ArgsUsage: "STORAGE-URL",
		Action:    pop,
	}
}
