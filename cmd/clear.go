// cmd/clear.go

package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"logcache/pkg/chunk"
)

func clearChunks(c *cli.Context) error {
	if !c.Bool("yes") {
		return fmt.Errorf("clear removes every key of namespace %q, confirm with --yes", c.String("namespace"))
	}
	return withCache(c, func(ctx context.Context, cache *chunk.Cache) error {
		seqs, err := cache.Chunks(ctx)
		if err != nil {
			return err
		}
		if err = cache.Clear(ctx); err != nil {
			return err
		}
		logger.Infof("namespace %s is cleared, %d chunks removed", c.String("namespace"), len(seqs))
		return nil
	})
}

func clearFlags() *cli.Command {
	return &cli.Command{
		Name:      "clear",
		Usage:     "remove all keys of the namespace, chunks or not",
		ArgsUsage: "STORAGE-URL",
		Action:    clearChunks,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "do not ask for confirmation",
			},
		},
	}
}
