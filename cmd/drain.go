// cmd/drain.go

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/urfave/cli/v2"

	"logcache/pkg/chunk"
	"logcache/pkg/utils"
)

// drainTo writes chunks to dir/<key>.log, each one before it is removed from
// storage. Unless all is set the newest chunk is kept, since a writer in
// another process may still append to it.
func drainTo(ctx context.Context, cache *chunk.Cache, dir string, limit int, all, quiet bool) (int, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, err
	}
	seqs, err := cache.Chunks(ctx)
	if err != nil {
		return 0, err
	}
	total := len(seqs)
	if !all && total > 0 {
		total--
	}
	if limit > 0 && limit < total {
		total = limit
	}
	if total == 0 {
		return 0, nil
	}
	opts := chunk.DrainOptions{Limit: total}
	progress, bar := utils.NewDynProgressBar("draining chunks: ", quiet)
	bar.SetTotal(int64(total), false)

	n, err := chunk.Drain(ctx, cache, opts, func(seq int64, content string) error {
		p := filepath.Join(dir, chunk.EncodeKey(seq)+".log")
		if err := atomic.WriteFile(p, strings.NewReader(content)); err != nil {
			return err
		}
		logger.Debugf("chunk %d is written to %s", seq, p)
		bar.Increment()
		return nil
	})
	bar.SetTotal(int64(n), true)
	progress.Wait()
	return n, err
}

func drain(c *cli.Context) error {
	if c.Args().Len() < 2 {
		return fmt.Errorf("STORAGE-URL and DIR are needed")
	}
	dir := c.Args().Get(1)
	return withCache(c, func(ctx context.Context, cache *chunk.Cache) error {
		used := utils.GetUsage()
		n, err := drainTo(ctx, cache, dir, c.Int("limit"), c.Bool("all"), c.Bool("quiet"))
		logger.Infof("drained %d chunks into %s in %s", n, dir, used.Since())
		return err
	})
}

func drainFlags() *cli.Command {
	return &cli.Command{
		Name:      "drain",
		Usage:     "move chunks, oldest first, into files of a directory",
		ArgsUsage: "STORAGE-URL DIR",
		Action:    drain,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "move at most this many chunks (0 means all)",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "also move the newest chunk, which a running writer may still append to",
			},
			&cli.Int64Flag{
				Name:  "download-limit",
				Usage: "bandwidth limit for reading chunks in bytes per second (0 means unlimited)",
			},
		},
	}
}
