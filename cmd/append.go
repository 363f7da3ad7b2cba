// cmd/append.go

package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"logcache/pkg/chunk"
)

// record is the envelope written by `append --json`.
type record struct {
	ID   string `json:"id"`
	Time string `json:"time"`
	Msg  string `json:"msg"`
}

func newRecord(msg string) *record {
	return &record{ID: uuid.New().String(), Time: time.Now().UTC().Format(time.RFC3339Nano), Msg: msg}
}

func appendOne(ctx context.Context, cache *chunk.Cache, line string, asJSON bool) error {
	if asJSON {
		return cache.AppendObject(ctx, newRecord(line))
	}
	return cache.Append(ctx, line)
}

func appendLines(ctx context.Context, cache *chunk.Cache, in io.Reader, asJSON bool) (int, error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64<<10), 16<<20)
	var n int
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := appendOne(ctx, cache, line, asJSON); err != nil {
			return n, err
		}
		n++
	}
	return n, scanner.Err()
}

func appendRecords(c *cli.Context) error {
	asJSON := c.Bool("json")
	return withCache(c, func(ctx context.Context, cache *chunk.Cache) error {
		var n int
		var err error
		if c.Args().Len() > 1 {
			for _, line := range c.Args().Slice()[1:] {
				if err = appendOne(ctx, cache, line, asJSON); err != nil {
					break
				}
				n++
			}
		} else {
			n, err = appendLines(ctx, cache, os.Stdin, asJSON)
		}
		st := cache.Stats()
		logger.Infof("appended %d records, open chunk is %s with %d bytes", n, chunk.EncodeKey(st.Sequence), st.BufferLength)
		return err
	})
}

func appendFlags() *cli.Command {
	return &cli.Command{
		Name:      "append",
		Usage:     "append records, from arguments or lines of stdin",
		ArgsUsage: "STORAGE-URL [RECORD ...]",
		Action:    appendRecords,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "wrap each record into a JSON object with id and time",
			},
			&cli.Int64Flag{
				Name:  "upload-limit",
				Usage: "bandwidth limit for writing chunks in bytes per second (0 means unlimited)",
			},
		},
	}
}
