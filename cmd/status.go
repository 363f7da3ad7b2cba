// cmd/status.go

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"logcache/pkg/chunk"
	"logcache/pkg/storage"
	"logcache/pkg/utils"
)

type chunkInfo struct {
	Key  string
	Size int
}

type sections struct {
	Storage   string
	Namespace string
	Chunks    int
	Oldest    string `json:",omitempty"`
	Newest    string `json:",omitempty"`
	Next      string
	MaxLength int
}

func printJson(v interface{}) {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Fatalf("json: %s", err)
	}
	fmt.Println(string(output))
}

func status(c *cli.Context) error {
	return withCache(c, func(ctx context.Context, cache *chunk.Cache) error {
		seqs, err := cache.Chunks(ctx)
		if err != nil {
			return err
		}
		st := cache.Stats()
		s := &sections{
			Storage:   c.Args().Get(0),
			Namespace: c.String("namespace"),
			Chunks:    len(seqs),
			Next:      chunk.EncodeKey(st.Sequence),
			MaxLength: st.MaxLength,
		}
		if len(seqs) > 0 {
			s.Oldest = chunk.EncodeKey(seqs[0])
			s.Newest = chunk.EncodeKey(seqs[len(seqs)-1])
		}
		printJson(s)
		return nil
	})
}

func statusFlags() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "show chunks and the next chunk key of a namespace",
		ArgsUsage: "STORAGE-URL",
		Action:    status,
	}
}

func listChunks(ctx context.Context, cache *chunk.Cache, store storage.Storage) ([]chunkInfo, error) {
	seqs, err := cache.Chunks(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]chunkInfo, 0, len(seqs))
	for _, seq := range seqs {
		key := chunk.EncodeKey(seq)
		v, ok, err := store.GetItem(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			infos = append(infos, chunkInfo{key, len(v)})
		}
	}
	return infos, nil
}

func ls(c *cli.Context) error {
	setLoggerLevel(c)
	store, err := openStorage(c)
	if err != nil {
		return err
	}
	defer func() { _ = storage.Close(store) }()
	cache, err := openCache(c, store)
	if err != nil {
		return err
	}
	infos, err := listChunks(c.Context, cache, store)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		printJson(infos)
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	var total int64
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\n", info.Key, utils.HumanSize(int64(info.Size)))
		total += int64(info.Size)
	}
	fmt.Fprintf(w, "total %d\t%s\n", len(infos), utils.HumanSize(total))
	return w.Flush()
}

func lsFlags() *cli.Command {
	return &cli.Command{
		Name:      "ls",
		Usage:     "list the chunks with their sizes, oldest first",
		ArgsUsage: "STORAGE-URL",
		Action:    ls,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print as JSON",
			},
		},
	}
}
