// cmd/check.go

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"logcache/pkg/storage"
)

// doTesting writes, reads back and removes a key that is not a chunk key.
func doTesting(ctx context.Context, store storage.Storage, key, data string) error {
	if err := store.SetItem(ctx, key, data); err != nil {
		return errors.Wrap(err, "Failed to set")
	}
	got, ok, err := store.GetItem(ctx, key)
	if err != nil {
		return errors.Wrap(err, "Failed to get")
	}
	if !ok || got != data {
		return fmt.Errorf("Read wrong data")
	}
	if err = store.RemoveItem(ctx, key); err != nil {
		return errors.Wrap(err, "Failed to remove")
	}
	if _, ok, err = store.GetItem(ctx, key); err == nil && ok {
		return fmt.Errorf("%s is still there after remove", key)
	}
	return nil
}

func test(ctx context.Context, store storage.Storage, retries int) error {
	key := "testing-" + uuid.New().String()
	data := uuid.New().String()
	if retries < 0 {
		retries = 0
	}
	var err error
	for i := 0; i <= retries; i++ {
		err = doTesting(ctx, store, key, data)
		if err == nil {
			return nil
		}
		logger.Warnf("check %s: %s", store.Name(), err)
		if i == retries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second * time.Duration(i*3+1)):
		}
	}
	return err
}

func check(c *cli.Context) error {
	setLoggerLevel(c)
	store, err := openStorage(c)
	if err != nil {
		return err
	}
	defer func() { _ = storage.Close(store) }()
	conf := &storage.Config{Namespace: c.String("namespace"), Retries: c.Int("retries")}
	if err = store.Configure(c.Context, conf); err != nil {
		return errors.Wrapf(err, "configure %s", store.Name())
	}
	if err = test(c.Context, store, c.Int("attempts")-1); err != nil {
		return fmt.Errorf("Storage %s is not configured correctly: %s", store.Name(), errors.Cause(err))
	}
	logger.Infof("Storage %s is ready, namespace %s", store.Name(), conf.Namespace)
	return nil
}

func checkFlags() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "check that a storage can set, get and remove keys",
		ArgsUsage: "STORAGE-URL",
		Action:    check,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "attempts",
				Value: 3,
				Usage: "number of attempts before giving up (at least 1)",
			},
		},
	}
}
