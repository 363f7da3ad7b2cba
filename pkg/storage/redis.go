// pkg/storage/redis.go

package storage

import (
	"context"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const scanBatch = 1000

type redisStore struct {
	sync.RWMutex
	addr   string
	opt    *redis.Options
	rdb    *redis.Client
	prefix string
}

func init() {
	Register("redis", newRedisStore)
	Register("rediss", newRedisStore)
}

// newRedisStore parses the URL only; the connection is made by Configure.
func newRedisStore(driver, addr string) (Storage, error) {
	url := driver + "://" + addr
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Errorf("parse %s: %s", url, err)
	}
	if opt.Password == "" && os.Getenv("REDIS_PASSWORD") != "" {
		opt.Password = os.Getenv("REDIS_PASSWORD")
	}
	opt.MinRetryBackoff = time.Millisecond * 100
	opt.MaxRetryBackoff = time.Minute * 1
	opt.ReadTimeout = time.Second * 30
	opt.WriteTimeout = time.Second * 5
	return &redisStore{addr: opt.Addr, opt: opt, prefix: DefaultNamespace + ":"}, nil
}

func (r *redisStore) newClient(retries int) *redis.Client {
	opt := *r.opt
	opt.MaxRetries = retries
	if !strings.Contains(opt.Addr, ",") {
		return redis.NewClient(&opt)
	}

	var fopt redis.FailoverOptions
	ps := strings.Split(opt.Addr, ",")
	fopt.MasterName = ps[0]
	fopt.SentinelAddrs = ps[1:]

	defaultSentinelPort := "26379"
	for i, saddr := range fopt.SentinelAddrs {
		h, p, err := net.SplitHostPort(saddr)
		if err != nil {
			fopt.SentinelAddrs[i] = net.JoinHostPort(saddr, defaultSentinelPort)
		} else if p == "" {
			fopt.SentinelAddrs[i] = net.JoinHostPort(h, defaultSentinelPort)
		}
	}
	fopt.Username = opt.Username
	fopt.Password = opt.Password
	fopt.SentinelPassword = os.Getenv("SENTINEL_PASSWORD")
	fopt.DB = opt.DB
	fopt.TLSConfig = opt.TLSConfig
	fopt.MaxRetries = opt.MaxRetries
	fopt.MinRetryBackoff = opt.MinRetryBackoff
	fopt.MaxRetryBackoff = opt.MaxRetryBackoff
	fopt.ReadTimeout = opt.ReadTimeout
	fopt.WriteTimeout = opt.WriteTimeout
	return redis.NewFailoverClient(&fopt)
}

func (r *redisStore) Name() string {
	return "redis://" + r.addr
}

func (r *redisStore) Configure(ctx context.Context, conf *Config) error {
	if err := checkNamespace("redis", conf.namespace(), ":"); err != nil {
		return err
	}
	retries := 0
	if conf != nil {
		retries = conf.Retries
	}
	rdb := r.newClient(retries)
	start := time.Now()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return errors.Wrapf(err, "ping %s", r.addr)
	}
	logger.Infof("Ping redis: %s", time.Since(start))

	r.Lock()
	old := r.rdb
	r.rdb = rdb
	r.prefix = conf.namespace() + ":"
	r.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

func (r *redisStore) client() (*redis.Client, string, error) {
	r.RLock()
	defer r.RUnlock()
	if r.rdb == nil {
		return nil, "", errors.New("redis storage is not configured")
	}
	return r.rdb, r.prefix, nil
}

// escapes the glob characters of SCAN MATCH
func matchPattern(prefix string) string {
	var b strings.Builder
	for _, c := range prefix {
		switch c {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	b.WriteByte('*')
	return b.String()
}

func (r *redisStore) scan(ctx context.Context, rdb *redis.Client, prefix string, fn func(keys []string) error) error {
	var cursor uint64
	pattern := matchPattern(prefix)
	for {
		keys, c, err := rdb.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return errors.Wrapf(err, "scan %s", pattern)
		}
		if len(keys) > 0 {
			if err = fn(keys); err != nil {
				return err
			}
		}
		if c == 0 {
			return nil
		}
		cursor = c
	}
}

func (r *redisStore) Keys(ctx context.Context) ([]string, error) {
	rdb, prefix, err := r.client()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var keys []string
	err = r.scan(ctx, rdb, prefix, func(ks []string) error {
		for _, k := range ks {
			// SCAN may return a key more than once
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, strings.TrimPrefix(k, prefix))
		}
		return nil
	})
	return keys, err
}

func (r *redisStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	rdb, prefix, err := r.client()
	if err != nil {
		return "", false, err
	}
	v, err := rdb.Get(ctx, prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "get %s", key)
	}
	return v, true, nil
}

func (r *redisStore) SetItem(ctx context.Context, key, value string) error {
	rdb, prefix, err := r.client()
	if err != nil {
		return err
	}
	if err = rdb.Set(ctx, prefix+key, value, 0).Err(); err != nil {
		return errors.Wrapf(err, "set %s", key)
	}
	return nil
}

func (r *redisStore) RemoveItem(ctx context.Context, key string) error {
	rdb, prefix, err := r.client()
	if err != nil {
		return err
	}
	if err = rdb.Del(ctx, prefix+key).Err(); err != nil {
		return errors.Wrapf(err, "del %s", key)
	}
	return nil
}

func (r *redisStore) Clear(ctx context.Context) error {
	rdb, prefix, err := r.client()
	if err != nil {
		return err
	}
	return r.scan(ctx, rdb, prefix, func(keys []string) error {
		p := rdb.Pipeline()
		for _, k := range keys {
			p.Del(ctx, k)
		}
		if _, err := p.Exec(ctx); err != nil {
			return errors.Wrapf(err, "delete %d keys", len(keys))
		}
		logger.Debugf("cleared %d keys with prefix %s", len(keys), prefix)
		return nil
	})
}

func (r *redisStore) Close() error {
	r.Lock()
	defer r.Unlock()
	if r.rdb == nil {
		return nil
	}
	err := r.rdb.Close()
	r.rdb = nil
	return err
}
