// Command otrepl is an interactive replica of a shared integer register.
// Run several of them with distinct src ids over one redis, or one at a
// time over a pebble directory.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/drpcorg/otdag"
	"github.com/drpcorg/otdag/dag"
	"github.com/drpcorg/otdag/examples/register"
	"github.com/drpcorg/otdag/pebblestore"
	"github.com/drpcorg/otdag/redisstore"
	"github.com/drpcorg/otdag/utils"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
)

// openRepository picks redis when an address is configured, pebble
// otherwise. The close function releases the backend.
func openRepository(ctx context.Context, cfg *Config, log utils.Logger) (dag.Repository[dag.ID, Diff], func() error, []prometheus.Collector, error) {
	var (
		repo       dag.Repository[dag.ID, Diff]
		closer     func() error
		collectors []prometheus.Collector
	)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, nil, err
		}
		repo = redisstore.New[Diff](rdb, register.Codec{}, redisstore.Options{
			Namespace: cfg.Redis.Namespace,
			Src:       cfg.Src,
			Logger:    log,
		})
		closer = rdb.Close
		log.Info("using redis", "addr", cfg.Redis.Addr, "namespace", cfg.Redis.Namespace)
	} else {
		store, err := pebblestore.Open[Diff](cfg.Dir, register.Codec{}, pebblestore.Options{Src: cfg.Src, Logger: log})
		if err != nil {
			return nil, nil, nil, err
		}
		repo = store
		closer = store.Close
		collectors = append(collectors, pebblestore.NewCollector(store.DB()), pebblestore.StoreOps)
		log.Info("using pebble", "dir", cfg.Dir)
	}
	repo = dag.NewRetryRepository[dag.ID, Diff](repo, dag.RetryOptions{Logger: log})
	cached, err := dag.NewCachedRepository[dag.ID, Diff](repo, cfg.CacheSize)
	if err != nil {
		_ = closer()
		return nil, nil, nil, err
	}
	return cached, closer, collectors, nil
}

func main() {
	cfg, err := initConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config: %s\n", err)
		os.Exit(-2)
	}
	log := utils.NewLogger(os.Stderr, cfg.LogLevel)
	ctx := utils.WithDefaultArgs(context.Background(), "src", cfg.Src)

	repo, closer, collectors, err := openRepository(ctx, cfg, log)
	if err != nil {
		log.Error("cannot open repository", "err", err)
		os.Exit(-1)
	}
	defer closer()

	repl, err := NewREPL(ctx, repo, otdag.Options{MergeAttempts: cfg.MergeAttempts, Logger: log}, os.Stdout, collectors...)
	if err == nil {
		err = repl.Open()
	}
	if err != nil {
		log.Error("cannot start", "err", err)
		return
	}
	defer repl.Close()

	for err != io.EOF {
		if err != nil {
			_, _ = fmt.Fprintf(os.Stdout, "%s\n", err.Error())
		}
		err = repl.REPL(ctx)
	}
}
