package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/voyagen/iptvcatalog/internal/cache"
	"github.com/voyagen/iptvcatalog/internal/config"
	"github.com/voyagen/iptvcatalog/internal/fetcher"
	"github.com/voyagen/iptvcatalog/internal/logger"
	"github.com/voyagen/iptvcatalog/internal/server"
	"github.com/voyagen/iptvcatalog/internal/service"
	"github.com/voyagen/iptvcatalog/internal/store"
)

const usage = `usage: iptvcatalog [-config file] [command]

commands:
  serve                  run the HTTP API (default)
  sync <playlist-id>     sync one playlist and print the summary
  import <playlist-id> <file.m3u>
                         replace a playlist's catalog from an M3U file
`

func main() {
	configPath := flag.String("config", "", "Optional config file path (YAML); else use environment variables")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage); flag.PrintDefaults() }
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, flag.Args()); err != nil {
		logger.Log.Error().Err(err).Msg("exiting")
		stop()
		os.Exit(1)
	}
}

// app bundles the wired components shared by every command.
type app struct {
	store  store.Store
	syncer *service.Syncer
	queue  service.JobQueue
	redis  *cache.Redis
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logger.Log.Warn().Err(err).Msg("close store")
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func run(ctx context.Context, cfg *config.Config, args []string) error {
	a, err := wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	cmd := "serve"
	if len(args) > 0 {
		cmd = args[0]
	}
	switch cmd {
	case "serve":
		return serve(ctx, cfg, a)
	case "sync":
		if len(args) != 2 {
			return errors.New("sync: expected <playlist-id>")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("sync: invalid playlist id %q", args[1])
		}
		res, err := a.syncer.SyncPlaylist(ctx, id)
		if err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		return printJSON(res.Summary())
	case "import":
		if len(args) != 3 {
			return errors.New("import: expected <playlist-id> <file.m3u>")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("import: invalid playlist id %q", args[1])
		}
		data, err := os.ReadFile(args[2])
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}
		imported, err := a.syncer.ImportM3U(ctx, id, string(data))
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}
		return printJSON(map[string]any{"playlist_id": id, "imported": imported})
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// wire opens storage, optionally Redis, and builds the sync pipeline.
func wire(ctx context.Context, cfg *config.Config) (*app, error) {
	log := logger.Log

	if err := store.EnsureDatabase(ctx, cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	base, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	backend, _ := store.ParseDSN(cfg.DatabaseURL)
	log.Info().Str("backend", string(backend)).Msg("store opened")

	a := &app{store: base}
	var locker cache.Locker
	if cfg.RedisURL != "" {
		rds, err := cache.New(cfg.RedisURL)
		if err != nil {
			base.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		if err := rds.Ping(ctx); err != nil {
			base.Close()
			_ = rds.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		a.redis = rds
		a.store = store.NewCachedStore(base, rds, logger.Component("cache"))
		a.queue = cache.NewQueue(rds, cache.DefaultQueue)
		locker = cache.NewRedisLocker(rds)
		log.Info().Msg("redis connected (caching, locks and job queue enabled)")
	} else {
		a.queue = cache.NewLocalQueue(0)
		log.Info().Msg("redis disabled (REDIS_URL not set)")
	}

	client := fetcher.NewClient(nil, fetcher.Options{
		UserAgent:  cfg.UserAgent,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		Rate:       cfg.Rate,
		Burst:      cfg.Burst,
	}, logger.Component("fetcher"))
	prober := fetcher.NewProber(client, logger.Component("probe"))
	a.syncer = service.NewSyncer(a.store, prober, locker, service.Options{
		FetchAllKinds: cfg.SyncAllKinds,
		LockTTL:       cfg.SyncLockTTL,
	}, logger.Component("sync"))
	return a, nil
}

func serve(ctx context.Context, cfg *config.Config, a *app) error {
	go service.NewWorker(a.queue, a.syncer, logger.Component("worker")).Run(ctx)
	go service.NewScheduler(a.store, a.queue, cfg.SyncInterval, logger.Component("scheduler")).Run(ctx)

	srv := server.New(a.store, a.syncer, a.queue, cfg, logger.Component("http"))
	if err := srv.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
