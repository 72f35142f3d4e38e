package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"famcal/internal/auth"
	"famcal/internal/cache"
	"famcal/internal/config"
	appLog "famcal/internal/log"
	"famcal/internal/store"
	"famcal/internal/web"
)

const version = "0.1.0"

type flagConfig struct {
	configPath string
	listen     string
	hashPIN    string
}

func main() {
	flags := parseFlags()

	// -hash-pin prints a bcrypt hash for auth.pin_hash and exits.
	if flags.hashPIN != "" {
		hash, err := auth.HashPIN(flags.hashPIN)
		if err != nil {
			appLog.Error("failed to hash pin", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	appLog.Info("famcal starting", "version", version)

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"week_start", conf.WeekStart,
		"storage", conf.Storage.Driver,
		"members", len(conf.Members),
		"categories", len(conf.Categories),
		"max_range_days", conf.MaxRangeDays,
	)
	if conf.Auth.SessionSecret == config.DefaultSessionSecret {
		appLog.Warn("auth.session_secret is the built-in default; set a real secret")
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, flusher, err := openStore(ctx, conf)
	if err != nil {
		appLog.Error("failed to open store", err, "driver", conf.Storage.Driver)
		os.Exit(1)
	}

	authn, err := auth.New(auth.Options{
		PINHash:      conf.Auth.PINHash,
		PIN:          conf.Auth.PIN,
		Secret:       conf.Auth.SessionSecret,
		TTL:          time.Duration(conf.Auth.SessionDays) * 24 * time.Hour,
		SecureCookie: conf.Auth.SecureCookie,
	})
	if err != nil {
		appLog.Error("failed to init auth", err)
		closeStore(st, flusher)
		os.Exit(1)
	}

	occCache, err := openCache(ctx, conf)
	if err != nil {
		appLog.Error("failed to open cache", err, "driver", conf.Cache.Driver)
		closeStore(st, flusher)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              conf.Listen,
		Handler:           web.NewServer(conf, st, authn, occCache).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("http server listening", "addr", conf.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	case err := <-errCh:
		if err != nil {
			appLog.Error("http server failed", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("http shutdown failed", err)
	}

	if occCache != nil {
		if err := occCache.Close(); err != nil {
			appLog.Error("cache close failed", err)
		}
	}
	closeStore(st, flusher)
	appLog.Info("famcal exiting")
}

// openStore selects the storage backend. The memory store gets a cron
// flusher when it persists to a file.
func openStore(ctx context.Context, conf *config.Config) (store.Store, *cron.Cron, error) {
	switch conf.Storage.Driver {
	case config.DriverPostgres:
		pg, err := store.ConnectPostgres(ctx, conf.Storage.DSN)
		if err != nil {
			return nil, nil, err
		}
		return pg, nil, nil
	default:
		mem, err := store.OpenMemoryStore(conf.Storage.DataPath)
		if err != nil {
			return nil, nil, err
		}
		if conf.Storage.DataPath == "" {
			return mem, nil, nil
		}
		c, err := store.StartFlusher(conf.Storage.FlushCron, mem)
		if err != nil {
			return nil, nil, err
		}
		return mem, c, nil
	}
}

// openCache returns the occurrence cache, or nil when caching is disabled.
func openCache(ctx context.Context, conf *config.Config) (cache.Cache, error) {
	ttl := time.Duration(conf.Cache.TTLSeconds) * time.Second
	switch conf.Cache.Driver {
	case config.CacheNone:
		return nil, nil
	case config.CacheRedis:
		return cache.NewRedis(ctx, cache.RedisOptions{
			Addr:     conf.Cache.RedisAddr,
			Password: conf.Cache.RedisPassword,
			DB:       conf.Cache.RedisDB,
			TTL:      ttl,
		})
	default:
		return cache.NewMemory(ttl), nil
	}
}

// closeStore stops the flusher (waiting for a running flush) and closes the
// store, which flushes once more for the memory backend.
func closeStore(st store.Store, flusher *cron.Cron) {
	if flusher != nil {
		<-flusher.Stop().Done()
	}
	if err := st.Close(); err != nil {
		appLog.Error("store close failed", err)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/famcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.hashPIN, "hash-pin", "", "Print a bcrypt hash of the given PIN for auth.pin_hash and exit")

	flag.Parse()

	return cfg
}
