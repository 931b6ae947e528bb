package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dudu/facecascade/internal/cache"
	"github.com/dudu/facecascade/internal/config"
	"github.com/dudu/facecascade/internal/server"
)

func runServe(cfg config.Config, args []string) error {
	fs := newFlagSet("serve", &cfg)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	fs.Float64Var(&cfg.RateLimit, "rate", cfg.RateLimit, "Requests per second per client")
	fs.IntVar(&cfg.RateBurst, "burst", cfg.RateBurst, "Request burst per client")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address for result caching (empty = off)")
	fs.IntVar(&cfg.CacheTTLSec, "cachettl", cfg.CacheTTLSec, "Cached result lifetime in seconds")
	fs.Parse(args)

	log, err := setup(cfg)
	if err != nil {
		return err
	}

	p, err := newPipeline(cfg, log)
	if err != nil {
		return err
	}
	defer p.Close()

	options := []server.ServerOption{
		server.WithDetector(p),
		server.WithLogger(log),
		server.WithValidator(validator.New()),
		server.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		server.WithScanDefaults(scanParams(cfg)),
	}

	if cfg.RedisAddr != "" {
		c, err := cache.New(context.Background(), cache.Options{
			Addr:     cfg.RedisAddr,
			Password: os.Getenv("FACECASCADE_REDIS_PASSWORD"),
			DB:       cfg.RedisDB,
			TTL:      time.Duration(cfg.CacheTTLSec) * time.Second,
		}, log)
		if err != nil {
			return err
		}
		defer c.Close()
		options = append(options, server.WithCache(c))
	}

	srv, err := server.NewServer(options...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.Listen(cfg.Addr) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
