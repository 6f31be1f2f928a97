// feedserver is the serving process: it exposes the well-known DID
// document, feed description, and getFeedSkeleton endpoints over HTTP,
// reading candidates from the shared Postgres store populated by
// feedgend. See SPEC_FULL.md §2.
//
// Usage:
//
//	./feedserver -config feedgen.yaml
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/feedgen/feedgen/internal/auth"
	"github.com/feedgen/feedgen/internal/config"
	"github.com/feedgen/feedgen/internal/feed"
	"github.com/feedgen/feedgen/internal/identity"
	"github.com/feedgen/feedgen/internal/logging"
	"github.com/feedgen/feedgen/internal/primer"
	"github.com/feedgen/feedgen/internal/server"
	"github.com/feedgen/feedgen/internal/store"
)

func main() {
	configPath := flag.String("config", "feedgen.yaml", "path to YAML configuration file")
	flag.Parse()

	logging.Init(logging.Config{Level: logging.InfoLevel})
	log := logging.WithComponent("feedserver")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	db, err := store.Open(ctx, cfg.ConnString())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to store")
	}
	defer db.Close()

	resolver := identity.New(cfg.PLCDirectory)
	materializer := feed.New(db)
	followPrimer := primer.New(db, resolver, logging.WithComponent("primer"))
	keyResolver := &auth.DIDKeyResolver{Resolver: resolver}

	srv := server.New(cfg, materializer, followPrimer, keyResolver, logging.WithComponent("server"))
	if err := srv.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
}
