// feedgend is the ingestion process: it runs the Firehose Subscriber
// and the Writer Loop over a shared Event Queue, persisting classified
// firehose events into the shared Postgres store. See SPEC_FULL.md §2.
//
// Usage:
//
//	./feedgend -config feedgen.yaml
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/feedgen/feedgen/internal/config"
	"github.com/feedgen/feedgen/internal/logging"
	"github.com/feedgen/feedgen/internal/queue"
	"github.com/feedgen/feedgen/internal/store"
	"github.com/feedgen/feedgen/internal/subscriber"
	"github.com/feedgen/feedgen/internal/writer"
)

func main() {
	configPath := flag.String("config", "feedgen.yaml", "path to YAML configuration file")
	flag.Parse()

	logging.Init(logging.Config{Level: logging.InfoLevel})
	log := logging.WithComponent("feedgend")

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
	log.Info().Msg("store connected, schema bootstrapped")

	q := queue.New(queue.DefaultCapacity)

	sub := subscriber.New(cfg.FirehoseURL, q, logging.WithComponent("subscriber"))
	loop := writer.New(db, q, logging.WithComponent("writer"))

	done := make(chan struct{})
	go func() {
		loop.Run(ctx, os.Exit)
		close(done)
	}()

	if err := sub.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("firehose subscriber terminated unrecoverably")
	}

	cancel()
	<-done
}
