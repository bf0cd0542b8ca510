// cmd/settlement runs the durable settlement sink: the queue consumer and
// the transactional-outbox publisher loop both live here, since both exist
// only to make the bid engine's and timer controller's writes durable
// without holding up the hot path (spec §4.5).
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/karti/auctionhouse/internal/config"
	"github.com/karti/auctionhouse/internal/logging"
	"github.com/karti/auctionhouse/internal/queue"
	"github.com/karti/auctionhouse/internal/settlement"
	"github.com/karti/auctionhouse/internal/store"
)

func main() {
	cfg := config.Load()
	log := logging.New("settlement", cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	amqpConn, err := queue.Dial(cfg.AMQPURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to rabbitmq")
	}
	defer amqpConn.Close()

	consumer := settlement.New(amqpConn, db, settlement.LogNotifier{Log: log}, log)

	errs := make(chan error, 2)
	go func() { errs <- consumer.Run(ctx) }()
	go func() { errs <- settlement.PublishOutbox(ctx, db, amqpConn, cfg.TimerDBSyncInterval, log) }()

	log.Info().Msg("settlement sink starting")
	select {
	case <-ctx.Done():
	case err := <-errs:
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("settlement sink stopped")
		}
	}
	log.Info().Msg("settlement sink shut down")
}
