// cmd/timer runs the Anti-Snipe Timer Controller as an independent,
// horizontally-unscaled singleton process (spec §2 process topology [ADD]):
// the close decision needs a single writer, so this binary is never meant to
// be replicated behind a load balancer the way cmd/api is.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/karti/auctionhouse/internal/config"
	"github.com/karti/auctionhouse/internal/logging"
	"github.com/karti/auctionhouse/internal/queue"
	"github.com/karti/auctionhouse/internal/sss"
	"github.com/karti/auctionhouse/internal/store"
	"github.com/karti/auctionhouse/internal/timer"
)

func main() {
	cfg := config.Load()
	log := logging.New("timer", cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	sssStore := sss.NewStore(redis.NewClient(redisOpts), sss.NewKeys("auction"))

	amqpConn, err := queue.Dial(cfg.AMQPURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to rabbitmq")
	}
	defer amqpConn.Close()

	controller := timer.New(sssStore, db, amqpConn, log, cfg.TimerBroadcastInterval, cfg.TimerDBSyncInterval)

	log.Info().Msg("timer controller starting")
	if err := controller.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("timer controller stopped")
	}
	log.Info().Msg("timer controller shut down")
}
