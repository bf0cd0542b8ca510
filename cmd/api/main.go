// cmd/api runs the HTTP API and Realtime Gateway in one process (spec §2
// process topology [ADD]): both need the same Bid Engine and SSS client
// pool, so splitting them into separate binaries would only add a network
// hop between tightly coupled collaborators.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/karti/auctionhouse/internal/bidengine"
	"github.com/karti/auctionhouse/internal/blobstore"
	"github.com/karti/auctionhouse/internal/config"
	"github.com/karti/auctionhouse/internal/gateway"
	"github.com/karti/auctionhouse/internal/httpapi"
	"github.com/karti/auctionhouse/internal/identity"
	"github.com/karti/auctionhouse/internal/logging"
	"github.com/karti/auctionhouse/internal/metrics"
	"github.com/karti/auctionhouse/internal/queue"
	"github.com/karti/auctionhouse/internal/sss"
	"github.com/karti/auctionhouse/internal/store"
)

func main() {
	cfg := config.Load()
	log := logging.New("api", cfg.LogLevel, cfg.LogFormat)

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
	rdb := redis.NewClient(redisOpts)
	sssStore := sss.NewStore(rdb, sss.NewKeys("auction"))

	amqpConn, err := queue.Dial(cfg.AMQPURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to rabbitmq")
	}
	defer amqpConn.Close()

	engine := bidengine.New(sssStore, db, amqpConn,
		cfg.MinBidIncrement, cfg.AntiSnipeThreshold, cfg.AntiSnipeExtension, cfg.MaxAntiSnipeExtensions)

	hub := gateway.NewHub(sssStore, logging.New("gateway", cfg.LogLevel, cfg.LogFormat),
		cfg.SessionHeartbeat, cfg.SessionTimeout)
	go func() {
		if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("gateway hub stopped")
		}
	}()

	verifier := identity.NewHMACVerifier(cfg.JWTSecret)
	issuer := identity.NewIssuer(cfg.JWTSecret, 24*time.Hour)
	blobs := blobstore.NewLocal("./uploads", "/uploads")
	m := metrics.New("auctionhouse")

	api := httpapi.New(db, sssStore, engine, verifier, issuer, blobs, hub, m, amqpConn, log, cfg.CORSOrigins)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
