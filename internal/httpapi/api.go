// Package httpapi implements the HTTP API table from spec §6 plus the
// WebSocket upgrade endpoint, wired with chi + chi/middleware + go-chi/cors
// exactly as the teacher's main.go does, generalized into an API struct so
// cmd/api can assemble it from its own config/dependencies instead of
// package-level globals.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/karti/auctionhouse/internal/bidengine"
	"github.com/karti/auctionhouse/internal/blobstore"
	"github.com/karti/auctionhouse/internal/gateway"
	"github.com/karti/auctionhouse/internal/identity"
	"github.com/karti/auctionhouse/internal/metrics"
	"github.com/karti/auctionhouse/internal/queue"
	"github.com/karti/auctionhouse/internal/sss"
	"github.com/karti/auctionhouse/internal/store"
)

type API struct {
	store    *store.Store
	sss      *sss.Store
	engine   *bidengine.Engine
	verifier identity.Verifier
	issuer   *identity.Issuer
	blobs    blobstore.Store
	hub      *gateway.Hub
	metrics  *metrics.Metrics
	queue    queue.Publisher
	log      zerolog.Logger

	corsOrigins []string
}

func New(
	s *store.Store, sssStore *sss.Store, engine *bidengine.Engine,
	verifier identity.Verifier, issuer *identity.Issuer, blobs blobstore.Store,
	hub *gateway.Hub, m *metrics.Metrics, q queue.Publisher,
	log zerolog.Logger, corsOrigins []string,
) *API {
	return &API{
		store: s, sss: sssStore, engine: engine, verifier: verifier, issuer: issuer,
		blobs: blobs, hub: hub, metrics: m, queue: q, log: log, corsOrigins: corsOrigins,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: len(a.corsOrigins) > 0 && a.corsOrigins[0] != "*",
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", a.metrics.Handler())

	r.Post("/auth/register", a.register)
	r.Post("/auth/login", a.login)

	r.Get("/ws", a.handleWebSocket)

	r.Route("/auctions", func(r chi.Router) {
		r.With(a.requireAuth).Post("/", a.createAuction)
		r.Get("/", a.listAuctions)
		r.Get("/{id}", a.getAuction)
		r.With(a.requireAuth).Post("/batch", a.batchAuctions)
		r.Get("/{id}/state", a.getAuctionState)
		r.With(a.requireAuth).Post("/{id}/close", a.closeAuction)
	})

	r.Group(func(r chi.Router) {
		r.Use(a.requireAuth)
		r.Post("/bids", a.placeBid)
		r.Get("/bids", a.listMyBids)
	})

	return r
}
