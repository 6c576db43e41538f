package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"creditpool/native/market"
	"creditpool/observability"
	"creditpool/services/poold/middleware"
	"creditpool/state/ledger"
)

// Config wires a server.
type Config struct {
	ServiceName       string
	Market            *market.Market
	Store             *ledger.Store
	Hub               *Hub
	Auth              middleware.AuthConfig
	RateLimit         middleware.RateLimit
	SnapshotRetention int
	OriginPatterns    []string
	LogRequests       bool
	Logger            *slog.Logger
}

// Server exposes a market over HTTP/JSON and a websocket event feed.
type Server struct {
	market         *market.Market
	store          *ledger.Store
	hub            *Hub
	retention      int
	originPatterns []string
	logger         *slog.Logger
	handler        http.Handler
}

func New(cfg Config) (*Server, error) {
	if cfg.Market == nil {
		return nil, errors.New("server: market required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hub := cfg.Hub
	if hub == nil {
		hub = NewHub(nil, logger)
	}
	service := cfg.ServiceName
	if service == "" {
		service = "poold"
	}
	s := &Server{
		market:         cfg.Market,
		store:          cfg.Store,
		hub:            hub,
		retention:      cfg.SnapshotRetention,
		originPatterns: cfg.OriginPatterns,
		logger:         logger.With("component", "server"),
	}

	auth := middleware.NewAuthenticator(cfg.Auth, logger)
	limiter := middleware.NewRateLimiter(cfg.RateLimit, logger)
	obs := middleware.NewObservability(service, cfg.LogRequests, logger)

	r := chi.NewRouter()
	r.Use(obs.Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(auth.Middleware)

		v1.Route("/pool", func(pr chi.Router) {
			pr.Use(limiter.Middleware("pool"))
			pr.Get("/", s.handlePool)
			pr.Get("/borrowers", s.handleBorrowers)
			pr.Get("/borrowers/{borrower}", s.handleBorrower)
			pr.Get("/holders/{holder}", s.handleHolder)
			pr.Post("/deposit", s.handleDeposit)
			pr.Post("/mint", s.handleMint)
			pr.Post("/withdraw", s.handleWithdraw)
			pr.Post("/redeem", s.handleRedeem)
			pr.Post("/borrow", s.handleBorrow)
			pr.Post("/repay", s.handleRepay)
		})

		v1.Route("/quotas", func(qr chi.Router) {
			qr.Use(limiter.Middleware("quotas"))
			qr.Get("/", s.handleAssets)
			qr.Get("/{asset}", s.handleAsset)
			qr.Get("/{asset}/positions/{position}", s.handlePosition)
			qr.Post("/update", s.handleUpdateQuota)
			qr.Post("/remove", s.handleRemoveQuotas)
			qr.Post("/accrue", s.handleAccrueInterest)
		})

		v1.Route("/keeper", func(kr chi.Router) {
			kr.Use(limiter.Middleware("keeper"))
			kr.Get("/", s.handleKeeper)
			kr.Get("/votes/{voter}/{asset}", s.handleVotes)
			kr.Post("/register", s.handleRegister)
			kr.Post("/vote", s.handleVote)
			kr.Post("/unvote", s.handleUnvote)
			kr.Post("/band", s.handleBand)
			kr.Post("/freeze", s.handleFreeze)
			kr.Post("/rate", s.handleRate)
			kr.Post("/epoch-length", s.handleEpochLength)
			kr.Post("/refresh", s.handleRefresh)
		})

		v1.Route("/admin", func(ar chi.Router) {
			ar.Use(limiter.Middleware("admin"))
			ar.Post("/total-debt-limit", s.handleTotalDebtLimit)
			ar.Post("/borrower-debt-limit", s.handleBorrowerDebtLimit)
			ar.Post("/withdraw-fee", s.handleWithdrawFee)
			ar.Post("/treasury", s.handleTreasury)
			ar.Post("/token-limit", s.handleTokenLimit)
			ar.Post("/token-fee", s.handleTokenFee)
			ar.Post("/pause", s.handlePause)
			ar.Post("/unpause", s.handleUnpause)
		})

		v1.Get("/snapshot", s.handleSnapshot)
		v1.Get("/events", s.handleEvents)
		v1.Get("/events/stream", s.handleStream)
	})

	s.handler = otelhttp.NewHandler(r, service)
	return s, nil
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Persist writes a snapshot of the market and prunes old versions. It is a
// no-op without a store.
func (s *Server) Persist() (ledger.Receipt, error) {
	if s.store == nil {
		return ledger.Receipt{}, nil
	}
	receipt, err := s.market.Persist(s.store)
	if err != nil {
		return ledger.Receipt{}, err
	}
	if s.retention > 0 {
		if err := s.store.Prune(s.retention); err != nil {
			s.logger.Warn("snapshot prune failed", "error", err)
		}
	}
	return receipt, nil
}

// committed runs after a successful write. Persistence failures are logged;
// the in-memory ledger stays authoritative until the next successful save.
func (s *Server) committed(r *http.Request) {
	observability.Ledger().ObserveView(s.market.View())
	if _, err := s.Persist(); err != nil {
		s.logger.Error("snapshot persist failed", "path", r.URL.Path, "error", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if statusFor(err) == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, err)
}
