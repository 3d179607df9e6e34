package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"medalchain/internal/accounts"
	"medalchain/internal/chain"
	"medalchain/internal/config"
	"medalchain/internal/hmacauth"
	"medalchain/internal/idempotency"
	"medalchain/internal/medals"
	"medalchain/internal/metrics"
	"medalchain/internal/nft"
)

type Distributor interface {
	Distribute(ctx context.Context, to chain.Address, award medals.Award) (*medals.Distribution, error)
}

type MedalReader interface {
	UserMedals(ctx context.Context, user chain.Address) (accounts.MedalCounts, error)
	GlobalStats(ctx context.Context) (medals.Stats, error)
}

type Minter interface {
	Mint(ctx context.Context, req nft.MintRequest) (*nft.MintResult, error)
}

type NFTQuery interface {
	QueryAll(ctx context.Context, page, size int) (*nft.Page, error)
}

// Deps are the collaborators the HTTP surface forwards to.
type Deps struct {
	Node        chain.Node
	Distributor Distributor
	Medals      MedalReader
	Minter      Minter
	NFTs        NFTQuery
	Accounts    accounts.Store
	Idempotency idempotency.Store
	Metrics     *metrics.Registry
	// DBHealth is optional; nil means no database is in use.
	DBHealth func(context.Context) error
	Clock    clock.Clock
	Log      *zap.Logger
}

type Server struct {
	cfg        *config.AppConfig
	deps       Deps
	hmac       *hmacauth.Verifier
	httpServer *http.Server
	metrics    *metrics.Registry
	clock      clock.Clock
	log        *zap.Logger
	dlqMu      sync.Mutex
	inflight   sync.Map
}

func NewServer(cfg *config.AppConfig, deps Deps) *Server {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Accounts == nil {
		deps.Accounts = accounts.NewMemoryStore()
	}

	s := &Server{
		cfg:  cfg,
		deps: deps,
		hmac: &hmacauth.Verifier{
			Secret:  cfg.Service.HMACSecret,
			MaxSkew: cfg.Service.HMACClockSkew,
			Clock:   deps.Clock,
			Log:     deps.Log,
		},
		metrics: deps.Metrics,
		clock:   deps.Clock,
		log:     deps.Log,
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/medals/distribute", s.hmac.Middleware(s.idempotent(routeDistribute, s.distribute)))
	mux.HandleFunc("GET /api/v1/medals/stats", s.handleMedalStats)
	mux.HandleFunc("GET /api/v1/medals/{address}", s.handleUserMedals)
	mux.Handle("POST /api/v1/nfts", s.hmac.Middleware(s.idempotent(routeMint, s.mint)))
	mux.HandleFunc("GET /api/v1/nfts", s.handleListNFTs)
	mux.Handle("PUT /api/v1/accounts/{address}", s.hmac.Middleware(http.HandlerFunc(s.handleRegisterAccount)))
	mux.HandleFunc("GET /api/v1/accounts/{address}", s.handleGetAccount)
	mux.HandleFunc("GET /api/v1/chain/status", s.handleChainStatus)
	mux.Handle("GET /api/v1/metrics", s.metrics.Handler())
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           requestIDMiddleware(mux),
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.updateDLQDepth()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	s.log.Info("API listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleChainStatus(w http.ResponseWriter, r *http.Request) {
	st, err := chain.Probe(r.Context(), s.deps.Node, s.cfg.Chain.Distributor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	rpcInfo := struct {
		Connected bool    `json:"connected"`
		Block     uint64  `json:"block,omitempty"`
		LatencyMs float64 `json:"latency_ms"`
		Error     string  `json:"error,omitempty"`
	}{}

	start := time.Now()
	rpcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if block, err := s.deps.Node.BlockNumber(rpcCtx); err != nil {
		rpcInfo.Error = err.Error()
		overallHealthy = false
	} else {
		rpcInfo.Connected = true
		rpcInfo.Block = block
		rpcInfo.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
	}

	dbInfo := struct {
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}{Connected: true}

	if s.deps.DBHealth != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.deps.DBHealth(dbCtx); err != nil {
			dbInfo.Connected = false
			dbInfo.Error = err.Error()
			overallHealthy = false
		}
	}

	queueDepth := s.updateDLQDepth()

	status := "healthy"
	if !overallHealthy {
		status = "degraded"
	}

	resp := struct {
		Status     string      `json:"status"`
		RPC        interface{} `json:"rpc"`
		Database   interface{} `json:"database"`
		QueueDepth int         `json:"queue_depth"`
	}{
		Status:     status,
		RPC:        rpcInfo,
		Database:   dbInfo,
		QueueDepth: queueDepth,
	}

	code := http.StatusOK
	if !overallHealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-Id") == "" {
			r.Header.Set("X-Request-Id", fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		w.Header().Set("X-Request-Id", r.Header.Get("X-Request-Id"))
		next.ServeHTTP(w, r)
	})
}
