// Package api exposes the trading arena over HTTP.
package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"trading-arena/internal/analysis"
	"trading-arena/internal/domain"
	"trading-arena/internal/ledger"
	"trading-arena/internal/notify"
	"trading-arena/internal/observability"
	"trading-arena/internal/storage"
)

// AgentPolicy holds the limits applied to agent create and update requests.
type AgentPolicy struct {
	AllowedModels   []string
	DefaultModel    string
	DefaultRisk     domain.RiskParams
	StartingCapital decimal.Decimal
}

func (p AgentPolicy) allows(model string) bool {
	for _, m := range p.AllowedModels {
		if m == model {
			return true
		}
	}
	return false
}

// Server routes API requests to the ledger and the analyzer.
type Server struct {
	repo     storage.Repository
	ledger   *ledger.Ledger
	analyzer *analysis.Analyzer
	hub      *notify.Hub
	policy   AgentPolicy
	now      func() time.Time
	logger   *log.Logger

	handler    http.Handler
	httpServer *http.Server
}

// Options for creating a Server.
type Options struct {
	// Required
	Repository storage.Repository
	Ledger     *ledger.Ledger
	Analyzer   *analysis.Analyzer

	// Optional
	Hub          *notify.Hub // nil disables the websocket route
	Policy       AgentPolicy
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Now          func() time.Time
	Logger       *log.Logger
}

// New creates a Server and registers its routes.
func New(opts Options) *Server {
	s := &Server{
		repo:     opts.Repository,
		ledger:   opts.Ledger,
		analyzer: opts.Analyzer,
		hub:      opts.Hub,
		policy:   opts.Policy,
		now:      opts.Now,
		logger:   opts.Logger,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	if s.policy.DefaultModel == "" {
		s.policy.DefaultModel = "claude-sonnet"
	}
	if len(s.policy.AllowedModels) == 0 {
		s.policy.AllowedModels = []string{s.policy.DefaultModel}
	}
	if s.policy.DefaultRisk == (domain.RiskParams{}) {
		s.policy.DefaultRisk = domain.DefaultRiskParams()
	}
	if !s.policy.StartingCapital.IsPositive() {
		s.policy.StartingCapital = domain.DefaultStartingCapital
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())

	s.route(mux, "GET /api/me", s.handleMe)
	s.route(mux, "GET /api/leaderboard", s.handleLeaderboard)

	s.route(mux, "GET /api/agents", s.handleListAgents)
	s.route(mux, "POST /api/agents", s.handleCreateAgent)
	s.route(mux, "GET /api/agents/{id}", s.handleGetAgent)
	s.route(mux, "PATCH /api/agents/{id}", s.handleUpdateAgent)
	s.route(mux, "DELETE /api/agents/{id}", s.handleDeleteAgent)

	s.route(mux, "POST /api/agents/{id}/execute", s.handleExecute)
	s.route(mux, "POST /api/agents/{id}/analyze", s.handleAnalyze)
	s.route(mux, "GET /api/agents/{id}/refresh", s.handleSummary)
	s.route(mux, "POST /api/agents/{id}/refresh", s.handleRefresh)
	s.route(mux, "GET /api/agents/{id}/history", s.handleHistory)
	s.route(mux, "GET /api/agents/{id}/performance", s.handlePerformance)
	s.route(mux, "GET /api/agents/{id}/trades", s.handleTrades)
	if s.hub != nil {
		s.route(mux, "GET /api/agents/{id}/ws", s.handleStream)
	}

	s.handler = mux
	if opts.Addr != "" {
		s.httpServer = &http.Server{
			Addr:              opts.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       opts.ReadTimeout,
			WriteTimeout:      opts.WriteTimeout,
		}
	}
	return s
}

// route registers an authenticated, instrumented handler.
func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, instrument(pattern, s.authenticate(h)))
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests.
func (s *Server) Start(_ context.Context) error {
	if s.httpServer == nil {
		return errors.New("api server has no address")
	}
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	s.logger.Printf("api server listening on %s", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("api server: %v", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the server and disconnects websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		observability.RecordHTTPRequest(route, strconv.Itoa(rec.status), time.Since(start).Seconds())
	})
}
