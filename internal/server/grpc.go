package server

import (
	"SwapLedger/internal/core"
	"SwapLedger/internal/ingestion"
	"SwapLedger/internal/observability"
	"SwapLedger/internal/query"
	"SwapLedger/internal/staking"
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Ledger is the engine surface the API reads from; *core.Engine satisfies it.
type Ledger interface {
	Status() core.Status
	Pools() []core.PoolView
	Pool(asset common.Address) (core.PoolView, error)
	Quote(asset common.Address, side string, amount *big.Int) (*big.Int, error)
	Tokens() []core.TokenView
	Token(asset common.Address) (core.TokenView, error)
	BalanceOf(asset, owner common.Address) (*big.Int, error)
	Allowance(asset, owner, spender common.Address) (*big.Int, error)
	StakingLedgers() []core.StakingView
	StakingLedger(addr common.Address) (core.StakingView, error)
	StakingParticipant(addr, who common.Address) (staking.Participant, error)
}

// GRPCServer hosts the gRPC health and reflection services and the HTTP/JSON
// API served through a grpc-gateway mux.
type GRPCServer struct {
	grpcServer   *grpc.Server
	healthServer *health.Server
	httpServer   *http.Server
	grpcAddr     string
	httpAddr     string
	handler      http.Handler
	logger       zerolog.Logger
}

// ServerDeps holds everything the API needs. QueryService, DB and
// Submitter may be nil; routes that need them answer 503.
type ServerDeps struct {
	Ledger        Ledger
	Submitter     *ingestion.Submitter
	QueryService  *query.QueryService
	DB            *sql.DB
	HealthChecker *observability.HealthChecker
	Metrics       *observability.Metrics
	Logger        zerolog.Logger
}

// NewGRPCServer builds the gRPC server and the HTTP handler.
func NewGRPCServer(grpcAddr, httpAddr string, deps *ServerDeps) (*GRPCServer, error) {
	grpcServer := grpc.NewServer()

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	handler, err := NewHTTPHandler(deps)
	if err != nil {
		return nil, err
	}

	return &GRPCServer{
		grpcServer:   grpcServer,
		healthServer: healthServer,
		grpcAddr:     grpcAddr,
		httpAddr:     httpAddr,
		handler:      handler,
		logger:       deps.Logger,
	}, nil
}

// SetServing flips the gRPC health status once recovery is done.
func (s *GRPCServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.healthServer.SetServingStatus("", status)
}

// Handler returns the HTTP handler (API routes plus /healthz and /readyz).
func (s *GRPCServer) Handler() http.Handler {
	return s.handler
}

// StartGRPC starts the gRPC server (blocking).
func (s *GRPCServer) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("gRPC server shutting down")
		s.healthServer.Shutdown()
		s.grpcServer.GracefulStop()
	}()

	s.logger.Info().Str("addr", s.grpcAddr).Msg("gRPC server listening")
	return s.grpcServer.Serve(lis)
}

// StartHTTPGateway serves the HTTP/JSON API (blocking).
func (s *GRPCServer) StartHTTPGateway(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.httpAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("HTTP gateway shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.httpAddr).Msg("HTTP gateway listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// NewHTTPHandler registers the API routes on a grpc-gateway mux and mounts
// the health endpoints beside it.
func NewHTTPHandler(deps *ServerDeps) (http.Handler, error) {
	mux := runtime.NewServeMux()
	api := &api{deps: deps}

	routes := []struct {
		method, pattern, name string
		h                     runtime.HandlerFunc
	}{
		{http.MethodGet, "/v1/status", "status", api.status},
		{http.MethodGet, "/v1/pools", "pools", api.listPools},
		{http.MethodGet, "/v1/pools/{asset}", "pool", api.getPool},
		{http.MethodGet, "/v1/pools/{asset}/quote", "quote", api.quote},
		{http.MethodGet, "/v1/tokens", "tokens", api.listTokens},
		{http.MethodGet, "/v1/tokens/{asset}", "token", api.getToken},
		{http.MethodGet, "/v1/balances/{asset}/{owner}", "balance", api.balance},
		{http.MethodGet, "/v1/allowances/{asset}/{owner}/{spender}", "allowance", api.allowance},
		{http.MethodGet, "/v1/staking", "stakings", api.listStaking},
		{http.MethodGet, "/v1/staking/{ledger}", "staking", api.getStaking},
		{http.MethodGet, "/v1/staking/{ledger}/participants/{participant}", "participant", api.participant},
		{http.MethodGet, "/v1/swaps", "swaps", api.swaps},
		{http.MethodGet, "/v1/journal/{owner}", "journal", api.journal},
		{http.MethodPost, "/v1/calls/{type}", "submit", api.submit},
		{http.MethodGet, "/v1/admin/integrity", "integrity", api.integrity},
		{http.MethodPost, "/v1/admin/projections/rebuild", "rebuild", api.rebuild},
	}
	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, api.instrument(r.name, r.h)); err != nil {
			return nil, fmt.Errorf("register %s %s: %w", r.method, r.pattern, err)
		}
	}

	httpMux := http.NewServeMux()
	if hc := deps.HealthChecker; hc != nil {
		httpMux.HandleFunc("/healthz", hc.LivenessHandler)
		httpMux.HandleFunc("/readyz", hc.ReadinessHandler)
	} else {
		httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	}
	httpMux.Handle("/", mux)
	return httpMux, nil
}
