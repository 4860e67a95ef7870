package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/din-network/din-monitor/pkg/bus"
	"github.com/din-network/din-monitor/pkg/memory"
	"github.com/din-network/din-monitor/pkg/performance"
	"github.com/din-network/din-monitor/pkg/registry"
	"github.com/din-network/din-monitor/pkg/reporter"
	"github.com/din-network/din-monitor/pkg/slashing"
	"github.com/din-network/din-monitor/pkg/staking"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Config struct {
	Host      string
	Port      uint16
	RateLimit float64
	Burst     int
}

// Services are the components the API exposes.
type Services struct {
	Registry    *registry.Registry
	Ledger      *staking.Ledger
	Slashing    *slashing.Engine
	Performance *performance.Monitor
	Reporter    *reporter.Reporter
	Bus         *bus.Bus
	Memory      *memory.Shared
}

type Server struct {
	config *Config
	logger *zap.Logger

	registry    *registry.Registry
	ledger      *staking.Ledger
	slashing    *slashing.Engine
	performance *performance.Monitor
	reporter    *reporter.Reporter
	bus         *bus.Bus
	memory      *memory.Shared

	limiter *rate.Limiter
	now     func() time.Time
	srv     *http.Server
}

func New(config *Config, zapLogger *zap.Logger, services *Services) *Server {
	s := &Server{
		config:      config,
		logger:      zapLogger,
		registry:    services.Registry,
		ledger:      services.Ledger,
		slashing:    services.Slashing,
		performance: services.Performance,
		reporter:    services.Reporter,
		bus:         services.Bus,
		memory:      services.Memory,
		now:         time.Now,
	}
	if config.RateLimit > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}
	return s
}

func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Router returns the full handler tree, gzip included.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	v1.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	v1.HandleFunc("/operators", s.limited(s.handleRegister)).Methods(http.MethodPost)
	v1.HandleFunc("/operators", s.handleListOperators).Methods(http.MethodGet)
	v1.HandleFunc("/operators/total-staked", s.handleTotalStaked).Methods(http.MethodGet)
	v1.HandleFunc("/operators/{id}", s.handleGetOperator).Methods(http.MethodGet)
	v1.HandleFunc("/operators/{id}/stake", s.limited(s.handleStake)).Methods(http.MethodPost)
	v1.HandleFunc("/operators/{id}/unstake", s.limited(s.handleUnstake)).Methods(http.MethodPost)
	v1.HandleFunc("/operators/{id}/events", s.handleEvents).Methods(http.MethodGet)
	v1.HandleFunc("/operators/{id}/violations", s.handleGetViolations).Methods(http.MethodGet)
	v1.HandleFunc("/operators/{id}/violations", s.limited(s.handleRecordViolation)).Methods(http.MethodPost)
	v1.HandleFunc("/operators/{id}/slash", s.limited(s.handleSlash)).Methods(http.MethodPost)
	v1.HandleFunc("/operators/{id}/metrics", s.handleGetMetrics).Methods(http.MethodGet)
	v1.HandleFunc("/operators/{id}/metrics/latest", s.handleGetLatestMetrics).Methods(http.MethodGet)
	v1.HandleFunc("/operators/{id}/report", s.handleOperatorReport).Methods(http.MethodGet)

	v1.HandleFunc("/metrics", s.limited(s.handleRecordMetrics)).Methods(http.MethodPost)

	v1.HandleFunc("/reports/operators", s.handleOperatorsReport).Methods(http.MethodGet)
	v1.HandleFunc("/reports/violations", s.handleViolationStats).Methods(http.MethodGet)
	v1.HandleFunc("/slashing/outbox", s.handleOutboxStats).Methods(http.MethodGet)

	v1.HandleFunc("/bus/stats", s.handleBusStats).Methods(http.MethodGet)

	v1.HandleFunc("/memory/kv/{key}", s.handleGetKV).Methods(http.MethodGet)
	v1.HandleFunc("/memory/docs/query", s.handleQueryDocs).Methods(http.MethodPost)
	v1.HandleFunc("/memory/docs/{id}", s.handleGetDoc).Methods(http.MethodGet)
	v1.HandleFunc("/memory/vec/search", s.handleVectorSearch).Methods(http.MethodPost)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return gziphandler.GzipHandler(r)
}

// limited rejects requests beyond the configured write rate.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			s.respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}

// Run serves until ctx is done, then shuts the server down.
func (s *Server) Run(ctx context.Context) error {
	logger := s.logger.Sugar()

	s.srv = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.Router(),
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Infof("API server listening on %s", s.Addr())
		errs <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
