// Package api serves flow statistics over HTTP and health over gRPC.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"FlowChains/internal/config"
	"FlowChains/internal/logging"
	"FlowChains/internal/metrics"
	"FlowChains/internal/query"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// StatsSource provides the counters served on /api/v1/stats.
type StatsSource interface {
	Stats() metrics.Stats
}

// Server holds the HTTP and gRPC servers of the engine.
type Server struct {
	cfg     config.APIConfig
	stats   StatsSource
	querier query.Querier
	logger  logging.Logger

	router  *mux.Router
	http    *http.Server
	grpc    *grpc.Server
	health  *health.Server
	serving atomic.Bool
}

// NewServer wires the routes. querier may be nil, in which case the flow
// query routes answer 503.
func NewServer(cfg config.APIConfig, stats StatsSource, gatherer prometheus.Gatherer, querier query.Querier, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	s := &Server{
		cfg:     cfg,
		stats:   stats,
		querier: querier,
		logger:  logger,
		router:  mux.NewRouter(),
		grpc:    grpc.NewServer(),
		health:  health.NewServer(),
	}

	s.router.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/stats", s.statsHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/flows/summary", s.summaryHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/flows/trace", s.traceHandler).Methods(http.MethodGet)
	if gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.SetServing(false)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// SetServing flips the health state reported over HTTP and gRPC.
func (s *Server) SetServing(ok bool) {
	s.serving.Store(ok)
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
}

// Start listens on the configured addresses and serves in the background.
// An empty address disables that server.
func (s *Server) Start() error {
	if s.cfg.ListenAddr != "" {
		s.http = &http.Server{Addr: s.cfg.ListenAddr, Handler: s.router}
		ln, err := net.Listen("tcp", s.cfg.ListenAddr)
		if err != nil {
			return errors.Wrapf(err, "could not listen on %s", s.cfg.ListenAddr)
		}
		go func() {
			s.logger.Info("API server starting", logging.Fields{"addr": ln.Addr().String()})
			if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
				s.logger.Error(errors.Wrap(err, "http server stopped"), nil)
			}
		}()
	}

	if s.cfg.GRPCAddr != "" {
		ln, err := net.Listen("tcp", s.cfg.GRPCAddr)
		if err != nil {
			return errors.Wrapf(err, "could not listen on %s", s.cfg.GRPCAddr)
		}
		go func() {
			s.logger.Info("gRPC server starting", logging.Fields{"addr": ln.Addr().String()})
			if err := s.grpc.Serve(ln); err != nil {
				s.logger.Error(errors.Wrap(err, "grpc server stopped"), nil)
			}
		}()
	}
	return nil
}

// Shutdown stops both servers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.SetServing(false)
	s.health.Shutdown()
	s.grpc.GracefulStop()
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	if !s.serving.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) statsHandler(w http.ResponseWriter, _ *http.Request) {
	if s.stats == nil {
		http.Error(w, "stats are not available", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.stats.Stats())
}

func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	if s.querier == nil {
		http.Error(w, "no clickhouse writer configured", http.StatusServiceUnavailable)
		return
	}
	from, to, err := timeRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	out, err := s.querier.Summary(r.Context(), from, to)
	if err != nil {
		s.logger.Error(err, logging.Fields{"route": "summary"})
		http.Error(w, "failed to query flows", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

var traceKeys = map[string]string{
	"src_ip":   "SrcIP",
	"dst_ip":   "DstIP",
	"src_port": "SrcPort",
	"dst_port": "DstPort",
	"protocol": "Protocol",
}

func (s *Server) traceHandler(w http.ResponseWriter, r *http.Request) {
	if s.querier == nil {
		http.Error(w, "no clickhouse writer configured", http.StatusServiceUnavailable)
		return
	}
	from, to, err := timeRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req := query.TraceRequest{Keys: map[string]string{}, From: from, To: to}
	params := r.URL.Query()
	for param, column := range traceKeys {
		if v := params.Get(param); v != "" {
			req.Keys[column] = v
		}
	}
	if v := params.Get("limit"); v != "" {
		if req.Limit, err = strconv.Atoi(v); err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
	}

	out, err := s.querier.TraceFlows(r.Context(), req)
	if err != nil {
		s.logger.Error(err, logging.Fields{"route": "trace"})
		http.Error(w, "failed to query flows", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func timeRange(r *http.Request) (from, to time.Time, err error) {
	params := r.URL.Query()
	if v := params.Get("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			return from, to, errors.Wrap(err, "invalid from")
		}
	}
	if v := params.Get("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			return from, to, errors.Wrap(err, "invalid to")
		}
	}
	return from, to, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
