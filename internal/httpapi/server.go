package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/hamed0406/hostsweep/internal/config"
	"github.com/hamed0406/hostsweep/internal/domain"
	apimw "github.com/hamed0406/hostsweep/internal/httpapi/middleware"
	"github.com/hamed0406/hostsweep/internal/probe"
	"github.com/hamed0406/hostsweep/internal/report"
	"github.com/hamed0406/hostsweep/internal/sweep"
)

// maxTimeout caps the per-probe timeout a client may ask for.
const maxTimeout = 30 * time.Second

type Server struct {
	Logger   *zap.Logger
	Config   config.Config
	Pinger   probe.Pinger
	Resolver probe.Resolver

	// slots bounds hosts probed at once across all in-flight sweeps.
	slotsOnce sync.Once
	slots     *semaphore.Weighted
}

func NewServer(l *zap.Logger, cfg config.Config, pinger probe.Pinger) *Server {
	return &Server{Logger: l, Config: cfg, Pinger: pinger}
}

func (s *Server) hostSlots() *semaphore.Weighted {
	s.slotsOnce.Do(func() {
		n := s.Config.Concurrency
		if n < 1 {
			n = sweep.DefaultConcurrency
		}
		s.slots = semaphore.NewWeighted(int64(n))
	})
	return s.slots
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.corsHandler())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	keys := apimw.Keys{Public: s.Config.PublicAPIKeys, Admin: s.Config.AdminAPIKeys}
	r.Route("/api", func(r chi.Router) {
		r.Use(apimw.RateLimit(s.Config.PublicRPM, s.Config.PublicBurst, keys))
		r.With(apimw.RequireAny(keys)).Post("/sweeps", s.handleSweep)
		r.With(apimw.RequireAdmin(keys)).Get("/config", s.handleConfig)
	})

	return r
}

func (s *Server) corsHandler() func(http.Handler) http.Handler {
	if len(s.Config.AllowedOrigins) == 0 {
		return cors.AllowAll().Handler
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: s.Config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
	})
}

type sweepPayload struct {
	Hosts     []string `json:"hosts"`
	Port      int      `json:"port,omitempty"`
	TimeoutMS int      `json:"timeout_ms,omitempty"`
}

type sweepRequest struct {
	hosts   []domain.Host
	port    int
	timeout time.Duration
}

var errTooManyHosts = errors.New("too many hosts")

// parseSweepRequest applies server defaults and limits to a decoded payload.
func (s *Server) parseSweepRequest(p sweepPayload) (sweepRequest, error) {
	req := sweepRequest{port: s.Config.Port, timeout: s.Config.Timeout}
	for _, raw := range p.Hosts {
		if h, ok := domain.NewHost(raw); ok {
			req.hosts = append(req.hosts, h)
		}
	}
	if len(req.hosts) == 0 {
		return req, errors.New("hosts must contain at least one non-blank entry")
	}
	if len(req.hosts) > s.Config.MaxSweepHosts {
		return req, fmt.Errorf("%w: %d > %d", errTooManyHosts, len(req.hosts), s.Config.MaxSweepHosts)
	}
	if p.Port != 0 {
		if p.Port < 1 || p.Port > 65535 {
			return req, fmt.Errorf("port %d out of range", p.Port)
		}
		req.port = p.Port
	}
	if p.TimeoutMS > 0 {
		req.timeout = min(time.Duration(p.TimeoutMS)*time.Millisecond, maxTimeout)
	}
	return req, nil
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	var p sweepPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	req, err := s.parseSweepRequest(p)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errTooManyHosts) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, err.Error())
		return
	}

	prober := probe.New(s.Logger, probe.Options{
		Port:     req.port,
		Timeout:  req.timeout,
		Pinger:   s.Pinger,
		Resolver: s.Resolver,
	})
	coord := sweep.NewCoordinator(s.Logger, prober, s.Config.Concurrency)
	coord.Slots = s.hostSlots()
	res := coord.Run(r.Context(), req.hosts)

	s.Logger.Info("api_sweep",
		zap.String("sweep_id", res.ID),
		zap.Int("hosts", len(res.Results)),
		zap.Int("port", req.port),
		zap.Duration("timeout", req.timeout),
	)

	if wantsCSV(r) {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+report.DefaultOutputName(res.StartedAt)+`"`)
		if err := report.WriteCSV(w, res.Results); err != nil {
			s.Logger.Warn("api_csv_write_error", zap.String("sweep_id", res.ID), zap.Error(err))
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"port":            s.Config.Port,
		"timeout_ms":      s.Config.Timeout.Milliseconds(),
		"concurrency":     s.Config.Concurrency,
		"max_sweep_hosts": s.Config.MaxSweepHosts,
		"ping_backend":    pingerName(s.Pinger),
	})
}

func wantsCSV(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mt == "text/csv" {
			return true
		}
	}
	return false
}

func pingerName(p probe.Pinger) string {
	if p == nil {
		return "none"
	}
	return p.Name()
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
