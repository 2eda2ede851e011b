// Package admin serves the node's operator API: health, metrics, the service
// table and authenticated cancellation of individual services.
package admin

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-chi/jwtauth/v5"

	"github.com/cmatc13/p2pservice/pkg/cancel"
	"github.com/cmatc13/p2pservice/pkg/errors"
	"github.com/cmatc13/p2pservice/pkg/health"
	"github.com/cmatc13/p2pservice/pkg/metrics"
	"github.com/cmatc13/p2pservice/pkg/service"
)

// Config holds admin API settings.
type Config struct {
	Address            string
	JWTSecret          string
	CORSAllowedOrigins []string
	RateLimit          int
	RateWindow         time.Duration
	ShutdownTimeout    time.Duration
	NodeID             string
	NodeName           string
}

// Server is the work of the admin service: serve HTTP until cancelled, then
// shut the listener down.
type Server struct {
	cfg       Config
	router    *chi.Mux
	tokenAuth *jwtauth.JWTAuth
	server    *http.Server
	services  *service.Registry
	health    *health.Registry
	metrics   *metrics.Metrics
	service   *service.Service
	started   time.Time

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

// NewServer creates the admin API and the Service hosting it, chained from
// parent. Without a JWT secret the cancel endpoint is not mounted.
func NewServer(cfg Config, services *service.Registry, healthRegistry *health.Registry, m *metrics.Metrics, parent *cancel.Token, opts ...service.Option) *Server {
	s := &Server{
		cfg:      cfg,
		router:   chi.NewRouter(),
		services: services,
		health:   healthRegistry,
		metrics:  m,
		started:  time.Now(),
		ready:    make(chan struct{}),
	}
	if cfg.JWTSecret != "" {
		s.tokenAuth = jwtauth.New("HS256", []byte(cfg.JWTSecret), nil)
	}

	opts = append([]service.Option{service.WithName("AdminServer")}, opts...)
	s.service = service.New(s, parent, opts...)
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Service returns the Service hosting the server.
func (s *Server) Service() *service.Service {
	return s.service
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Ready is closed once the server is listening.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the listening address, or nil before Ready.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// IssueToken mints a token accepted by the protected routes.
func (s *Server) IssueToken(subject string, ttl time.Duration) (string, error) {
	if s.tokenAuth == nil {
		return "", errors.E("admin API has no JWT secret configured", "admin", "IssueToken", errors.ErrUnavailable)
	}
	claims := map[string]interface{}{"sub": subject}
	jwtauth.SetIssuedNow(claims)
	jwtauth.SetExpiryIn(claims, ttl)
	_, token, err := s.tokenAuth.Encode(claims)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token")
	}
	return token, nil
}

func (s *Server) setupMiddleware() {
	logger := s.service.Logger()

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(LoggingMiddleware(logger))
	s.router.Use(MetricsMiddleware(s.metrics))
	s.router.Use(Recoverer(logger))
	s.router.Use(SecureHeaders)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	if s.cfg.RateLimit > 0 && s.cfg.RateWindow > 0 {
		s.router.Use(httprate.LimitByIP(s.cfg.RateLimit, s.cfg.RateWindow))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.health.Handler().ServeHTTP)
	if s.metrics != nil {
		s.router.Get("/metrics", s.metrics.Handler().ServeHTTP)
	}
	s.router.Get("/node", s.handleNode)
	s.router.Get("/services", s.handleListServices)
	s.router.Get("/services/{name}", s.handleGetService)

	if s.tokenAuth == nil {
		s.service.Logger().Warn("No JWT secret configured, service cancellation is disabled")
		return
	}
	s.router.Group(func(r chi.Router) {
		r.Use(jwtauth.Verifier(s.tokenAuth))
		r.Use(jwtauth.Authenticator)

		r.Post("/services/{name}/cancel", s.handleCancelService)
	})
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return errors.WithStack(errors.Wrap(err, "failed to listen on "+s.cfg.Address))
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.ready)
	s.service.Logger().Info("Admin API listening", "address", ln.Addr().String())

	_, err = service.Wait(s.service, nil, 0, func(ctx context.Context) (struct{}, error) {
		if err := s.server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return struct{}{}, errors.Wrap(err, "admin API stopped serving")
		}
		return struct{}{}, nil
	})
	return err
}

// Cleanup stops accepting connections and waits up to the shutdown timeout for
// in-flight requests.
func (s *Server) Cleanup() error {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancelShutdown := context.WithTimeout(context.Background(), timeout)
	defer cancelShutdown()

	err := s.server.Shutdown(ctx)

	// Serve may never have run if cancellation beat it.
	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Unlock()

	if err != nil {
		return errors.Wrap(err, "admin API shutdown incomplete")
	}
	s.service.Logger().Info("Admin API shutdown complete")
	return nil
}

// Response represents a standardized API response
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func (s *Server) renderJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.service.Logger().WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) renderError(w http.ResponseWriter, message string, status int) {
	s.renderJSON(w, Response{Success: false, Error: message}, status)
}
