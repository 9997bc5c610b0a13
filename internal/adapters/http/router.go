package httpadapter

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PabloGalante/engigen-agent/internal/app/conversation"
)

type Server struct {
	svc    *conversation.Service
	pinger Pinger
}

// Pinger is a storage backend that can report whether it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Option func(*Server)

// WithPinger makes /healthz report the storage backend's reachability.
func WithPinger(p Pinger) Option {
	return func(s *Server) { s.pinger = p }
}

// NewServer wires the chat routes. CORS is open so a browser front-end on
// another origin can call it.
func NewServer(svc *conversation.Service, opts ...Option) http.Handler {
	s := &Server{svc: svc}
	for _, opt := range opts {
		opt(s)
	}
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(withRequestContext)
	r.Use(withMetrics)
	r.Use(withLogging)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", s.handleHealth)
	r.Get("/domains", s.handleListDomains)

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.handleListSessions)
		r.Post("/", s.handleCreateSession)
		r.Delete("/", s.handleClearSessions)

		r.Get("/{id}", s.handleGetSession)
		r.Post("/{id}/select", s.handleSelectSession)
		r.Post("/{id}/messages", s.handleSendMessage)
	})
	r.Post("/cancel", s.handleCancel)

	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) { methodNotAllowed(w) })
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) { notFound(w, "not found") })

	return r
}
