// Package api is the storefront's HTTP surface.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/safar/go-storefront/internal/auth"
	"github.com/safar/go-storefront/internal/checkout"
	"github.com/safar/go-storefront/internal/lifecycle"
	"github.com/safar/go-storefront/internal/metrics"
	"github.com/safar/go-storefront/internal/store"
	"github.com/safar/go-storefront/internal/timeline"
)

type Server struct {
	store     store.Store
	checkout  *checkout.Service
	lifecycle *lifecycle.Service
	timeline  *timeline.Reader
	sessions  *Sessions
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

type Deps struct {
	Store     store.Store
	Checkout  *checkout.Service
	Lifecycle *lifecycle.Service
	Timeline  *timeline.Reader
	Sessions  *Sessions
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

func New(d Deps) *Server {
	s := &Server{
		store:     d.Store,
		checkout:  d.Checkout,
		lifecycle: d.Lifecycle,
		timeline:  d.Timeline,
		sessions:  d.Sessions,
		metrics:   d.Metrics,
		logger:    d.Logger,
		now:       time.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = metrics.New(nil)
	}
	if s.sessions == nil {
		s.sessions = NewSessions(24 * time.Hour)
	}
	if s.checkout == nil {
		s.checkout = checkout.NewService(d.Store, nil, s.metrics, s.logger)
	}
	if s.lifecycle == nil {
		s.lifecycle = lifecycle.NewService(d.Store, nil, nil, s.metrics, s.logger)
	}
	if s.timeline == nil {
		s.timeline = timeline.NewReader(d.Store)
	}
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(s.metrics.Middleware)
	r.Use(s.requestLogger)
	r.Use(auth.Middleware(s.store, func(r *http.Request, err error) {
		s.logger.WarnContext(r.Context(), "resolve user", "error", err)
	}))

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Get("/products", s.listProducts)
	r.Get("/products/{id}", s.getProduct)

	r.Get("/cart", s.getCart)
	r.Delete("/cart", s.clearCart)
	r.Post("/cart/items", s.addCartItem)
	r.Put("/cart/items/{productID}", s.updateCartItem)
	r.Delete("/cart/items/{productID}", s.removeCartItem)

	r.Post("/checkout", s.placeOrder)

	r.Get("/orders", s.listOrders)
	r.Get("/orders/{id}", s.getOrder)
	r.Get("/orders/{id}/timeline", s.getTimeline)

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.requireAdmin)

		r.Post("/products", s.createProduct)
		r.Put("/products/{id}", s.updateProduct)
		r.Delete("/products/{id}", s.deleteProduct)

		r.Get("/orders", s.listAllOrders)
		r.Put("/orders/{id}/status", s.setOrderStatus)

		r.Get("/users", s.listUsers)
		r.Post("/users", s.createUser)
		r.Put("/users/{id}/admin", s.setUserAdmin)
		r.Delete("/users/{id}", s.deleteUser)
	})

	return r
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := auth.RequireAdmin(auth.FromContext(r.Context())); err != nil {
			s.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.DebugContext(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start))
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
