// Package api exposes the public HTTP surface: health, gas costs, relay
// history, and the plugin-mounted relay endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/sponsorlabs/gasrelay/auth"
	"github.com/sponsorlabs/gasrelay/logging"
	"github.com/sponsorlabs/gasrelay/plugin"
	"github.com/sponsorlabs/gasrelay/relay"
)

// Server is the HTTP front of the relay service.
type Server struct {
	server *http.Server
	logger logging.Logger
}

// NewServer wires the router: bypass-able health endpoints, the gas-cost and
// history endpoints, and every plugin's routes, all behind the auth gate and
// CORS.
func NewServer(addr string, gate *auth.Gate, handlers *Handlers, registry *plugin.Registry) *Server {
	router := mux.NewRouter()
	router.HandleFunc("/health", handlers.Health).Methods(http.MethodGet)
	router.HandleFunc("/ping", handlers.Ping).Methods(http.MethodGet)
	router.HandleFunc("/status", handlers.Health).Methods(http.MethodGet)
	router.HandleFunc("/actuator/health", handlers.Health).Methods(http.MethodGet)
	router.HandleFunc("/gas-costs", handlers.GasCosts).Methods(http.MethodGet)
	router.HandleFunc("/history", handlers.History).Methods(http.MethodGet)
	registry.MountRoutes(router)

	var handler http.Handler = router
	handler = gate.Middleware(handler)
	handler = requestIDMiddleware(handler)
	handler = cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-API-Key", "Authorization"},
	}).Handler(handler)

	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		server: server,
		logger: logging.New("api"),
	}
}

// Start begins serving in the background.
func (s *Server) Start() {
	s.logger.Infof("starting HTTP server on %s", s.server.Addr)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("HTTP server error: %v", err)
		}
	}()
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop() error {
	s.logger.Infof("stopping HTTP server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// requestIDMiddleware tags every request with an id for log correlation and
// the history store.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(relay.WithRequestID(r.Context(), id)))
	})
}
