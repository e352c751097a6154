package receipt

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/marcinparda/actual/internal/fault"
	"github.com/marcinparda/actual/internal/ledger"
	"github.com/marcinparda/actual/internal/reconcile"
)

// Server handles HTTP requests for receipts
type Server struct {
	service     *Service
	ledger      ledger.API
	engine      *reconcile.Engine
	mux         *http.ServeMux
	scanTimeout time.Duration
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, ledgerAPI ledger.API, engine *reconcile.Engine, scanTimeout time.Duration) *Server {
	return NewServerWithMux(service, ledgerAPI, engine, scanTimeout, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, ledgerAPI ledger.API, engine *reconcile.Engine, scanTimeout time.Duration, mux *http.ServeMux) *Server {
	if scanTimeout <= 0 {
		scanTimeout = 2 * time.Minute
	}
	s := &Server{
		service:     service,
		ledger:      ledgerAPI,
		engine:      engine,
		mux:         mux,
		scanTimeout: scanTimeout,
	}
	s.registerRoutes()
	return s
}

// requireReady gates an operation on the ledger readiness probe. A failed
// probe fails fast with 503 rather than attempting partial work.
func (s *Server) requireReady(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.ledger.Ready(r.Context()); err != nil {
			writeError(w, fault.Wrap(fault.KindUnavailable, "service is not ready", err))
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes on the server's mux.
// Routes must be registered from most specific to least specific.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/receipts/{id}/file", s.requireReady(s.handleGetReceiptFile))
	s.mux.HandleFunc("DELETE /api/receipts/{id}", s.requireReady(s.handleDeleteReceipt))
	s.mux.HandleFunc("POST /api/receipts/process", s.requireReady(s.handleProcessReceipt))
	s.mux.HandleFunc("POST /api/receipts/commit", s.requireReady(s.handleCommitReceipt))
	s.mux.HandleFunc("POST /api/receipts", s.requireReady(s.handleUploadReceipt))
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, s.mux)
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
