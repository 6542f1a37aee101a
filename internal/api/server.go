// Package api is the HTTP transport: it validates query parameters and turns
// them into calls into the reliability service. It never exposes internal
// error detail.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/railscore/internal/reliability"
	"github.com/lox/railscore/internal/store"
)

type Server struct {
	store    *store.Store
	rel      *reliability.Service
	port     string
	loc      *time.Location
	validate *validator.Validate
}

func NewServer(st *store.Store, rel *reliability.Service, port string, loc *time.Location) *Server {
	return &Server{
		store:    st,
		rel:      rel,
		port:     port,
		loc:      loc,
		validate: validator.New(),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/reliability", s.handleReliability)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	version, err := s.store.MigrationVersion()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","schema_version":%d}`, version)
}
