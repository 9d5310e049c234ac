package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	"github.com/rs/cors"
)

// ReportServer serves a completed run directory (summary.json plus the
// per-pair artifacts) over HTTP so a viewer can fetch results lazily.
// The directory is written before the server starts and never mutated,
// so plain file serving is safe.
type ReportServer struct {
	log    log.Logger
	server *http.Server
}

// NewReportServer creates a server rooted at the given run directory.
func NewReportServer(logger log.Logger, addr, runDir string) *ReportServer {
	if logger == nil {
		logger = log.Root()
	}

	hdlr := http.NewServeMux()
	hdlr.Handle("/", http.FileServer(http.Dir(runDir)))
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})

	return &ReportServer{
		log: logger,
		server: &http.Server{
			Handler: c.Handler(hdlr),
			Addr:    addr,
		},
	}
}

// Serve blocks until the context is cancelled or the listener fails.
func (s *ReportServer) Serve(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- s.server.ListenAndServe()
	}()

	s.log.Info("Serving report", "addr", s.server.Addr)

	select {
	case err := <-errChan:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("report server: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.log.Info("Shutting down report server")
		return s.server.Shutdown(context.Background())
	}
}
