package app

import (
	"context"
	"errors"
	"net/http"
)

// HTTPService wraps the API listener.
type HTTPService struct {
	server *http.Server
}

// NewHTTPService creates the HTTP service.
func NewHTTPService(addr string, handler http.Handler) *HTTPService {
	return &HTTPService{
		server: &http.Server{
			Addr:    addr,
			Handler: handler,
		},
	}
}

// Name identifies the service.
func (s *HTTPService) Name() string {
	return "http"
}

// Start serves until shutdown.
func (s *HTTPService) Start(ctx context.Context) error {
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains and closes the listener.
func (s *HTTPService) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
