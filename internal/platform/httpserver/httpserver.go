// Package httpserver builds the API's http.Server.
package httpserver

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"habitat/internal/platform/config"
)

// writeSlack leaves room to flush a timeout response after the handler
// deadline fires.
const writeSlack = 5 * time.Second

// New bounds every request by cfg.RequestTimeout: the handler context is
// cancelled at the deadline and the server stops writing shortly after.
func New(cfg config.Server, handler http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if cfg.RequestTimeout > 0 {
		srv.Handler = chimw.Timeout(cfg.RequestTimeout)(handler)
		srv.ReadTimeout = cfg.RequestTimeout
		srv.WriteTimeout = cfg.RequestTimeout + writeSlack
	}
	return srv
}
