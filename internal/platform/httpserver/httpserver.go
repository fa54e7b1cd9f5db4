package httpserver

import (
	"net/http"
	"time"
)

// New builds the registry's HTTP server. The read and write timeouts are
// sized for full exchange documents moving through the import and export
// endpoints, which can run to many megabytes on a populated registry.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       time.Minute,
	}
}
