package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with sane defaults for this project. A positive
// timeout bounds request reads and response writes.
func New(addr string, handler http.Handler, timeout time.Duration) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if timeout > 0 {
		srv.ReadTimeout = timeout
		srv.WriteTimeout = timeout
	}
	return srv
}
