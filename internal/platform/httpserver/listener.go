package httpserver

import (
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/net/netutil"
)

// Listen opens a TCP listener, optionally capping concurrent connections
// so one misbehaving client pool cannot starve the accept loop.
func Listen(addr string, maxConns int) (net.Listener, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	if maxConns > 0 {
		listener = netutil.LimitListener(listener, maxConns)
	}
	return listener, nil
}

// RequestIDHeader is echoed back so clients can correlate responses.
const RequestIDHeader = "X-Request-Id"

// EchoRequestID copies the chi request ID onto the response for clients.
func EchoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set(RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}
