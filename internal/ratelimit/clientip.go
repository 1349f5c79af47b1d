package ratelimit

import (
	"net"
	"net/http"
)

// ClientIP returns the host part of the request's remote address.
// Forwarding headers are not read here: behind a trusted proxy the server
// rewrites RemoteAddr from them before any limiter sees the request.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
