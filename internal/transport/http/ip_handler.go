package http

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// IPResponse is the client IP echo payload.
type IPResponse struct {
	IP        string    `json:"ip"`
	Timestamp time.Time `json:"timestamp"`
}

// IPHandler handles GET /api/ip, a small utility that echoes the caller's
// address as seen by the server. RemoteAddr is already rewritten by the
// RealIP middleware when forwarding headers are present.
func IPHandler(w http.ResponseWriter, r *http.Request) {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}

	render.JSON(w, r, &IPResponse{
		IP:        ip,
		Timestamp: time.Now().UTC(),
	})
}
