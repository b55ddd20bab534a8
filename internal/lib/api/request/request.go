package request

import (
	"net"
	"net/http"
)

// ClientIP returns the remote address without the port. Behind a proxy the
// router installs chi's RealIP middleware first, so RemoteAddr already holds
// the originating address.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
