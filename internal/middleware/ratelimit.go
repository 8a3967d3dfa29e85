package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	log "github.com/sirupsen/logrus"
)

// RateLimit admits at most maxRequests per client within window. Clients are keyed by
// the connection's remote address; forwarding headers are only honoured when a trusted
// proxy middleware such as chi's RealIP rewrites RemoteAddr first.
func RateLimit(maxRequests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(maxRequests, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			log.WithFields(log.Fields{"remote_addr": r.RemoteAddr, "path": r.URL.Path}).Warn("Rate limit exceeded")
			writeMessage(w, http.StatusTooManyRequests, "Rate limit exceeded")
		}),
	)
}
