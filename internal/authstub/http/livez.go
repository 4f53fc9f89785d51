package http

import (
	"net/http"
	"time"

	"github.com/scamwatch/portal/pkg/httpx"
)

// LivezHandler is the liveness probe. It answers 200 whenever the process is
// up, with uptime and version for quick eyeballing.
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"uptime":  time.Since(startTime).String(),
			"version": version,
		})
	}
}
