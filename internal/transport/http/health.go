package http

import (
	stdhttp "net/http"
)

// HealthHandler reports liveness for probes and load balancers.
func HealthHandler(w stdhttp.ResponseWriter, _ *stdhttp.Request) {
	writeJSON(w, stdhttp.StatusOK, map[string]string{
		"status":  "ok",
		"service": "marketplace-api",
	})
}
