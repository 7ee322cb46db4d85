package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// extractJobID parses the job UUID from the URL path.
// Supports paths like /api/v1/jobs/{id}/hold and /api/v1/jobs/{id}/escrow.
func extractJobID(r *http.Request) (uuid.UUID, bool) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) == 0 {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// extractGatewayName parses the gateway name from
// /api/v1/gateway/{name}/callback.
func extractGatewayName(r *http.Request) (string, bool) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/gateway/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] != "callback" {
		return "", false
	}
	return parts[0], true
}
