package handlers

import (
	"net/http"
)

// LivezHandler handles the /livez endpoint.
func LivezHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
