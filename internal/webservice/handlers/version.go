package handlers

import (
	"net/http"

	"github.com/dhelos/saleshook/internal/constants"
)

// Version reports the running service version.
func Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"version": constants.Version})
}
