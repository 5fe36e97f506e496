package httpapi

import (
	"encoding/json"
	"net/http"

	"streamhostd/internal/display"
	"streamhostd/internal/reconciler"
	"streamhostd/internal/svcconfig"
	"streamhostd/pkg/types"
)

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// statusForError maps domain error kinds to HTTP status codes. The GUI picks
// its corrective flow off the status, so the mapping is part of the contract.
func statusForError(err error) int {
	switch {
	case reconciler.IsEncryptionUnavailable(err):
		return http.StatusServiceUnavailable
	case reconciler.IsInvalidCredentials(err):
		return http.StatusUnauthorized
	case reconciler.IsServiceUnreachable(err):
		return http.StatusBadGateway
	case svcconfig.IsCorrupt(err):
		return http.StatusInternalServerError
	case display.IsSettingsInvalid(err):
		return http.StatusUnprocessableEntity
	case display.IsNotInstalled(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
