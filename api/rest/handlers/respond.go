package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"command-center/core/apierror"
	"command-center/core/auth"
	"command-center/core/engine"
	"command-center/core/repository"
)

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error string      `json:"error"`
	Kind  engine.Kind `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeEngineError maps an engine error onto an HTTP status
func writeEngineError(w http.ResponseWriter, err error) {
	kind := engine.KindOf(err)
	status := http.StatusInternalServerError
	var apiErr *apierror.RemoteAPIError

	switch {
	case errors.Is(err, repository.ErrJobNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrJobNotRunning), errors.Is(err, engine.ErrNoSession),
		errors.Is(err, engine.ErrNoPullRequest):
		status = http.StatusConflict
	case kind == engine.KindConfiguration:
		status = http.StatusBadRequest
	case kind == engine.KindAuthentication, errors.Is(err, auth.ErrNotAuthenticated):
		status = http.StatusUnauthorized
	case kind == engine.KindRemoteAPI, kind == engine.KindConnectivity, errors.As(err, &apiErr):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: kind})
}
