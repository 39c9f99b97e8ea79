package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/imranansari/fork-deploy/workflows"
)

type errorBody struct {
	OK      bool            `json:"ok"`
	Message string          `json:"message"`
	Detail  json.RawMessage `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Message: message})
}

// writeError maps a workflow error onto the uniform error body
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		clientErr *workflows.ClientError
		configErr *workflows.ConfigError
		remoteErr *workflows.RemoteError
	)

	switch {
	case errors.As(err, &clientErr):
		writeMessage(w, http.StatusBadRequest, clientErr.Message)

	case errors.As(err, &configErr):
		hlog.FromRequest(r).Error().Err(err).Msg("Provider not configured")
		writeMessage(w, http.StatusInternalServerError, configErr.Message)

	case errors.As(err, &remoteErr):
		hlog.FromRequest(r).Error().
			Err(err).
			Str("kind", remoteErr.Kind).
			RawJSON("detail", rawOrNull(remoteErr.Detail)).
			Msg("Remote call failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Message: remoteErr.Message,
			Detail:  remoteErr.Detail,
		})

	default:
		hlog.FromRequest(r).Error().Err(err).Msg("Request failed")
		writeMessage(w, http.StatusInternalServerError, "Internal server error.")
	}
}

func rawOrNull(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	return raw
}
