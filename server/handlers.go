package server

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"

	"github.com/imranansari/fork-deploy/uploads"
	"github.com/imranansari/fork-deploy/workflows"
)

const (
	// Allowance on top of MaxUploadBytes for multipart boundaries and the username field
	multipartOverhead = 64 << 10
	multipartMemory   = 1 << 20
	maxJSONBody       = 64 << 10
)

type usernameRequest struct {
	Username string `json:"username"`
}

type checkForkResponse struct {
	OK      bool   `json:"ok"`
	Exists  bool   `json:"exists"`
	Fork    bool   `json:"fork"`
	Message string `json:"message"`
}

type deployResponse struct {
	OK          bool            `json:"ok"`
	Message     string          `json:"message"`
	ServiceID   string          `json:"serviceId"`
	ServiceName string          `json:"serviceName"`
	Forked      bool            `json:"forked"`
	Service     json.RawMessage `json:"service"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleCheckFork(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	result, err := s.orchestrator.CheckFork(r.Context(), requestID(r), req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, checkForkResponse{
		OK:      true,
		Exists:  result.Exists,
		Fork:    result.Fork,
		Message: result.Message,
	})
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	input := workflows.DeployInput{RequestID: requestID(r)}

	if isMultipart(r) {
		account, artifact, ok := s.receiveUpload(w, r)
		if !ok {
			return
		}
		input.Account = account
		input.Artifact = artifact
	} else {
		var req usernameRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid request body.")
			return
		}
		if s.opts.RequireCreds && strings.TrimSpace(req.Username) != "" {
			writeMessage(w, http.StatusBadRequest, "Creds file required.")
			return
		}
		input.Account = req.Username
	}

	result, err := s.orchestrator.Deploy(r.Context(), input)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, deployResponse{
		OK:          true,
		Message:     "Deployment started!",
		ServiceID:   result.ServiceID,
		ServiceName: result.ServiceName,
		Forked:      result.Forked,
		Service:     result.Service,
	})
}

// receiveUpload parses a multipart deploy and stores the creds file. It has
// already written the response when ok is false.
func (s *Server) receiveUpload(w http.ResponseWriter, r *http.Request) (string, *uploads.Artifact, bool) {
	logger := hlog.FromRequest(r)

	if s.uploads == nil {
		writeMessage(w, http.StatusInternalServerError, "Uploads are not enabled.")
		return "", nil, false
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "Creds file too large.")
			return "", nil, false
		}
		writeMessage(w, http.StatusBadRequest, "Invalid multipart form.")
		return "", nil, false
	}
	defer r.MultipartForm.RemoveAll()

	account := strings.TrimSpace(r.FormValue("username"))
	if account == "" {
		writeMessage(w, http.StatusBadRequest, "Username required.")
		return "", nil, false
	}

	file, header, err := r.FormFile("creds")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Creds file required.")
		return "", nil, false
	}
	defer file.Close()

	artifact, err := s.uploads.Save(header.Filename, file)
	if err != nil {
		if errors.Is(err, uploads.ErrTooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "Creds file too large.")
			return "", nil, false
		}
		logger.Error().Err(err).Msg("Failed to store creds file")
		writeMessage(w, http.StatusInternalServerError, "Failed to store creds file.")
		return "", nil, false
	}

	logger.Info().
		Str("artifact_key", artifact.Key).
		Int64("size", artifact.Size).
		Msg("Stored creds file")

	return account, artifact, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	return json.NewDecoder(r.Body).Decode(v)
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

func requestID(r *http.Request) string {
	if id, ok := hlog.IDFromRequest(r); ok {
		return id.String()
	}
	return ""
}
