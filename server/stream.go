package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"

	"github.com/imranansari/fork-deploy/relay"
)

// sseSink writes relay events as Server-Sent Events
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) Send(event relay.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode log event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *Server) handleStreamLogs(w http.ResponseWriter, r *http.Request) {
	serviceID := strings.TrimSpace(r.URL.Query().Get("serviceId"))
	if serviceID == "" {
		writeMessage(w, http.StatusBadRequest, "serviceId required.")
		return
	}
	if !s.opts.LogsEnabled {
		writeMessage(w, http.StatusInternalServerError, "Render is not configured: set RENDER_API_KEY and RENDER_OWNER_ID.")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeMessage(w, http.StatusInternalServerError, "Streaming not supported.")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Run returns when the client goes away or the server shuts down.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.streams, cancel)
	defer stop()

	if err := s.logs.Run(ctx, serviceID, &sseSink{w: w, flusher: flusher}); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("service_id", serviceID).Msg("Log stream ended")
	}
}
