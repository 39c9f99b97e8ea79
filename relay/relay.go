package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/imranansari/fork-deploy/activities"
	"github.com/imranansari/fork-deploy/logging"
)

// LogFetcher reads one page of recent logs for a service
type LogFetcher interface {
	FetchLogs(ctx context.Context, serviceID string, limit int) (*activities.LogBatch, error)
}

// Sink receives poll events. Send returning an error closes the relay.
type Sink interface {
	Send(Event) error
}

// Event is pushed to the client once per poll. Entries are forwarded as the
// provider returned them: no ordering, parsing or deduplication. Overlapping
// pages across polls reach the client twice.
type Event struct {
	OK     bool              `json:"ok"`
	Logs   []json.RawMessage `json:"logs"`
	Error  string            `json:"error,omitempty"`
	Detail json.RawMessage   `json:"detail,omitempty"`
}

// Relay bridges a polled log endpoint into a push stream
type Relay struct {
	fetcher  LogFetcher
	interval time.Duration
	limit    int

	newTicker func(d time.Duration) (<-chan time.Time, func())
}

// New creates a relay polling every interval for at most limit entries
func New(fetcher LogFetcher, interval time.Duration, limit int) *Relay {
	return &Relay{
		fetcher:   fetcher,
		interval:  interval,
		limit:     limit,
		newTicker: systemTicker,
	}
}

// Run polls immediately and then once per interval until ctx is cancelled or
// the sink rejects an event. Cancellation is the normal way out and returns nil.
func (r *Relay) Run(ctx context.Context, serviceID string, sink Sink) error {
	if serviceID == "" {
		return errors.New("service id is required")
	}

	logger := logging.RelayLogger(serviceID)

	ticks, stop := r.newTicker(r.interval)
	defer stop()

	logger.Info().Dur("interval", r.interval).Int("limit", r.limit).Msg("Log relay opened")

	polls := 0
	for {
		event := r.poll(ctx, serviceID, logger)

		// Disconnect may land while the poll is in flight.
		if ctx.Err() != nil {
			logger.Info().Int("polls", polls).Msg("Log relay closed by client")
			return nil
		}
		if err := sink.Send(event); err != nil {
			logger.Warn().Err(err).Int("polls", polls).Msg("Log relay closed, push failed")
			return fmt.Errorf("failed to push log event: %w", err)
		}
		polls++

		select {
		case <-ctx.Done():
			logger.Info().Int("polls", polls).Msg("Log relay closed by client")
			return nil
		case <-ticks:
		}
	}
}

func (r *Relay) poll(ctx context.Context, serviceID string, logger zerolog.Logger) Event {
	batch, err := r.fetcher.FetchLogs(ctx, serviceID, r.limit)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn().Err(err).Msg("Log poll failed")
		}
		event := Event{OK: false, Error: err.Error()}
		var callErr *activities.RemoteCallError
		if errors.As(err, &callErr) {
			event.Detail = callErr.Payload
		}
		return event
	}

	logger.Debug().Int("entries", len(batch.Logs)).Msg("Log poll completed")
	return Event{OK: true, Logs: batch.Logs}
}

func systemTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}
