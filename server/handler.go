package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/JohnPlummer/batch-scorer/dispatcher"
	"github.com/JohnPlummer/batch-scorer/scorer"
)

// ErrMalformedRequest marks a body that is not a JSON array of {"text": string} records
var ErrMalformedRequest = errors.New("malformed request")

type textRecord struct {
	Text *string `json:"text"`
}

// decodeTexts extracts the texts, in order, from a request body
func decodeTexts(body io.Reader) ([]string, error) {
	dec := json.NewDecoder(body)

	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}

	// The body must hold exactly one JSON value
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, fmt.Errorf("%w: unexpected data after JSON array", ErrMalformedRequest)
		}
		return nil, fmt.Errorf("%w: unexpected data after JSON array: %w", ErrMalformedRequest, err)
	}

	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: body must be a JSON array", ErrMalformedRequest)
	}

	var records []*textRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}

	texts := make([]string, len(records))
	for i, record := range records {
		if record == nil || record.Text == nil {
			return nil, fmt.Errorf("%w: record %d has no \"text\" field", ErrMalformedRequest, i)
		}
		texts[i] = *record.Text
	}
	return texts, nil
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)

	texts, err := decodeTexts(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	results, err := s.dispatcher.Submit(ctx, texts)
	if err != nil {
		status := statusForError(err)
		if status == 0 {
			slog.Debug("Client went away before results arrived",
				"request_id", RequestIDFromContext(r.Context()))
			return
		}
		slog.Warn("Scoring request failed",
			"request_id", RequestIDFromContext(r.Context()),
			"texts", len(texts),
			"status", status,
			"error", err)
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, results)
}

// statusForError maps dispatcher errors to HTTP status codes; zero means the
// client cancelled and no response should be written. Over-long input is the
// caller's fault even though it surfaces from the backend.
func statusForError(err error) int {
	switch {
	case errors.Is(err, dispatcher.ErrQueueOverflow), errors.Is(err, dispatcher.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, scorer.ErrContentTooLong):
		return http.StatusUnprocessableEntity
	case errors.Is(err, dispatcher.ErrRequestTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, dispatcher.ErrBackendFailure):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		return 0
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.backend.GetHealth(r.Context())

	state := s.dispatcher.State()
	healthy := health.Healthy && state != dispatcher.StateStopped

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]interface{}{
		"healthy": healthy,
		"status":  health.Status,
		"backend": health.Details,
		"dispatcher": map[string]interface{}{
			"state":          state.String(),
			"queue_depth":    s.dispatcher.QueueDepth(),
			"queue_capacity": s.dispatcher.QueueCapacity(),
			"processed":      s.dispatcher.Processed(),
			"failed":         s.dispatcher.Failed(),
		},
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
