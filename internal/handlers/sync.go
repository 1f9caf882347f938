package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"contact-sync/internal/auth"
	"contact-sync/internal/common/errors"
	"contact-sync/internal/common/logging"
	"contact-sync/internal/syncengine"
)

type runOutcome struct {
	result *syncengine.Result
	err    error
}

// TriggerSync runs a sync for the caller
// @Summary Run a sync
// @Description Runs one bidirectional sync. With Accept: text/event-stream the response streams one "progress" event per contact and ends with a "result" or "error" event; otherwise the final result is returned as JSON. The run continues if the client disconnects.
// @Tags carddav
// @Produce json
// @Produce text/event-stream
// @Security BearerAuth
// @Success 200 {object} syncengine.Result
// @Failure 404 {object} errorResponse "No connection configured"
// @Failure 409 {object} errorResponse "A sync is already running"
// @Failure 502 {object} errorResponse "Server unreachable"
// @Router /api/carddav/sync [post]
func (h *Handlers) TriggerSync(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if !strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		result, err := h.sync.Sync(context.WithoutCancel(r.Context()), userID, syncengine.RunOptions{})
		if err != nil {
			h.writeError(w, r, remoteFailure(err))
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}
	h.streamSync(w, r, userID)
}

func (h *Handlers) streamSync(w http.ResponseWriter, r *http.Request, userID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	// A long run outlives the server's write timeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("Could not clear write deadline", logging.Err(err))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	gone := r.Context().Done()
	events := make(chan syncengine.ProgressEvent)
	done := make(chan runOutcome, 1)
	runCtx := context.WithoutCancel(r.Context())

	go func() {
		result, err := h.sync.Sync(runCtx, userID, syncengine.RunOptions{
			Progress: func(ev syncengine.ProgressEvent) {
				select {
				case events <- ev:
				case <-gone:
				}
			},
		})
		done <- runOutcome{result: result, err: err}
	}()

	for {
		select {
		case ev := <-events:
			writeEvent(w, "progress", ev)
			flusher.Flush()
		case out := <-done:
			if out.err != nil {
				err := remoteFailure(out.err)
				writeEvent(w, "error", map[string]interface{}{"error": err.Error(), "status": statusFor(err)})
			} else {
				writeEvent(w, "result", out.result)
			}
			flusher.Flush()
			return
		case <-gone:
			h.logger.WithContext(r.Context()).Info("Sync client disconnected, run continues")
			return
		}
	}
}

// remoteFailure keeps a CardDAV 401 from reading as a failure of the
// caller's own token.
func remoteFailure(err error) error {
	if errors.IsType(err, errors.ErrTypeAuth) {
		return errors.ConnectionError("the CardDAV server rejected the stored credentials", err)
	}
	return err
}

func writeEvent(w http.ResponseWriter, name string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(`{}`)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}
