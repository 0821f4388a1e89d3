// Package handlers is the transport seam between the messaging channel and
// the command core. The channel integration POSTs command records here and
// relays the reply back to the chat; the core never sees the transport.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/deskly/deskbot/internal/dispatch"
	"github.com/deskly/deskbot/internal/domain"
	"github.com/deskly/deskbot/pkg/logger"
)

type Handlers struct {
	dispatcher *dispatch.Dispatcher
}

func New(dispatcher *dispatch.Dispatcher) *Handlers {
	return &Handlers{dispatcher: dispatcher}
}

// HandleCommand decodes one command record, dispatches it, and returns the
// reply. Malformed payloads are the only 4xx surface; command-level
// failures are reported inside the reply text.
func (h *Handlers) HandleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd domain.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid command payload")
		return
	}
	if cmd.Name == "" || cmd.Sender == "" {
		writeError(w, http.StatusBadRequest, "command and sender_identity are required")
		return
	}

	reply := h.dispatcher.Dispatch(r.Context(), cmd)
	writeJSON(w, http.StatusOK, reply)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
