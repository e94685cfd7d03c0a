package httpapi

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/drblury/omstasher/internal/runtime/container"
	"github.com/drblury/omstasher/internal/runtime/ids"
	"github.com/drblury/omstasher/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/omstasher/internal/runtime/logging"
	"github.com/drblury/omstasher/internal/thoughts"
)

const maxBodyBytes = 1 << 20

type handlers struct {
	services *container.Services
	logger   loggingpkg.ServiceLogger
}

type versionResponse struct {
	Version string `json:"version"`
}

type errorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func (h *handlers) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, versionResponse{Version: APIVersion})
}

func (h *handlers) getThought(w http.ResponseWriter, r *http.Request) {
	id, ok := h.thoughtID(w, r)
	if !ok {
		return
	}
	env, err := h.services.Thoughts.GetThought(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (h *handlers) getThread(w http.ResponseWriter, r *http.Request) {
	id, ok := h.thoughtID(w, r)
	if !ok {
		return
	}
	thread, err := h.services.Thoughts.GetThread(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

func (h *handlers) postThought(w http.ResponseWriter, r *http.Request) {
	var req thoughts.PostRequest
	if err := jsoncodec.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes), &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed thought: "+err.Error())
		return
	}

	env, err := h.services.Thoughts.PostThought(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	status := http.StatusOK
	if req.ID == nil {
		status = http.StatusCreated
		w.Header().Set("Location", "/thoughts/"+env.ThoughtID)
	}
	writeJSON(w, status, env)
}

func (h *handlers) thoughtID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := ids.ParseThoughtID(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return uuid.Nil, false
	}
	return id, true
}

// fail maps service errors to status codes. Unexpected errors are logged
// and hidden from the client.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, thoughts.ErrThoughtNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, thoughts.ErrParentNotFound):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, thoughts.ErrInvalidThought):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("Request failed", err, loggingpkg.LogFields{
			"path":           r.URL.Path,
			"correlation_id": CorrelationID(r.Context()),
		})
		writeError(w, r, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = jsoncodec.Encode(w, body)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, CorrelationID: CorrelationID(r.Context())})
}
