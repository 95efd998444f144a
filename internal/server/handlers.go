package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/quillhq/quill/internal/assist"
	"github.com/quillhq/quill/internal/llm"
)

// assistRequest is the JSON body of an assistant invocation. The action
// parameters ride at the top level; the stream endpoint additionally needs
// action_type since it has no path segment.
type assistRequest struct {
	ActionType string `json:"action_type,omitempty"`
	assist.Params
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: s.version})
}

// handleAssist runs an action synchronously. The response carries the result
// under the action's response key, e.g. {"improved_content": "..."}.
func (s *Server) handleAssist(w http.ResponseWriter, r *http.Request) {
	var body assistRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := s.disp.Dispatch(r.Context(), assist.Request{
		ActionType: r.PathValue("action"),
		Params:     body.Params,
	})
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		res.ResponseKey: res.Content,
		"context_id":    res.ContextID,
	})
}

// handleAssistStream starts a streamed dispatch and returns the stream ID
// the client should subscribe to on /ws.
func (s *Server) handleAssistStream(w http.ResponseWriter, r *http.Request) {
	var body assistRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	streamID, err := s.disp.DispatchStream(r.Context(), assist.Request{
		ActionType: body.ActionType,
		Params:     body.Params,
	})
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"stream_id": streamID})
}

// writeDispatchError translates pipeline errors into HTTP error responses.
// Errors never escape as anything but an {"error": ...} body.
func (s *Server) writeDispatchError(w http.ResponseWriter, err error) {
	var (
		paramErr   *assist.InvalidParametersError
		timeoutErr *assist.GenerationTimeoutError
		provErr    *llm.ProviderError
	)

	switch {
	case errors.As(err, &paramErr):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &timeoutErr):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.As(err, &provErr):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
