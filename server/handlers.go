package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/poiesic/chainlab/chain"
	"github.com/poiesic/chainlab/prompt"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

type invokeRequest struct {
	Input map[string]any `json:"input"`
}

type batchRequest struct {
	Inputs []map[string]any `json:"inputs"`
}

type invokeResponse struct {
	Output   string         `json:"output"`
	Metadata map[string]any `json:"metadata"`
}

type batchResponse struct {
	Output   []string       `json:"output"`
	Metadata map[string]any `json:"metadata"`
}

type schemaProperty struct {
	Title string `json:"title"`
	Type  string `json:"type"`
}

type inputSchema struct {
	Title      string                    `json:"title"`
	Type       string                    `json:"type"`
	Properties map[string]schemaProperty `json:"properties"`
	Required   []string                  `json:"required"`
}

type runnableHandler struct {
	runnable chain.Runnable
	logger   *slog.Logger
}

// invoke handles POST /{path}/invoke.
func (h *runnableHandler) invoke(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	output, err := h.runnable.Invoke(r.Context(), req.Input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invokeResponse{Output: output, Metadata: h.metadata()})
}

// batch handles POST /{path}/batch.
func (h *runnableHandler) batch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	outputs, err := h.runnable.Batch(r.Context(), req.Inputs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if outputs == nil {
		outputs = []string{}
	}
	writeJSON(w, http.StatusOK, batchResponse{Output: outputs, Metadata: h.metadata()})
}

// stream handles POST /{path}/stream as server-sent events.
func (h *runnableHandler) stream(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rc := http.NewResponseController(w)
	started := false
	begin := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
	}

	_, err := h.runnable.Stream(r.Context(), req.Input, func(ctx context.Context, fragment string) error {
		begin()
		if err := writeEvent(w, "data", fragment); err != nil {
			return err
		}
		return rc.Flush()
	})
	if err != nil {
		if !started {
			h.fail(w, r, err)
			return
		}
		h.logger.Error("stream failed", "err", err)
		writeEvent(w, "error", map[string]string{"error": err.Error()})
		rc.Flush()
		return
	}

	begin()
	writeEvent(w, "end", nil)
	rc.Flush()
}

// inputSchema handles GET /{path}/input_schema.
func (h *runnableHandler) inputSchema(w http.ResponseWriter, r *http.Request) {
	vars := h.runnable.InputVariables()
	schema := inputSchema{
		Title:      h.runnable.Name() + "Input",
		Type:       "object",
		Properties: make(map[string]schemaProperty, len(vars)),
		Required:   vars,
	}
	if schema.Required == nil {
		schema.Required = []string{}
	}
	for _, name := range vars {
		schema.Properties[name] = schemaProperty{Title: name, Type: "string"}
	}
	writeJSON(w, http.StatusOK, schema)
}

func (h *runnableHandler) metadata() map[string]any {
	return map[string]any{"run_name": h.runnable.Name()}
}

// fail maps a runnable error to a status code.
func (h *runnableHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, prompt.ErrMissingVariable), errors.Is(err, chain.ErrEmptyInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		// client went away
		h.logger.Debug("request canceled", "err", err)
	default:
		h.logger.Error("runnable failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeEvent writes one server-sent event with a JSON encoded payload.
func writeEvent(w io.Writer, event string, payload any) error {
	if payload == nil {
		_, err := fmt.Fprintf(w, "event: %s\n\n", event)
		return err
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
