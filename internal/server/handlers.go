package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/ubuntu/recordfeed/internal/api"
	"github.com/ubuntu/recordfeed/internal/constants"
	"github.com/ubuntu/recordfeed/internal/model"
)

type handlers struct {
	source api.RecordAPI
	keys   model.KeyMap
	// canonical maps wire keys back to canonical keys.
	canonical map[string]string

	log *slog.Logger
}

func newHandlers(source api.RecordAPI, keys model.KeyMap, log *slog.Logger) *handlers {
	canonical := make(map[string]string)
	for _, k := range model.Keys() {
		canonical[keys.WireKey(k)] = k
	}
	return &handlers{source: source, keys: keys, canonical: canonical, log: log}
}

// requestID returns the id the client sent, or a new one, and echoes it in the response.
func requestID(w http.ResponseWriter, r *http.Request) string {
	id := r.Header.Get(constants.RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(constants.RequestIDHeader, id)
	return id
}

func (h *handlers) record(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w, r)
	id := r.PathValue("id")

	rec, err := h.source.Record(r.Context(), id)
	if err != nil {
		h.fail(w, reqID, err)
		return
	}

	h.log.Debug("Serving record", "req_id", reqID, "id", id)
	h.writeJSON(w, reqID, h.toWire(rec))
}

func (h *handlers) records(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w, r)

	q := make(api.Query)
	for wire, values := range r.URL.Query() {
		key, ok := h.canonical[wire]
		if !ok {
			h.fail(w, reqID, fmt.Errorf("%w: unknown filter key %q", api.ErrMalformedTarget, wire))
			return
		}
		if len(values) != 1 {
			h.fail(w, reqID, fmt.Errorf("%w: filter key %q given %d times", api.ErrMalformedTarget, wire, len(values)))
			return
		}
		q[key] = values[0]
	}

	recs, err := h.source.Records(r.Context(), q)
	if err != nil {
		h.fail(w, reqID, err)
		return
	}

	docs := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		docs = append(docs, h.toWire(rec))
	}
	h.log.Debug("Serving records", "req_id", reqID, "query", q.Encode(), "count", len(docs))
	h.writeJSON(w, reqID, docs)
}

func version(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"version":"%s"}`, constants.Version)
}

// toWire renders rec with the wire keys. Empty optional values are left out.
func (h *handlers) toWire(rec model.Record) map[string]any {
	doc := map[string]any{
		h.keys.WireKey("id"):   rec.ID,
		h.keys.WireKey("name"): rec.Name,
	}
	if rec.Description != "" {
		doc[h.keys.WireKey("description")] = rec.Description
	}
	if rec.Price != 0 {
		doc[h.keys.WireKey("price")] = rec.Price
	}
	return doc
}

func (h *handlers) writeJSON(w http.ResponseWriter, reqID string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Error encoding response", http.StatusInternalServerError)
		h.log.Error("Error encoding response", "req_id", reqID, "error", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (h *handlers) fail(w http.ResponseWriter, reqID string, err error) {
	status := http.StatusInternalServerError
	var re *api.RemoteError
	switch {
	case errors.As(err, &re):
		status = re.StatusCode
	case api.KindOf(err) == api.KindMalformed:
		status = http.StatusBadRequest
	case api.KindOf(err) == api.KindTransport:
		status = http.StatusServiceUnavailable
	}

	h.log.Info("Request failed", "req_id", reqID, "status", status, "error", err)
	http.Error(w, http.StatusText(status), status)
}
