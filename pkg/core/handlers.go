package core

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/joeydtaylor/steeze-assets/pkg/codec"
	"github.com/joeydtaylor/steeze-assets/pkg/handoff"
	"github.com/joeydtaylor/steeze-assets/pkg/resolver"
)

type handlers struct {
	res Resolver
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (h handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"state": h.res.State().String()}, http.StatusOK)
}

func (h handlers) readyz(w http.ResponseWriter, _ *http.Request) {
	st := h.res.Stats()
	status := http.StatusOK
	if st.State != resolver.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, st, status)
}

func (h handlers) resolve(w http.ResponseWriter, r *http.Request) {
	req := strings.TrimSpace(r.URL.Query().Get("request"))
	if req == "" {
		writeJSON(w, errorBody{Error: "request is required"}, http.StatusBadRequest)
		return
	}
	got, ok, err := h.res.ResolveFrom(r.Context(), req, r.URL.Query().Get("from"))
	switch {
	case err != nil:
		writeError(w, err)
	case !ok:
		writeJSON(w, errorBody{Error: "not an asset request"}, http.StatusNotFound)
	default:
		writeJSON(w, got, http.StatusOK)
	}
}

func (h handlers) manifest(w http.ResponseWriter, _ *http.Request) {
	m := h.res.Manifest()
	if m == nil {
		writeJSON(w, errorBody{Error: "manifest not loaded"}, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, struct {
		Stats  resolver.Stats    `json:"stats"`
		Marked map[string]string `json:"marked"`
		Chunks map[string]string `json:"chunks,omitempty"`
	}{h.res.Stats(), m.Marked, m.Chunks}, http.StatusOK)
}

func (h handlers) reload(w http.ResponseWriter, r *http.Request) {
	if err := h.res.Reload().Wait(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, h.res.Stats(), http.StatusOK)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, resolver.ErrClosed) {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, errorBody{Error: err.Error(), Kind: handoff.KindName(err)}, status)
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	b, err := codec.JSONStrict.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", codec.JSONStrict.ContentType())
	w.WriteHeader(status)
	_, _ = w.Write(b)
}
