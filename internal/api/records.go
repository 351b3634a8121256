package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"trakn-sync-service/internal/queue"
)

func decodeRecord(r *http.Request) (queue.Record, error) {
	var rec queue.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	if rec == nil {
		rec = queue.Record{}
	}
	return rec, nil
}

func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	recs, err := h.records.List(r.Context(), chi.URLParam(r, "table"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if recs == nil {
		recs = []queue.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.records.Get(r.Context(), chi.URLParam(r, "table"), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := decodeRecord(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := h.records.Create(r.Context(), chi.URLParam(r, "table"), rec)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := decodeRecord(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := h.records.Update(r.Context(), chi.URLParam(r, "table"), chi.URLParam(r, "id"), rec)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	res, err := h.records.Delete(r.Context(), chi.URLParam(r, "table"), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
