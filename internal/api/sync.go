package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"trakn-sync-service/internal/queue"
	"trakn-sync-service/internal/store"
)

func (h *Handler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.coordinator.Snapshot())
}

// StreamSyncStatus pushes a server-sent event for every status change.
func (h *Handler) StreamSyncStatus(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	updates, cancel := h.coordinator.Subscribe()
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				return
			}
			fmt.Fprintf(w, "event: status\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (h *Handler) ForceSync(w http.ResponseWriter, r *http.Request) {
	if err := h.coordinator.ForceSync(r.Context()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, h.coordinator.Snapshot())
}

type onlineRequest struct {
	Online *bool `json:"online"`
}

func (h *Handler) SetOnline(w http.ResponseWriter, r *http.Request) {
	var req onlineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Online == nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("body must be {\"online\": true|false}"))
		return
	}
	h.coordinator.SetOnline(*req.Online)
	writeJSON(w, http.StatusOK, h.coordinator.Snapshot())
}

type operationRequest struct {
	Type  queue.OperationType `json:"type"`
	Table string              `json:"table"`
	Data  queue.Record        `json:"data"`
}

func (h *Handler) QueueOperation(w http.ResponseWriter, r *http.Request) {
	var req operationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	op, err := h.coordinator.QueueOperation(r.Context(), req.Type, req.Table, req.Data)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, op)
}

func (h *Handler) ListQueue(w http.ResponseWriter, r *http.Request) {
	ops, err := h.coordinator.PendingOperations(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if ops == nil {
		ops = []queue.Operation{}
	}
	writeJSON(w, http.StatusOK, ops)
}

func (h *Handler) ClearQueue(w http.ResponseWriter, r *http.Request) {
	if err := h.coordinator.Reset(r.Context()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type historyEntry struct {
	ID          string     `json:"id"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Synced      int        `json:"synced"`
	Failed      int        `json:"failed"`
	Pending     int        `json:"pending"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
}

func newHistoryEntry(h *store.SyncHistory) historyEntry {
	e := historyEntry{
		ID:        h.ID,
		StartedAt: h.StartedAt,
		Synced:    h.Synced,
		Failed:    h.Failed,
		Pending:   h.Pending,
		Status:    h.Status,
		Error:     h.ErrorMessage.String,
	}
	if h.CompletedAt.Valid {
		t := h.CompletedAt.Time
		e.CompletedAt = &t
	}
	return e
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	history, err := h.history.GetSyncHistory(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	entries := make([]historyEntry, 0, len(history))
	for _, entry := range history {
		entries = append(entries, newHistoryEntry(entry))
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) GetDropped(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	dropped, err := h.history.ListDropped(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if dropped == nil {
		dropped = []*store.DroppedOperation{}
	}
	writeJSON(w, http.StatusOK, dropped)
}
