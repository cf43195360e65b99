package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/neuroshield/neuroshield/automation"
	"github.com/neuroshield/neuroshield/bridge"
	"github.com/neuroshield/neuroshield/broadcast"
	"github.com/neuroshield/neuroshield/hub"
)

// API exposes the status query surface and the realtime endpoint.
type API struct {
	executor    *automation.Executor
	broadcaster *broadcast.Broadcaster
	bridge      *bridge.Bridge // nil when redis is unavailable
	hub         *hub.Hub
}

func NewAPI(executor *automation.Executor, broadcaster *broadcast.Broadcaster, b *bridge.Bridge, h *hub.Hub) *API {
	return &API{executor: executor, broadcaster: broadcaster, bridge: b, hub: h}
}

// Router builds the HTTP routing table.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", a.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/ws", a.handleWS)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/actions", a.handleListActions).Methods(http.MethodGet)
	api.HandleFunc("/actions", a.handleSubmitAction).Methods(http.MethodPost)
	api.HandleFunc("/actions/{id}", a.handleGetAction).Methods(http.MethodGet)
	api.HandleFunc("/actions/{id}/cancel", a.handleCancelAction).Methods(http.MethodPost)
	api.HandleFunc("/actions/{id}/approve", a.handleApproveAction).Methods(http.MethodPost)
	api.HandleFunc("/events", a.handleRecentEvents).Methods(http.MethodGet)
	api.HandleFunc("/queue", a.handleQueueSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/devices", a.handleDevices).Methods(http.MethodGet)
	return r
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": a.hub.ConnCount(),
	})
}

func (a *API) handleListActions(w http.ResponseWriter, r *http.Request) {
	device := r.URL.Query().Get("device")
	limit := queryInt(r, "limit", 50)
	writeJSON(w, http.StatusOK, map[string]any{
		"actions": a.executor.ListActions(device, limit),
	})
}

type submitRequest struct {
	Device      string         `json:"device"`
	ActionType  string         `json:"action_type"`
	Parameters  map[string]any `json:"parameters"`
	Priority    int            `json:"priority"`
	AutoExecute *bool          `json:"auto_execute"`
}

func (a *API) handleSubmitAction(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
		return
	}
	if req.Device == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "device is required"})
		return
	}
	autoExecute := true
	if req.AutoExecute != nil {
		autoExecute = *req.AutoExecute
	}
	if req.Priority == 0 {
		req.Priority = 1
	}

	id, err := a.executor.Submit(automation.ActionKind(req.ActionType), req.Device,
		req.Parameters, req.Priority, autoExecute)
	if err != nil {
		if errors.Is(err, automation.ErrUnknownKind) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"action_id": id})
}

func (a *API) handleGetAction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	action, err := a.executor.GetStatus(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "action not found"})
		return
	}
	writeJSON(w, http.StatusOK, action)
}

func (a *API) handleCancelAction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": a.executor.Cancel(id)})
}

func (a *API) handleApproveAction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	writeJSON(w, http.StatusOK, map[string]any{"approved": a.executor.Approve(id)})
}

func (a *API) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	typeFilter := broadcast.EventType(r.URL.Query().Get("type"))
	device := r.URL.Query().Get("device")
	writeJSON(w, http.StatusOK, map[string]any{
		"events": a.broadcaster.GetRecent(limit, typeFilter, device),
	})
}

func (a *API) handleQueueSnapshot(w http.ResponseWriter, r *http.Request) {
	if a.bridge == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "durable queue bridge disabled"})
		return
	}
	entries, err := a.bridge.Snapshot(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"queue_size":      len(entries),
		"pending_actions": entries,
	})
}

func (a *API) handleDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.executor.Inventory().All())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("response encode failed: %v", err)
	}
}

func queryInt(r *http.Request, key string, def int) int {
	if s := r.URL.Query().Get(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}
