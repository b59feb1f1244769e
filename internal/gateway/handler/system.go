package handler

import (
	"net/http"
	"time"

	"sdui/internal/gateway/push"
	screensvc "sdui/internal/gateway/service/screen"
	"sdui/internal/util/jsonutil"
)

type SystemHandler struct {
	svc     *screensvc.Service
	hub     *push.Hub
	started time.Time
}

func NewSystemHandler(svc *screensvc.Service, hub *push.Hub) *SystemHandler {
	return &SystemHandler{svc: svc, hub: hub, started: time.Now()}
}

func (h *SystemHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /config/version", h.HandleConfigVersion)
	mux.HandleFunc("GET /healthz", h.HandleHealth)
}

func (h *SystemHandler) HandleConfigVersion(w http.ResponseWriter, _ *http.Request) {
	jsonutil.WriteJSON(w, http.StatusOK, map[string]any{"configVersion": h.svc.ConfigVersion()})
}

func (h *SystemHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	jsonutil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"uptime":        time.Since(h.started).Round(time.Second).String(),
		"clients":       h.hub.Count(),
		"configVersion": h.svc.ConfigVersion(),
	})
}
