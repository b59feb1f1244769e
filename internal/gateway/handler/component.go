package handler

import (
	"net/http"
	"strings"

	"sdui/internal/gateway/repository/component"
	screensvc "sdui/internal/gateway/service/screen"
	"sdui/internal/util/jsonutil"
)

type ComponentHandler struct {
	svc *screensvc.Service
}

func NewComponentHandler(svc *screensvc.Service) *ComponentHandler {
	return &ComponentHandler{svc: svc}
}

func (h *ComponentHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /components", h.HandleList)
	mux.HandleFunc("GET /components/{name}", h.HandleGet)
	mux.HandleFunc("POST /components", h.HandleRegister)
}

func (h *ComponentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := h.svc.Components().List(r.Context(), component.Filter{
		Category:   strings.TrimSpace(q.Get("category")),
		Platform:   strings.TrimSpace(q.Get("platform")),
		AppVersion: strings.TrimSpace(q.Get("appVersion")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []component.Entry{}
	}
	jsonutil.WriteJSON(w, http.StatusOK, map[string]any{"components": entries})
}

func (h *ComponentHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.Components().Get(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, e)
}

func (h *ComponentHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in component.Entry
	if _, err := readJSON(r, &in); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	out, err := h.svc.RegisterComponent(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusCreated, out)
}
