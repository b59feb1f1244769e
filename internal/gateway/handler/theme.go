package handler

import (
	"net/http"

	screensvc "sdui/internal/gateway/service/screen"
	"sdui/internal/util/jsonutil"
)

type ThemeHandler struct {
	svc *screensvc.Service
}

func NewThemeHandler(svc *screensvc.Service) *ThemeHandler {
	return &ThemeHandler{svc: svc}
}

func (h *ThemeHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /themes", h.HandleList)
	mux.HandleFunc("GET /themes/{variant}", h.HandleGet)
	mux.HandleFunc("PUT /themes/{variant}", h.HandlePut)
}

func (h *ThemeHandler) HandleList(w http.ResponseWriter, _ *http.Request) {
	jsonutil.WriteJSON(w, http.StatusOK, map[string]any{"variants": h.svc.Themes().Variants()})
}

func (h *ThemeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Themes().Get(r.Context(), r.PathValue("variant"))
	if err != nil {
		writeError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, t)
}

func (h *ThemeHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	var values map[string]any
	if _, err := readJSON(r, &values); err != nil || values == nil {
		badRequest(w, "theme body must be a json object")
		return
	}
	t, err := h.svc.PutTheme(r.Context(), r.PathValue("variant"), values)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, t)
}
