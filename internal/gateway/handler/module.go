package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"sdui/internal/gateway/push"
	modulesvc "sdui/internal/gateway/service/module"
	screensvc "sdui/internal/gateway/service/screen"
	"sdui/internal/util/jsonutil"
)

// ModuleHandler is the admin surface for modules, flags and forced refreshes.
type ModuleHandler struct {
	svc *screensvc.Service
}

func NewModuleHandler(svc *screensvc.Service) *ModuleHandler {
	return &ModuleHandler{svc: svc}
}

func (h *ModuleHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /modules", h.HandleList)
	mux.HandleFunc("GET /modules/{id}", h.HandleGet)
	mux.HandleFunc("POST /modules/{id}/enable", h.HandleEnable)
	mux.HandleFunc("POST /modules/{id}/disable", h.HandleDisable)
	mux.HandleFunc("PUT /modules/{id}/config", h.HandleConfig)
	mux.HandleFunc("PUT /modules/{id}/flags/{flag}", h.HandleFlag)
	mux.HandleFunc("POST /modules/{id}/actions/{action}", h.HandleAction)
	mux.HandleFunc("POST /admin/refresh", h.HandleRefresh)
}

// scopeRequest is the optional audience of a module broadcast.
type scopeRequest struct {
	Scope  string `json:"scope,omitempty"`
	Value  string `json:"value,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (s scopeRequest) resolve() (push.Scope, bool) {
	kind := strings.ToLower(strings.TrimSpace(s.Scope))
	if kind == "" {
		return push.All(), true
	}
	if kind == string(push.ScopeAll) {
		return push.All(), true
	}
	return push.ParseScope(kind + ":" + s.Value)
}

// readScope accepts an empty body as the all-clients scope.
func readScope(r *http.Request) (scopeRequest, push.Scope, bool) {
	var in scopeRequest
	raw, err := jsonutil.ReadBody(r.Body, maxBodyBytes)
	if err != nil {
		return in, push.Scope{}, false
	}
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := json.Unmarshal(raw, &in); err != nil {
			return in, push.Scope{}, false
		}
	}
	scope, ok := in.resolve()
	return in, scope, ok
}

func (h *ModuleHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	jsonutil.WriteJSON(w, http.StatusOK, map[string]any{"modules": h.svc.Modules().List(r.Context())})
}

func (h *ModuleHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Modules().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, m)
}

func (h *ModuleHandler) HandleEnable(w http.ResponseWriter, r *http.Request) {
	_, scope, ok := readScope(r)
	if !ok {
		badRequest(w, "invalid scope")
		return
	}
	m, err := h.svc.EnableModule(r.Context(), scope, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, m)
}

func (h *ModuleHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	in, scope, ok := readScope(r)
	if !ok {
		badRequest(w, "invalid scope")
		return
	}
	m, err := h.svc.DisableModule(r.Context(), scope, r.PathValue("id"), in.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, m)
}

type moduleConfigRequest struct {
	scopeRequest
	Config map[string]any `json:"config"`
}

func (h *ModuleHandler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	var in moduleConfigRequest
	if _, err := readJSON(r, &in); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	scope, ok := in.resolve()
	if !ok {
		badRequest(w, "invalid scope")
		return
	}
	m, err := h.svc.UpdateModuleConfig(r.Context(), scope, r.PathValue("id"), in.Config)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, m)
}

func (h *ModuleHandler) HandleFlag(w http.ResponseWriter, r *http.Request) {
	var f modulesvc.Flag
	if _, err := readJSON(r, &f); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	f.Name = r.PathValue("flag")
	m, err := h.svc.SetFlag(r.Context(), r.PathValue("id"), f)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, m)
}

// HandleAction is the plain-HTTP route for module actions, used by clients
// that are not connected to the push channel.
func (h *ModuleHandler) HandleAction(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	raw, err := jsonutil.ReadBody(r.Body, maxBodyBytes)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			badRequest(w, "invalid json body")
			return
		}
	}
	result, err := h.svc.Modules().ExecuteModuleAction(r.Context(), r.PathValue("id"), r.PathValue("action"), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "result": result})
}

func (h *ModuleHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	in, scope, ok := readScope(r)
	if !ok {
		badRequest(w, "invalid scope")
		return
	}
	n := h.svc.ForceRefresh(r.Context(), scope, in.Reason)
	jsonutil.WriteJSON(w, http.StatusOK, map[string]any{"scope": scope.String(), "delivered": n})
}
