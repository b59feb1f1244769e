package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	screenrepo "sdui/internal/gateway/repository/screen"
	screensvc "sdui/internal/gateway/service/screen"
	"sdui/internal/gateway/validate"
	"sdui/internal/screen"
	"sdui/internal/util/jsonutil"
)

type ScreenHandler struct {
	svc *screensvc.Service
}

func NewScreenHandler(svc *screensvc.Service) *ScreenHandler {
	return &ScreenHandler{svc: svc}
}

func (h *ScreenHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /screens", h.HandleList)
	mux.HandleFunc("GET /screen/{name}", h.HandleGet)
	mux.HandleFunc("PUT /screen/{name}", h.HandleUpdate)
	mux.HandleFunc("POST /screen/{name}/variant", h.HandleCreateVariant)
	mux.HandleFunc("POST /screen/{name}/components", h.HandleAddComponent)
	mux.HandleFunc("PATCH /screen/{name}/components/{id}", h.HandleUpdateComponent)
	mux.HandleFunc("DELETE /screen/{name}/components/{id}", h.HandleRemoveComponent)
	mux.HandleFunc("GET /screen/{name}/versions", h.HandleVersions)
	mux.HandleFunc("GET /screen/{name}/versions/{version}", h.HandleVersion)
}

func (h *ScreenHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.svc.GetScreen(r.Context(), screensvc.Request{
		Screen:          r.PathValue("name"),
		Variant:         strings.TrimSpace(q.Get("variant")),
		UserID:          strings.TrimSpace(q.Get("userId")),
		ExperimentGroup: strings.TrimSpace(q.Get("experimentGroup")),
		Platform:        strings.TrimSpace(q.Get("platform")),
		Segment:         strings.TrimSpace(q.Get("segment")),
		Geo:             strings.TrimSpace(q.Get("geo")),
		AppVersion:      strings.TrimSpace(q.Get("appVersion")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("X-Config-Version", strconv.FormatInt(res.ConfigVersion, 10))
	w.Header().Set("X-Screen-Variant", res.Variant)
	if ttl := res.Config.Metadata.CacheTTL; ttl > 0 {
		w.Header().Set("Cache-Control", "private, max-age="+strconv.Itoa(ttl))
	}
	jsonutil.WriteJSON(w, http.StatusOK, res.Config)
}

func (h *ScreenHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	raw, err := jsonutil.ReadBody(r.Body, maxBodyBytes)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := validate.ScreenConfig(raw); err != nil {
		writeError(w, err)
		return
	}
	var patch screenrepo.ConfigPatch
	if err := json.Unmarshal(raw, &patch); err != nil {
		writeError(w, screen.Invalid("", "%v", err))
		return
	}
	cfg, err := h.svc.UpdateScreen(r.Context(), r.PathValue("name"), queryVariant(r), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, cfg)
}

type createVariantRequest struct {
	VariantName  string          `json:"variantName"`
	Config       json.RawMessage `json:"config,omitempty"`
	TrafficSplit float64         `json:"trafficSplit"`
}

func (h *ScreenHandler) HandleCreateVariant(w http.ResponseWriter, r *http.Request) {
	var in createVariantRequest
	if _, err := readJSON(r, &in); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	var cfg *screen.ScreenConfig
	if raw := bytes.TrimSpace(in.Config); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if err := validate.ScreenConfig(raw); err != nil {
			writeError(w, err)
			return
		}
		decoded, err := screen.Decode(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		cfg = decoded
	}
	out, err := h.svc.CreateVariant(r.Context(), r.PathValue("name"), in.VariantName, cfg, in.TrafficSplit)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusCreated, out)
}

func (h *ScreenHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	jsonutil.WriteJSON(w, http.StatusOK, map[string]any{
		"screens": h.svc.Store().List(r.Context()),
	})
}

type addComponentRequest struct {
	Component *screen.ComponentNode  `json:"component"`
	Position  screenrepo.PositionHint `json:"position"`
}

func (h *ScreenHandler) HandleAddComponent(w http.ResponseWriter, r *http.Request) {
	var in addComponentRequest
	if _, err := readJSON(r, &in); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	added, err := h.svc.AddComponent(r.Context(), r.PathValue("name"), queryVariant(r), in.Component, in.Position)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusCreated, added)
}

func (h *ScreenHandler) HandleUpdateComponent(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if _, err := readJSON(r, &patch); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	if props, ok := patch["props"].(map[string]any); ok && len(patch) == 1 {
		patch = props
	}
	node, err := h.svc.UpdateComponentProps(r.Context(), r.PathValue("name"), queryVariant(r), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, node)
}

func (h *ScreenHandler) HandleRemoveComponent(w http.ResponseWriter, r *http.Request) {
	removed, err := h.svc.RemoveComponent(r.Context(), r.PathValue("name"), queryVariant(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (h *ScreenHandler) HandleVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.svc.Store().History(r.Context(), r.PathValue("name"), queryVariant(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if versions == nil {
		versions = []int64{}
	}
	jsonutil.WriteJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (h *ScreenHandler) HandleVersion(w http.ResponseWriter, r *http.Request) {
	v, err := strconv.ParseInt(r.PathValue("version"), 10, 64)
	if err != nil || v < 1 {
		badRequest(w, "version must be a positive integer")
		return
	}
	cfg, err := h.svc.Store().Version(r.Context(), r.PathValue("name"), queryVariant(r), v)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, cfg)
}
