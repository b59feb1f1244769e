package server

import (
	"net/http"

	"sdui/internal/gateway/handler"
	"sdui/internal/gateway/middleware"
)

type Handlers struct {
	Screen    *handler.ScreenHandler
	Component *handler.ComponentHandler
	Theme     *handler.ThemeHandler
	Module    *handler.ModuleHandler
	System    *handler.SystemHandler
	Push      *handler.PushHandler
}

func NewMux(h Handlers) http.Handler {
	mux := http.NewServeMux()

	// Screen API
	h.Screen.Register(mux)
	h.Component.Register(mux)
	h.Theme.Register(mux)

	// Admin
	h.Module.Register(mux)
	h.System.Register(mux)

	// Push channel
	h.Push.Register(mux)

	// Middleware
	return middleware.CORS(mux)
}
