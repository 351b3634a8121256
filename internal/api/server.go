package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
)

// Server builds the HTTP server for the handler's routes. Request contexts derive from ctx,
// so cancelling it ends open status streams and lets Shutdown finish.
func (h *Handler) Server(ctx context.Context) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", h.cfg.Host, h.cfg.Port),
		Handler:      h.Routes(),
		ReadTimeout:  h.cfg.GetReadTimeout(),
		WriteTimeout: h.cfg.GetWriteTimeout(),
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
}
