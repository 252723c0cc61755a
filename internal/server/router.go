// Package server exposes the editor over HTTP.
package server

import (
	"net/http"

	"github.com/maruel/kvedit/internal/server/handlers"
	"github.com/maruel/kvedit/internal/server/ratelimit"
)

// NewRouter creates and configures the HTTP router. limits may be nil to
// disable rate limiting.
func NewRouter(h *handlers.Handler, limits *ratelimit.Config) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /api/health", Wrap(h.Health))
	mux.Handle("GET /api/notifications", Wrap(h.Notifications))

	// Activation and state
	mux.Handle("POST /api/overlay/toggle", Wrap(h.Toggle))
	mux.Handle("GET /api/state", Wrap(h.State))

	// Navigation
	mux.Handle("GET /api/databases", Wrap(h.ListDatabases))
	mux.Handle("POST /api/databases/{db}/select", Wrap(h.SelectDatabase))
	mux.Handle("POST /api/stores/{store}/select", Wrap(h.SelectStore))
	mux.Handle("POST /api/stores/refresh", Wrap(h.Refresh))

	// Records
	mux.Handle("GET /api/records", Wrap(h.ListRecords))
	mux.Handle("POST /api/records/view", Wrap(h.ViewRecord))
	mux.Handle("POST /api/view/list", Wrap(h.ShowList))

	// Edit modal
	mux.Handle("POST /api/edit/new", Wrap(h.BeginCreate))
	mux.Handle("POST /api/edit/selected", Wrap(h.EditSelected))
	mux.Handle("POST /api/edit/record", Wrap(h.BeginEdit))
	mux.Handle("PUT /api/edit/buffer", Wrap(h.SetBuffer))
	mux.Handle("POST /api/edit/save", Wrap(h.Save))
	mux.Handle("POST /api/edit/cancel", Wrap(h.CancelEdit))
	mux.Handle("POST /api/edit/delete", Wrap(h.Delete))
	mux.Handle("GET /api/edit/export", Wrap(h.Export))
	mux.Handle("POST /api/edit/import", Wrap(h.Import))

	var handler http.Handler = mux
	if limits != nil {
		handler = ratelimit.Middleware(limits)(handler)
	}
	return Recover(LogRequests(handler))
}
