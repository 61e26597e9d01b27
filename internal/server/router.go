// Package server implements the HTTP API over the table store.
package server

import (
	"log/slog"
	"net/http"

	"github.com/maruel/jsondb/internal/metrics"
	"github.com/maruel/jsondb/internal/server/dto"
	"github.com/maruel/jsondb/internal/server/handlers"
	"github.com/maruel/jsondb/internal/server/ratelimit"
)

// NewRouter creates and configures the HTTP router. m and tiers may be nil.
func NewRouter(svc *handlers.Services, cfg *handlers.Config, tiers *ratelimit.Tiers, m *metrics.Metrics) http.Handler {
	mux := &http.ServeMux{}
	hh := handlers.NewHealthHandler(cfg.Version)
	uh := handlers.NewUserHandler(svc.Store)
	th := handlers.NewTableHandler(svc.Store)
	sh := handlers.NewSchemaHandler()
	histh := handlers.NewHistoryHandler(svc.History)

	mux.Handle("GET /api/health", Wrap(hh.Health, cfg, tiers))

	// Users
	mux.Handle("GET /api/users", Wrap(uh.ListUsers, cfg, tiers))
	mux.Handle("POST /api/users", Wrap(uh.CreateUser, cfg, tiers))
	mux.Handle("GET /api/users/{id}", Wrap(uh.GetUser, cfg, tiers))
	mux.Handle("PUT /api/users/{id}", Wrap(uh.UpdateUser, cfg, tiers))
	mux.Handle("PATCH /api/users/{id}", Wrap(uh.UpdateUser, cfg, tiers))
	mux.Handle("DELETE /api/users/{id}", Wrap(uh.DeleteUser, cfg, tiers))

	// Tables
	mux.Handle("GET /api/tables", Wrap(th.ListTables, cfg, tiers))
	mux.Handle("GET /api/tables/{table}/records", Wrap(th.ListRecords, cfg, tiers))
	mux.Handle("POST /api/tables/{table}/records", Wrap(th.CreateRecord, cfg, tiers))
	mux.Handle("GET /api/tables/{table}/records/{id}", Wrap(th.GetRecord, cfg, tiers))
	mux.Handle("PUT /api/tables/{table}/records/{id}", Wrap(th.UpdateRecord, cfg, tiers))
	mux.Handle("PATCH /api/tables/{table}/records/{id}", Wrap(th.UpdateRecord, cfg, tiers))
	mux.Handle("DELETE /api/tables/{table}/records/{id}", Wrap(th.DeleteRecord, cfg, tiers))

	mux.Handle("GET /api/schemas", Wrap(sh.Schemas, cfg, tiers))
	mux.Handle("GET /api/history", Wrap(histh.History, cfg, tiers))

	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}
	mux.HandleFunc("/", routeNotFound)

	return withRequestID(withClientIP(withAccessLog(mux, m), cfg.TrustProxyHeaders))
}

func routeNotFound(w http.ResponseWriter, r *http.Request) {
	apiErr := dto.RouteNotFound(r.Method, r.URL.Path)
	slog.WarnContext(r.Context(), "Route not found", "method", r.Method, "path", r.URL.Path)
	writeErrorResponseWithCode(w, apiErr.StatusCode(), apiErr.Code(), apiErr.Error(), apiErr.Details())
}
