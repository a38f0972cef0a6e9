// Package adminapi implements the administrative HTTP API: a
// read-only JSON view of the registry and each service's peer count, plus
// aggregate stats, gated by the same apikey mechanism as /serverdb.
package adminapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/thesprockee/EchoRelay/internal/serverdb"
)

// PeerCounter is anything exposing how many peers it currently holds; every
// one of the five services satisfies this via service.Base.
type PeerCounter interface {
	Name() string
	PeerCount() int
}

// API serves the admin endpoints.
type API struct {
	APIKey   string
	Registry *serverdb.Registry
	Services []PeerCounter
}

// New returns an API bound to reg and services.
func New(apiKey string, reg *serverdb.Registry, services ...PeerCounter) *API {
	return &API{APIKey: apiKey, Registry: reg, Services: services}
}

// Router builds the chi router for the admin API.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(a.authenticate)

	r.Get("/api/servers", a.handleServers)
	r.Get("/api/stats", a.handleStats)

	return r
}

func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.APIKey != "" && r.URL.Query().Get("apikey") != a.APIKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleServers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Registry.Snapshot())
}

type statsResponse struct {
	ServerCount int            `json:"server_count"`
	Peers       map[string]int `json:"peers"`
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	servers := a.Registry.Snapshot()

	peers := make(map[string]int, len(a.Services))
	for _, svc := range a.Services {
		peers[svc.Name()] = svc.PeerCount()
	}

	writeJSON(w, http.StatusOK, statsResponse{
		ServerCount: len(servers),
		Peers:       peers,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
