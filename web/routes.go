package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mbocsi/telemux/services"
)

// Endpoints are the streaming and scrape handlers mounted next to the JSON
// API. A nil handler is not mounted.
type Endpoints struct {
	WSPath  string       // defaults to /ws
	WS      http.Handler // binary frame stream and command path
	Events  http.Handler // Server-Sent Events, mounted at /api/events
	Metrics http.Handler // Prometheus scrape endpoint
}

// API serves the bridge's HTTP surface.
type API struct {
	services  *services.ServiceContainer
	endpoints Endpoints
}

func NewAPI(svcs *services.ServiceContainer, endpoints Endpoints) *API {
	if endpoints.WSPath == "" {
		endpoints.WSPath = "/ws"
	}
	return &API{
		services:  svcs,
		endpoints: endpoints,
	}
}

// Routes returns the HTTP routes
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	if a.endpoints.WS != nil {
		r.Handle(a.endpoints.WSPath, a.endpoints.WS)
	}
	if a.endpoints.Metrics != nil {
		r.Handle("/metrics", a.endpoints.Metrics)
	}
	r.Get("/healthz", a.HandleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NoCache)
		r.Get("/kinds", a.HandleKinds)
		r.Get("/latest", a.HandleLatest)
		r.Get("/latest/{kind}", a.HandleLatestKind)
		r.Get("/clients", a.HandleClients)
		r.Get("/clients/{id}", a.HandleClientDetail)
		r.Post("/clients/{id}/rename", a.HandleClientRename)
		r.Get("/transports", a.HandleTransports)
		r.Get("/transports/{i}", a.HandleTransportDetail)
		r.Get("/stats", a.HandleStats)
		r.Post("/commands", a.HandleSendCommand)
		if a.endpoints.Events != nil {
			r.Get("/events", a.endpoints.Events.ServeHTTP)
		}
	})
	return r
}
