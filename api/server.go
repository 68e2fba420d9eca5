/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the operator frontend

ROUTE GROUPS:
  /healthz              Liveness + database ping
  /metrics              Prometheus exposition (when enabled)
  /api/drivers/*        Driver catalog
  /api/stores/*         Store catalog and CD detection
  /api/trips/*          Trips, line items, trip-wide returns
  /api/items/*          Single line item operations
  /api/returns/*        Return audit log
  /api/depot/*          Distribution center ledger
  /api/dashboard/*      Aggregated figures
  /api/scenarios/*      Demo scenarios

SECURITY NOTE:
  No authentication middleware. The acting user is read from X-User and
  trusted; put an authenticating proxy in front of this service.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions tune the router. The zero value serves the API only, with
// CORS open to the local frontend dev servers.
type RouterOptions struct {
	AllowedOrigins []string
	Metrics        http.Handler // mounted on /metrics when set
}

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = defaultOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", UserHeader},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/drivers", func(r chi.Router) {
			r.Get("/", h.ListDrivers)
			r.Post("/", h.CreateDriver)
			r.Delete("/{id}", h.DeleteDriver)
		})

		r.Route("/stores", func(r chi.Router) {
			r.Get("/", h.ListStores)
			r.Post("/", h.CreateStore)
			r.Get("/next-number", h.NextStoreNumber)
			r.Get("/center", h.GetCenter)
			r.Put("/{id}", h.UpdateStore)
			r.Delete("/{id}", h.DeleteStore)
		})

		r.Route("/trips", func(r chi.Router) {
			r.Get("/", h.ListTrips)
			r.Post("/", h.CreateTrip)
			r.Delete("/{id}", h.DeleteTrip)
			r.Put("/{id}/status", h.SetTripStatus)
			r.Get("/{id}/items", h.ListLineItems)
			r.Post("/{id}/items", h.AddLineItem)
			r.Put("/{id}/items/returned", h.BulkUpdateReturned)
			r.Post("/{id}/returns/all", h.RegisterAllReturns)
		})

		r.Route("/items", func(r chi.Router) {
			r.Delete("/{id}", h.RemoveLineItem)
			r.Post("/{id}/returns", h.RegisterReturn)
		})

		r.Route("/returns", func(r chi.Router) {
			r.Get("/", h.ListReturnEvents)
			r.Put("/{id}", h.EditReturnEvent)
			r.Delete("/{id}", h.DeleteReturnEvent)
		})

		r.Route("/depot", func(r chi.Router) {
			r.Get("/totals", h.GetTotals)
			r.Get("/centers", h.SummaryByCenter)

			r.Route("/dispatches", func(r chi.Router) {
				r.Get("/", h.ListDispatches)
				r.Post("/", h.CreateDispatch)
				r.Put("/{id}", h.UpdateDispatch)
				r.Delete("/{id}", h.DeleteDispatch)
				r.Post("/{id}/returns", h.RegisterDispatchReturn)

				// Operator overrides
				r.Post("/{id}/revert", h.RevertDispatch)
				r.Delete("/{id}/force", h.ForceDeleteDispatch)
			})

			r.Get("/destinations", h.PendingByDestination)
			r.Post("/destinations/returns", h.RegisterDestinationReturn)

			r.Route("/shipments", func(r chi.Router) {
				r.Get("/", h.ListShipments)
				r.Post("/", h.CreateShipment)
				r.Put("/{id}", h.UpdateShipment)
				r.Delete("/{id}", h.DeleteShipment)
			})
		})

		r.Route("/dashboard", func(r chi.Router) {
			r.Get("/", h.Dashboard)
			r.Get("/stores", h.PendingByStore)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
