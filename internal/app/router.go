package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/halftone-erp/halftone/internal/dispatch"
	"github.com/halftone-erp/halftone/internal/ledger"
	"github.com/halftone-erp/halftone/internal/ledger/periods"
	"github.com/halftone-erp/halftone/internal/observability"
	"github.com/halftone-erp/halftone/internal/reports"
	"github.com/halftone-erp/halftone/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	Metrics         *observability.Metrics
	LedgerHandler   *ledger.Handler
	PeriodsHandler  *periods.Handler
	DispatchHandler *dispatch.Handler
	ReportsHandler  *reports.Handler
	JobHandler      *jobs.Handler
}

// NewRouter constructs the chi.Router with Halftone defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	r.Use(params.Metrics.Middleware)

	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/ledger", func(lr chi.Router) {
			params.LedgerHandler.MountRoutes(lr)
			params.PeriodsHandler.MountRoutes(lr)
		})
		api.Route("/dispatch", func(dr chi.Router) {
			params.DispatchHandler.MountRoutes(dr)
		})
		api.Route("/reports", func(rr chi.Router) {
			// Aggregations hit every posted line; limit per client.
			rr.Use(httprate.Limit(30, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
			params.ReportsHandler.MountRoutes(rr)
		})
		if params.JobHandler != nil {
			api.Route("/jobs", func(jr chi.Router) {
				params.JobHandler.MountRoutes(jr)
			})
		}
	})

	return r
}
