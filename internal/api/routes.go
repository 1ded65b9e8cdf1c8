package api

import (
	"net/http"

	"overture/internal/logging"
	"overture/internal/metrics"
	"overture/internal/supervisor"
	"overture/internal/template"
)

// Options carries the collaborators the routes are wired onto.
type Options struct {
	Supervisor     *supervisor.Supervisor
	Templates      *template.Store
	Metrics        *metrics.Registry
	Logger         *logging.Logger
	AuthToken      string
	AllowedOrigins []string
}

// RegisterRoutes mounts the control surface onto mux.
func RegisterRoutes(mux *http.ServeMux, options Options) {
	rest := &RestHandler{
		Supervisor: options.Supervisor,
		Templates:  options.Templates,
		Metrics:    options.Metrics,
		Logger:     options.Logger,
	}

	wrap := func(handler http.HandlerFunc) http.Handler {
		return loggingMiddleware(options.Logger, handler)
	}

	mux.Handle("/api/status", wrap(restHandler(options.AuthToken, rest.handleStatus)))
	mux.Handle("/api/environments", wrap(restHandler(options.AuthToken, rest.handleEnvironments)))
	mux.Handle("/api/environments/", wrap(restHandler(options.AuthToken, rest.handleEnvironment)))
	mux.Handle("/api/templates", wrap(restHandler(options.AuthToken, rest.handleTemplates)))
	mux.Handle("/api/templates/", wrap(restHandler(options.AuthToken, rest.handleTemplate)))
	mux.Handle("/api/logs", wrap(restHandler(options.AuthToken, rest.handleLogs)))
	mux.Handle("/api/metrics", wrap(restHandler(options.AuthToken, rest.handleMetrics)))

	mux.Handle("/ws/environments/", securityHeadersMiddleware(cacheControlNoStore, &OutputStreamHandler{
		Supervisor:     options.Supervisor,
		Logger:         options.Logger,
		AuthToken:      options.AuthToken,
		AllowedOrigins: options.AllowedOrigins,
	}))
	mux.Handle("/ws/logs", securityHeadersMiddleware(cacheControlNoStore, &LogStreamHandler{
		Logger:         options.Logger,
		AuthToken:      options.AuthToken,
		AllowedOrigins: options.AllowedOrigins,
	}))
}
