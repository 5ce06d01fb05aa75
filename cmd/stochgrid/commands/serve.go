package commands

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/stochgrid/pkg/observability"
	"github.com/Sumatoshi-tech/stochgrid/pkg/plan"
	"github.com/Sumatoshi-tech/stochgrid/pkg/scenario"
	"github.com/Sumatoshi-tech/stochgrid/pkg/treecache"
	"github.com/Sumatoshi-tech/stochgrid/pkg/weighting"
)

const serverIdleTimeout = 120 * time.Second

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error    string `json:"error"`
	Category string `json:"category,omitempty"`
}

// planServer answers plan requests from a shared builder and cache.
type planServer struct {
	builder *plan.Builder
	cache   *treecache.Cache[*plan.Plan]
	limits  scenario.Limits
	maxBody int64
	logger  *slog.Logger
}

// NewServeCommand creates the serve subcommand.
func NewServeCommand(global *GlobalOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve plans over an HTTP JSON API",
		Long: `Serve plans over HTTP.

  POST /v1/plans                 build a plan from a JSON request, ?sections=a,b
  GET  /v1/plans/{key}           fetch a cached plan by key
  GET  /v1/schema/probabilities  probability table JSON schema
  GET  /healthz                  liveness
  GET  /metrics                  Prometheus metrics (telemetry.prometheus)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := openSession(global, observability.ModeServe)
			if err != nil {
				return err
			}
			defer sess.close(cmd.Context())

			if cmd.Flags().Changed("addr") {
				sess.cfg.Server.Addr = addr
			}

			return runServe(cmd.Context(), sess)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")

	return cmd
}

func runServe(ctx context.Context, sess *session) error {
	builder, cache, err := sess.builder(true)
	if err != nil {
		return err
	}

	red, redErr := observability.NewREDMetrics(sess.providers.Meter)
	if redErr != nil {
		return redErr
	}

	srv := &planServer{
		builder: builder,
		cache:   cache,
		limits:  sess.cfg.Limits.Scenario(),
		maxBody: sess.cfg.MaxBodyBytes(),
		logger:  sess.logger,
	}

	server := &http.Server{
		Addr:         sess.cfg.Server.Addr,
		Handler:      newServerMux(srv, sess.providers.Tracer, red, sess.providers.MetricsHandler),
		ReadTimeout:  sess.cfg.Server.ReadTimeout,
		WriteTimeout: sess.cfg.Server.WriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)

	go func() {
		sess.logger.Info("stochgrid server starting", "addr", server.Addr)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	case <-ctx.Done():
	}

	sess.logger.Info("stochgrid server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sess.cfg.Telemetry.ShutdownTimeout)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

// newServerMux creates the HTTP mux with all API routes wrapped in tracing middleware.
func newServerMux(srv *planServer, tracer trace.Tracer, red *observability.REDMetrics, metrics http.Handler) http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/plans", srv.handleCreatePlan)
	api.HandleFunc("GET /v1/plans/{key}", srv.handleGetPlan)
	api.HandleFunc("GET /v1/schema/probabilities", handleSchema)
	api.HandleFunc("GET /healthz", handleHealth)

	mux := http.NewServeMux()
	mux.Handle("/", observability.HTTPMiddleware(tracer, red, api))

	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	return mux
}

// writeJSON encodes the given value as JSON and writes it to the response writer.
func writeJSON(ctx context.Context, responseWriter http.ResponseWriter, status int, value any) {
	responseWriter.Header().Set("Content-Type", "application/json")
	responseWriter.WriteHeader(status)

	encodeErr := json.NewEncoder(responseWriter).Encode(value)
	if encodeErr != nil {
		slog.Default().ErrorContext(ctx, "failed to encode JSON response", "error", encodeErr)
	}
}

func statusFor(category string) int {
	switch category {
	case plan.CategoryConfiguration, plan.CategoryProbability:
		return http.StatusBadRequest
	case plan.CategoryResource:
		return http.StatusUnprocessableEntity
	case plan.CategoryCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *planServer) handleCreatePlan(responseWriter http.ResponseWriter, request *http.Request) {
	ctx := request.Context()

	sections, sectionErr := plan.ParseSections(request.URL.Query().Get("sections"))
	if sectionErr != nil {
		writeJSON(ctx, responseWriter, http.StatusBadRequest,
			ErrorResponse{Error: sectionErr.Error(), Category: plan.CategoryConfiguration})

		return
	}

	body := request.Body
	if s.maxBody > 0 {
		body = http.MaxBytesReader(responseWriter, request.Body, s.maxBody)
	}

	var req plan.Request

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	decodeErr := dec.Decode(&req)
	if decodeErr != nil {
		status := http.StatusBadRequest

		var tooLarge *http.MaxBytesError
		if errors.As(decodeErr, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}

		writeJSON(ctx, responseWriter, status, ErrorResponse{Error: "invalid request body: " + decodeErr.Error()})

		return
	}

	req.Limits = s.limits

	p, err := s.builder.Build(ctx, req)
	if err != nil {
		category := plan.Category(err)
		writeJSON(ctx, responseWriter, statusFor(category), ErrorResponse{Error: err.Error(), Category: category})

		return
	}

	responseWriter.Header().Set("X-Plan-Key", p.Key())
	writeDocument(ctx, responseWriter, p, sections)
}

func (s *planServer) handleGetPlan(responseWriter http.ResponseWriter, request *http.Request) {
	ctx := request.Context()
	key := request.PathValue("key")

	sections, sectionErr := plan.ParseSections(request.URL.Query().Get("sections"))
	if sectionErr != nil {
		writeJSON(ctx, responseWriter, http.StatusBadRequest,
			ErrorResponse{Error: sectionErr.Error(), Category: plan.CategoryConfiguration})

		return
	}

	if !plan.IsKey(key) {
		writeJSON(ctx, responseWriter, http.StatusNotFound, ErrorResponse{Error: "no cached plan " + key})

		return
	}

	cached, ok := s.cache.Get(key)
	if !ok {
		writeJSON(ctx, responseWriter, http.StatusNotFound, ErrorResponse{Error: "no cached plan " + key})

		return
	}

	p, limitErr := cached.WithLimits(s.limits)
	if limitErr != nil {
		writeJSON(ctx, responseWriter, http.StatusUnprocessableEntity,
			ErrorResponse{Error: limitErr.Error(), Category: plan.Category(limitErr)})

		return
	}

	writeDocument(ctx, responseWriter, p, sections)
}

func writeDocument(ctx context.Context, responseWriter http.ResponseWriter, p *plan.Plan, sections []plan.Section) {
	doc, err := p.Document(sections...)
	if err != nil {
		category := plan.Category(err)
		writeJSON(ctx, responseWriter, statusFor(category), ErrorResponse{Error: err.Error(), Category: category})

		return
	}

	writeJSON(ctx, responseWriter, http.StatusOK, doc)
}

func handleSchema(responseWriter http.ResponseWriter, request *http.Request) {
	responseWriter.Header().Set("Content-Type", "application/schema+json")

	_, err := responseWriter.Write(weighting.Schema())
	if err != nil {
		slog.Default().ErrorContext(request.Context(), "failed to write schema", "error", err)
	}
}

func handleHealth(responseWriter http.ResponseWriter, request *http.Request) {
	writeJSON(request.Context(), responseWriter, http.StatusOK, map[string]string{"status": "ok"})
}
