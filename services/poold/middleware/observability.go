package middleware

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"creditpool/observability"
)

const RequestIDHeader = "X-Request-ID"

// Observability records request metrics and spans and, optionally, access
// logs.
type Observability struct {
	logger      *slog.Logger
	tracer      trace.Tracer
	logRequests bool
}

func NewObservability(service string, logRequests bool, logger *slog.Logger) *Observability {
	if logger == nil {
		logger = slog.Default()
	}
	if service == "" {
		service = "poold"
	}
	return &Observability{logger: logger, tracer: otel.Tracer(service), logRequests: logRequests}
}

func (o *Observability) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)
		ctx, span := o.tracer.Start(r.Context(), r.Method+" "+r.URL.Path, trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("request.id", requestID),
		))
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r.WithContext(ctx))

		route := r.URL.Path
		if rctx := chi.RouteContext(ctx); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		span.SetAttributes(attribute.String("http.route", route), attribute.Int("http.status_code", recorder.status))
		span.End()
		duration := time.Since(start)
		observability.API().Observe(route, r.Method, recorder.status, duration)
		if o.logRequests {
			o.logger.Info("request",
				"method", r.Method,
				"route", route,
				"status", recorder.status,
				"duration_ms", float64(duration.Microseconds())/1000,
				"request_id", requestID)
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the recorder.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}
