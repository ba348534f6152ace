package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"analysisd/internal/analysis"
	"analysisd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Analyze(prompt string, sink analysis.Sink) (analysis.Ticket, error)
	Status() types.StatusResponse
	Ready() bool
	Initializing() bool
}

func requestID(r *http.Request) string { return middleware.GetReqID(r.Context()) }

// NewMux builds the HTTP router for svc.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			MaxAge:         300,
		}))
	}

	// @Summary      Analysis status
	// @Description  Engine lifecycle, supervisor state and counters.
	// @Tags         ops
	// @Produce      json
	// @Success      200  {object}  types.StatusResponse
	// @Router       /status [get]
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Status()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
	})

	// @Summary      Analyze text
	// @Description  Streams NDJSON notifications: zero or more partial lines, then exactly one result, no_result or error line.
	// @Tags         analysis
	// @Accept       json
	// @Produce      application/x-ndjson
	// @Param        body  body      types.AnalyzeRequest  true  "Text to analyze"
	// @Success      200   {object}  types.Notification
	// @Failure      400   {object}  types.ErrorResponse
	// @Failure      415   {object}  types.ErrorResponse
	// @Failure      429   {object}  types.ErrorResponse
	// @Failure      503   {object}  types.ErrorResponse
	// @Router       /analyze [post]
	r.Post("/analyze", func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.AnalyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		lvl := requestLogLevel(r)
		start := time.Now()
		stream := analysis.NewStream(partialBuffer)
		ticket, err := svc.Analyze(req.Prompt, stream)
		if err != nil {
			status := admissionStatus(err)
			if status == http.StatusTooManyRequests {
				IncrementBackpressure("busy")
			}
			writeJSONError(w, status, err.Error())
			logEvent(r, lvl, "analyze rejected", map[string]any{"status": status}, err)
			return
		}
		logEvent(r, lvl, "analyze start", map[string]any{"request_id": ticket.ID, "structured": ticket.Structured}, nil)

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("X-Analysis-ID", ticket.ID)
		w.WriteHeader(http.StatusOK)
		var flush func()
		if f, ok := w.(http.Flusher); ok {
			flush = f.Flush
		}
		writer := io.Writer(w)
		if lvl >= LevelDebug {
			writer = io.MultiWriter(w, &loggingLineWriter{})
		}
		enc := json.NewEncoder(writer)
		emit := func(n types.Notification) error {
			if err := enc.Encode(n); err != nil {
				return err
			}
			countStreamLine("ndjson", string(n.Kind))
			if flush != nil {
				flush()
			}
			return nil
		}

		ctx, cancel := drainContext(r)
		defer cancel()
		term, err := stream.Drain(ctx, emit)
		if err == nil {
			err = emit(term)
		}
		fields := map[string]any{"request_id": ticket.ID, "kind": string(term.Kind), "reason": term.Reason, "dur": time.Since(start).String()}
		if dropped := stream.Dropped(); dropped > 0 {
			fields["partials_dropped"] = dropped
		}
		logEvent(r, lvl, "analyze end", fields, err)
	})

	r.Get("/ws", wsHandler(svc))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case svc.Ready():
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
		case svc.Initializing():
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("initializing"))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready"))
		}
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}
