// Package api exposes canvases over HTTP and websockets.
package api

import (
	"log/slog"
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/astromechza/pixelwar/pkg/canvas"
	"github.com/astromechza/pixelwar/pkg/journal"
	"github.com/astromechza/pixelwar/pkg/metrics"
	"github.com/astromechza/pixelwar/pkg/stream"
)

const (
	keyCookie = "key"
	idCookie  = "id"
)

type Options struct {
	Registry *canvas.Registry
	// Journal backs the history endpoints; they answer 404 without it.
	Journal *journal.Journal
	Metrics *metrics.Metrics
	// Gatherer is served on /metrics when set.
	Gatherer prometheus.Gatherer

	CookieSecure bool
	CookieMaxAge int

	Stream stream.Options

	// PreinitRate is the sustained number of tokens per second one remote address may request;
	// 0 disables the limit.
	PreinitRate  float64
	PreinitBurst int
}

type Server struct {
	opts     Options
	registry *canvas.Registry
	tracer   trace.Tracer
	upgrader websocket.Upgrader
	preinit  *addrLimiter
}

func New(opts Options) *Server {
	if opts.CookieMaxAge == 0 {
		opts.CookieMaxAge = 3600
	}
	return &Server{
		opts:     opts,
		registry: opts.Registry,
		tracer:   otel.Tracer("github.com/astromechza/pixelwar/pkg/api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the push channel is read-only and public, like the canvas itself
			CheckOrigin: func(*http.Request) bool { return true },
		},
		preinit: newAddrLimiter(opts.PreinitRate, opts.PreinitBurst),
	}
}

func logRequests(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		m := httpsnoop.CaptureMetrics(handler, writer, request)
		slog.Info("handled", "method", request.Method, "url", request.URL, "duration", m.Duration, "status", m.Code)
	})
}

// Router returns the complete HTTP handler. Every canvas route is also mounted under the
// legacy /api/v1/{name} prefix.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(logRequests)

	r.Methods(http.MethodGet).Path("/canvases").HandlerFunc(s.listCanvases)

	for _, prefix := range []string{"/canvas/{name}", "/api/v1/{name}"} {
		r.Methods(http.MethodGet).Path(prefix + "/preinit").HandlerFunc(s.preinitHandler)
		r.Methods(http.MethodGet).Path(prefix + "/init").HandlerFunc(s.initHandler)
		r.Methods(http.MethodGet).Path(prefix + "/deltas").HandlerFunc(s.deltasHandler)
		r.Methods(http.MethodPost).Path(prefix + "/edit").HandlerFunc(s.editHandler)
		r.Methods(http.MethodPost).Path(prefix + "/update_pixel").HandlerFunc(s.editHandler)
		r.Methods(http.MethodGet).Path(prefix + "/ws").HandlerFunc(s.streamHandler)
		r.Methods(http.MethodGet).Path(prefix + "/image.png").HandlerFunc(s.imageHandler)
		r.Methods(http.MethodGet).Path(prefix + "/export").HandlerFunc(s.exportHandler)
		r.Methods(http.MethodGet).Path(prefix + "/history").HandlerFunc(s.historyHandler)
		r.Methods(http.MethodGet).Path(prefix + "/history.svg").HandlerFunc(s.historyGraphHandler)
	}
	r.Methods(http.MethodGet).Path("/ws/{name}").HandlerFunc(s.streamHandler)

	if s.opts.Gatherer != nil {
		r.Methods(http.MethodGet).Path("/metrics").Handler(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}
