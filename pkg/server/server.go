// Package server exposes the normalization pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/rs/cors"

	"petviz/internal/logger"
	"petviz/pkg/config"
	"petviz/pkg/pipeline"
)

const component = "server"

// Headers carrying processing metrics on a successful upload
const (
	HeaderMethod     = "X-Petviz-Method"
	HeaderVoxels     = "X-Petviz-Voxels"
	HeaderInputMin   = "X-Petviz-Input-Min"
	HeaderInputMax   = "X-Petviz-Input-Max"
	HeaderInputMean  = "X-Petviz-Input-Mean"
	HeaderInputStd   = "X-Petviz-Input-Std"
	HeaderDurationMs = "X-Petviz-Duration-Ms"
)

// Server serves the normalization API.
type Server struct {
	cfg       *config.Config
	processor *pipeline.Processor
	log       logger.Logger

	// maxUpload bounds the request body in bytes
	maxUpload int64
}

// New creates a server. A nil log discards all output.
func New(cfg *config.Config, processor *pipeline.Processor, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop{}
	}
	return &Server{
		cfg:       cfg,
		processor: processor,
		log:       log,
		maxUpload: cfg.Server.MaxUploadMB << 20,
	}
}

// Handler returns the routed API wrapped in CORS and request logging.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	POST := router.Methods("POST").Subrouter()
	GET := router.Methods("GET", "HEAD").Subrouter()

	h := handler{Server: s}

	GET.HandleFunc("/", h.Index).Name("index")
	GET.HandleFunc("/methods", h.Methods).Name("methods")

	POST.HandleFunc("/process-volume", h.ProcessVolume).Name("process-volume")

	router.NotFoundHandler = http.HandlerFunc(h.NotFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(h.MethodNotAllowed)

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.Server.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodHead, http.MethodPost,
			http.MethodPut, http.MethodPatch, http.MethodDelete,
		},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{
			"Content-Disposition",
			HeaderMethod, HeaderVoxels,
			HeaderInputMin, HeaderInputMax, HeaderInputMean, HeaderInputStd,
			HeaderDurationMs,
		},
		AllowCredentials: true,
	})

	standard := alice.New(
		c.Handler,
		// Log all requests
		s.logRequests,
	)

	return standard.Then(router)
}

// Run listens on the configured address until ctx is cancelled, then gives
// in-flight requests the configured timeout to finish.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info(component, "listening", map[string]interface{}{"address": srv.Addr})
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	timeout := time.Duration(s.cfg.Server.ShutdownTimeoutSec) * time.Second
	s.log.Info(component, "shutting down", map[string]interface{}{"timeout": timeout.String()})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down cleanly: %w", err)
	}
	return nil
}
