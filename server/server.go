// Package server hosts the HTTP API and owns the learning scheduler.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/hrygo/rhythm/ai/habit"
	"github.com/hrygo/rhythm/ai/learning"
	"github.com/hrygo/rhythm/ai/metrics"
	"github.com/hrygo/rhythm/ai/suggestion"
	"github.com/hrygo/rhythm/internal/logging"
	"github.com/hrygo/rhythm/internal/profile"
	"github.com/hrygo/rhythm/internal/version"
	apiv1 "github.com/hrygo/rhythm/server/router/api/v1"
	"github.com/hrygo/rhythm/store"
)

const shutdownTimeout = 10 * time.Second

// Server is the rhythm HTTP server.
type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	scheduler  *learning.Scheduler
	exporter   *metrics.PrometheusExporter
}

// NewServer builds the learning pipeline and the HTTP routes on top of store.
func NewServer(_ context.Context, profile *profile.Profile, store *store.Store) (*Server, error) {
	s := &Server{Profile: profile, Store: store}
	if profile.MetricsEnabled {
		s.exporter = metrics.NewPrometheusExporter(metrics.DefaultConfig())
	}

	suggestionConfig := suggestion.Config{}
	learningConfig := learning.Config{
		Interval:     profile.LearningInterval,
		CycleTimeout: profile.CycleTimeout,
	}
	if s.exporter != nil {
		suggestionConfig.Recorder = s.exporter
		learningConfig.Recorder = s.exporter
	}

	analyzer := habit.NewAnalyzer(store, habit.Config{})
	generator := suggestion.NewGenerator(store, suggestionConfig)
	suggestions := suggestion.NewService(store, generator, suggestionConfig)
	s.scheduler = learning.NewScheduler(store, analyzer, generator, learningConfig)

	echoServer := echo.New()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.HTTPErrorHandler = apiv1.HTTPErrorHandler
	echoServer.Use(middleware.Recover())
	echoServer.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	echoServer.Use(s.requestLogger)
	echoServer.Use(middleware.BodyLimit("1M"))
	s.echoServer = echoServer

	echoServer.GET("/healthz", s.healthz)
	if s.exporter != nil {
		echoServer.GET("/metrics", echo.WrapHandler(s.exporter.Handler()))
	}

	apiV1Service := apiv1.NewAPIV1Service(profile, store, suggestions, s.scheduler)
	apiV1Service.RegisterRoutes(echoServer.Group("/api/v1"))

	return s, nil
}

// Start listens on the profile address and serves in the background. When
// enabled, learning is resumed for users that had it switched on.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}
	s.echoServer.Listener = listener

	if s.Profile.ResumeLearning {
		go func() {
			resumed, err := s.scheduler.Resume(ctx)
			if err != nil {
				slog.Error("failed to resume learning", "resumed", resumed, "error", err)
			}
		}()
	}

	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start echo server", "error", err)
		}
	}()
	slog.Info("server started", "address", listener.Addr().String())
	return nil
}

// Shutdown stops learning, drains HTTP requests and closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	slog.Info("server shutting down")
	s.scheduler.Close()
	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}
	slog.Info("server stopped properly")
}

// ServeHTTP lets the server be driven without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echoServer.ServeHTTP(w, r)
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status  string       `json:"status"`
	Mode    string       `json:"mode"`
	Driver  string       `json:"driver"`
	Version version.Info `json:"version"`
}

func (s *Server) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, &HealthResponse{
		Status:  "ok",
		Mode:    s.Profile.Mode,
		Driver:  s.Profile.Driver,
		Version: version.GetInfo(s.Profile.Mode),
	})
}

// requestLogger emits one log line per request and records request metrics.
// Handler errors are rendered here so the logged status is final.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()
		requestID := c.Response().Header().Get(echo.HeaderXRequestID)
		logger := slog.Default().With("request_id", requestID)
		c.SetRequest(req.WithContext(logging.ToContext(req.Context(), logger)))

		if err := next(c); err != nil {
			c.Error(err)
		}
		latency := time.Since(start)
		status := c.Response().Status

		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(req.Context(), level, "http request",
			"method", req.Method,
			"uri", req.RequestURI,
			"status", status,
			"latency", latency,
		)
		if s.exporter != nil {
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			s.exporter.RecordHTTPRequest(req.Method, route, status, latency)
		}
		return nil
	}
}
