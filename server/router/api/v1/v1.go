package v1

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/rhythm/ai/learning"
	"github.com/hrygo/rhythm/ai/suggestion"
	"github.com/hrygo/rhythm/internal/profile"
	"github.com/hrygo/rhythm/server/auth"
	"github.com/hrygo/rhythm/store"
)

// APIV1Service serves the /api/v1 routes.
type APIV1Service struct {
	Profile       *profile.Profile
	Store         *store.Store
	Suggestions   *suggestion.Service
	Scheduler     *learning.Scheduler
	authenticator *auth.Authenticator
	generateLimit *userLimiter
}

// NewAPIV1Service wires the suggestion service and learning scheduler into
// HTTP handlers.
func NewAPIV1Service(profile *profile.Profile, store *store.Store, suggestions *suggestion.Service, scheduler *learning.Scheduler) *APIV1Service {
	return &APIV1Service{
		Profile:       profile,
		Store:         store,
		Suggestions:   suggestions,
		Scheduler:     scheduler,
		authenticator: auth.NewAuthenticator(store, profile.Secret),
		generateLimit: newUserLimiter(profile.GenerateRatePerMinute, profile.GenerateBurst, limiterCapacity),
	}
}

// RegisterRoutes mounts the authenticated API on g.
func (s *APIV1Service) RegisterRoutes(g *echo.Group) {
	g.Use(s.authMiddleware)

	suggestions := g.Group("/suggestions")
	suggestions.GET("", s.ListSuggestions)
	suggestions.POST("/apply", s.ApplySuggestion)
	suggestions.POST("/dismiss/:id", s.DismissSuggestion)
	suggestions.POST("/generate", s.GenerateSuggestions)
	suggestions.GET("/learning-status", s.GetLearningStatus)
	suggestions.POST("/start-learning", s.StartLearning)
	suggestions.POST("/stop-learning", s.StopLearning)

	g.GET("/insights", s.ListInsights)
}

// authMiddleware resolves the bearer token and stores the user id in the
// request context.
func (s *APIV1Service) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		claims, err := s.authenticator.Authenticate(req.Context(), req.Header.Get(echo.HeaderAuthorization))
		if err != nil {
			if !errors.Is(err, auth.ErrMissingToken) && !errors.Is(err, auth.ErrInvalidToken) {
				slog.Error("failed to authenticate request", "error", err)
				return echo.NewHTTPError(http.StatusInternalServerError, "Authentication failed")
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
		}
		c.SetRequest(req.WithContext(auth.WithUserID(req.Context(), claims.UserID)))
		return next(c)
	}
}

func currentUserID(c echo.Context) int32 {
	return auth.GetUserID(c.Request().Context())
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// HTTPErrorHandler renders errors as ErrorResponse. Errors that are not
// *echo.HTTPError become a 500 without leaking their text.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code, message := http.StatusInternalServerError, "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(code)
		}
	} else {
		slog.Error("unhandled request error", "path", c.Path(), "error", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, ErrorResponse{Success: false, Message: message})
	}
	if err != nil {
		slog.Warn("failed to write error response", "error", err)
	}
}
