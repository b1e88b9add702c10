package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/go-push-engine/internal/application/broadcast"
	"github.com/go-push-engine/internal/application/dispatch"
	"github.com/go-push-engine/internal/application/notification"
	"github.com/go-push-engine/internal/application/registry"
	"github.com/go-push-engine/internal/application/scheduler"
	"github.com/go-push-engine/internal/application/template"
	"github.com/go-push-engine/internal/config"
	"github.com/go-push-engine/internal/domain"
	"github.com/go-push-engine/internal/transport/http/handler"
	appmiddleware "github.com/go-push-engine/internal/transport/http/middleware"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
	}

	// 10 requests/second, burst of 20, applied to dispatch-triggering endpoints.
	dispatchRL := appmiddleware.NewRateLimiter(rate.Limit(10), 20)

	registrySvc := registry.NewService(deps.DeviceTokenRepo, tokenCacheOrNil(deps), deps.Logger)
	notifSvc := notification.NewService(deps.NotificationRepo, deps.Logger)
	dispatchSvc := dispatch.NewService(deps.NotificationRepo, registrySvc, deps.Adapters,
		archiveOrNil(deps), cfg.ProviderTimeout, deps.Logger)
	broadcastSvc := broadcast.NewService(deps.DeviceTokenRepo, notifSvc, dispatchSvc,
		cfg.BroadcastBatchSize, deps.Logger)
	schedulerSvc := scheduler.NewService(deps.NotificationRepo, dispatchSvc, deps.Logger)
	templates := template.NewResolver(cfg.DefaultLocale)

	healthH := handler.NewHealthHandler()
	notifH := handler.NewNotificationHandler(notifSvc, dispatchSvc, broadcastSvc, templates, schedulerSvc)
	tokenH := handler.NewDeviceTokenHandler(registrySvc)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check", healthH.Ping)

		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.With(dispatchRL.Limit).Post("/notifications", notifH.Create)
			r.With(dispatchRL.Limit).Post("/notifications/template", notifH.CreateFromTemplate)
			r.Post("/notifications/schedule", notifH.Schedule)
			r.Get("/notifications", notifH.List)
			r.Get("/notifications/{id}", notifH.Get)
			r.Post("/notifications/{id}/read", notifH.MarkRead)
			r.Post("/notifications/{id}/click", notifH.Click)
			r.Post("/notifications/{id}/delivered", notifH.MarkDelivered)
			r.Delete("/notifications/{id}", notifH.Cancel)

			r.Put("/device-tokens", tokenH.Register)
			r.Delete("/device-tokens/{deviceId}", tokenH.Deactivate)
			r.Put("/device-tokens/{deviceId}/preferences", tokenH.UpdatePreferences)

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin, domain.RoleService))

				r.With(dispatchRL.Limit).Post("/notifications/broadcast", notifH.Broadcast)
			})
		})
	})

	return r
}

// tokenCacheOrNil avoids handing services a typed-nil interface when redis
// is not configured.
func tokenCacheOrNil(deps *Deps) registry.Cache {
	if deps.TokenCache == nil {
		return nil
	}
	return deps.TokenCache
}

func archiveOrNil(deps *Deps) dispatch.Archiver {
	if deps.ReportArchive == nil {
		return nil
	}
	return deps.ReportArchive
}
