package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/unclebandit/prospect-pipeline/internal/controller"
)

// NewRouter mounts the webhook, admin and metrics endpoints.
func NewRouter(webhook *WebhookHandler, admin *controller.AdminController, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/webhook/zapi", webhook.ZAPI)
	r.Post("/optout", admin.OptOut)
	r.Get("/health", admin.Health)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	return r
}
