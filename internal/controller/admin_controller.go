// internal/controller/admin_controller.go
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/unclebandit/prospect-pipeline/internal/errors"
	"github.com/unclebandit/prospect-pipeline/internal/logger"
	"github.com/unclebandit/prospect-pipeline/internal/model"
)

// Suppressor adds phones to the opt-out list.
type Suppressor interface {
	Suppress(ctx context.Context, phone string, source model.OptOutSource) (bool, error)
}

// EventReader exposes the audit log tail.
type EventReader interface {
	Latest(ctx context.Context) (*model.Event, error)
}

type AdminController struct {
	OptOuts  Suppressor
	Events   EventReader
	Logger   *logger.Logger
	validate *validator.Validate
}

func NewAdminController(optOuts Suppressor, events EventReader, logg *logger.Logger) *AdminController {
	if logg == nil {
		logg = logger.Nop()
	}
	return &AdminController{OptOuts: optOuts, Events: events, Logger: logg, validate: validator.New()}
}

type optOutRequest struct {
	Phone string `json:"phone" validate:"required,max=64"`
}

// OptOut handles POST /optout with a JSON body or a form field named phone.
func (c *AdminController) OptOut(w http.ResponseWriter, r *http.Request) {
	var body optOutRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form")
			return
		}
		body.Phone = r.FormValue("phone")
	}
	if err := c.validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, "phone is required")
		return
	}

	ctx := r.Context()
	created, err := c.OptOuts.Suppress(ctx, body.Phone, model.OptOutAdmin)
	if err != nil {
		var vErr *appErrors.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		c.Logger.Error(ctx, "admin opt-out failed", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "created": created})
}

// Health reports liveness plus the most recent audit event.
func (c *AdminController) Health(w http.ResponseWriter, r *http.Request) {
	last, err := c.Events.Latest(r.Context())
	if err != nil {
		c.Logger.Error(r.Context(), "health check failed", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "last_event": last})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
