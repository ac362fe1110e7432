// internal/handler/webhook_handler.go
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/unclebandit/prospect-pipeline/internal/errors"
	"github.com/unclebandit/prospect-pipeline/internal/logger"
	"github.com/unclebandit/prospect-pipeline/internal/service"
)

const maxWebhookBody = 1 << 20

// InboundHandler consumes provider replies.
type InboundHandler interface {
	HandleInbound(ctx context.Context, msg service.InboundMessage) (bool, error)
}

// WebhookHandler receives the messaging provider's inbound callbacks.
type WebhookHandler struct {
	Inbound  InboundHandler
	Logger   *logger.Logger
	validate *validator.Validate
}

func NewWebhookHandler(inbound InboundHandler, logg *logger.Logger) *WebhookHandler {
	if logg == nil {
		logg = logger.Nop()
	}
	return &WebhookHandler{Inbound: inbound, Logger: logg, validate: validator.New()}
}

// ZAPI handles POST /webhook/zapi.
func (h *WebhookHandler) ZAPI(w http.ResponseWriter, r *http.Request) {
	var msg service.InboundMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody)).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(msg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	optedOut, err := h.Inbound.HandleInbound(ctx, msg)
	if err != nil {
		var vErr *appErrors.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		h.Logger.Error(h.Logger.WithField(ctx, "sender", msg.Sender()), "inbound webhook failed", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "opted_out": optedOut})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
