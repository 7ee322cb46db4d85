package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gigbridge/backend/internal/gateway"
	"github.com/gigbridge/backend/internal/wallet"
)

// CallbackProcessor is the slice of the gateway service the handler needs.
type CallbackProcessor interface {
	ProcessCallback(ctx context.Context, gatewayName string, payload json.RawMessage, signature string) (*wallet.MutationResult, error)
}

// GatewayHandler serves POST /api/v1/gateway/{name}/callback. The endpoint
// sits outside JWT auth: gateways prove themselves with an HMAC signature
// over the raw body, carried in X-Gateway-Signature. A 2xx tells the
// gateway to stop redelivering.
type GatewayHandler struct {
	Gateway CallbackProcessor
	Logger  *slog.Logger
}

func (h *GatewayHandler) Callback(w http.ResponseWriter, r *http.Request) {
	name, ok := extractGatewayName(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown callback path")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	res, err := h.Gateway.ProcessCallback(r.Context(), name, body, r.Header.Get("X-Gateway-Signature"))
	switch {
	case err == nil:
		status := http.StatusCreated
		if res.Replayed {
			status = http.StatusOK
		}
		writeJSON(w, status, map[string]string{"result": "accepted"})
	case errors.Is(err, gateway.ErrBadSignature):
		writeError(w, http.StatusUnauthorized, "invalid signature")
	case errors.Is(err, gateway.ErrIgnored):
		// Valid delivery, nothing credited. 200 stops redelivery.
		writeJSON(w, http.StatusOK, map[string]string{"result": "ignored"})
	case errors.Is(err, gateway.ErrValidation), errors.Is(err, gateway.ErrCurrencyMismatch):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.Logger.Error("gateway callback failed", "gateway", name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
