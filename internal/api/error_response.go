package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/searchmux/searchmux/internal/metrics"
	"github.com/searchmux/searchmux/internal/observability"
	gwerrors "github.com/searchmux/searchmux/pkg/errors"
	"github.com/searchmux/searchmux/pkg/types"
)

// errorEnvelope is the error body for rejected requests. Engine
// failures instead keep the full response shape, and timeouts never
// reach here at all; they surface as 200 partial responses from the
// dispatcher.
type errorEnvelope struct {
	Error types.ErrorInfo `json:"error"`
}

// writeError is the single point that converts an error into a status
// code and envelope.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, endpoint, tenantID string, err error) {
	ge := gwerrors.AsGatewayError(err)
	status := ge.HTTPStatusCode()

	metrics.RequestErrors.WithLabelValues(endpoint, string(ge.Kind)).Inc()
	metrics.RequestsTotal.WithLabelValues(endpoint, tenantID, "", httpStatusLabel(status)).Inc()

	log := observability.RequestLogger(ctx, h.logger).With(
		"endpoint", endpoint,
		"tenant", tenantID,
		"kind", string(ge.Kind),
	)
	if ge.Kind == gwerrors.KindEngineError {
		log.Error("request failed", "engine", ge.Engine, "error", ge.Message)
		// Engine failures keep the uniform response shape: empty hits,
		// engine "error", and the error block alongside.
		writeJSON(ctx, w, h.logger, status, types.Response{
			Hits:        []types.Hit{},
			Total:       types.Total{Value: 0, Relation: types.RelationGTE},
			Performance: types.Performance{Engine: types.EngineError},
			Error:       &types.ErrorInfo{Code: ge.Code, Message: ge.Message},
		})
		return
	}

	log.Warn("request rejected", "error", ge.Message)
	writeJSON(ctx, w, h.logger, status, errorEnvelope{
		Error: types.ErrorInfo{Code: ge.Code, Message: ge.Message},
	})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		observability.RequestLogger(ctx, logger).Warn("response write failed", "error", err)
	}
}

func gwBadRequest(err error) error {
	return gwerrors.NewBadRequest(err.Error())
}

func httpStatusLabel(status int) string {
	return strconv.Itoa(status)
}
