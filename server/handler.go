package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-provision/core"
)

const defaultMaxBodyBytes = 1 << 20

// DeliveryProcessor is the admission pipeline seam.
type DeliveryProcessor interface {
	Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error)
}

// WebhookHandler adapts HTTP deliveries to the pipeline: it snapshots the raw
// body before any decoding so signature verification sees the exact bytes the
// sender signed.
type WebhookHandler struct {
	ProviderID   string
	Processor    DeliveryProcessor
	Logger       core.Logger
	MaxBodyBytes int64
	Now          func() time.Time

	// Annotate attaches provider-specific request metadata, such as the
	// originating shop domain, before the delivery enters the pipeline.
	Annotate func(req core.InboundRequest) map[string]any
}

func NewWebhookHandler(providerID string, processor DeliveryProcessor, logger core.Logger) *WebhookHandler {
	return &WebhookHandler{
		ProviderID:   strings.TrimSpace(providerID),
		Processor:    processor,
		Logger:       logger,
		MaxBodyBytes: defaultMaxBodyBytes,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Processor == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": map[string]any{"message": "webhook handler is not configured", "text_code": core.ErrorInternal},
		})
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{
			"error": map[string]any{"message": "method not allowed", "text_code": core.ErrorBadInput},
		})
		return
	}

	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]any{"message": "read request body", "text_code": core.ErrorBadInput},
		})
		return
	}
	if int64(len(body)) > limit {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{
			"error": map[string]any{"message": "request body too large", "text_code": core.ErrorBadInput},
		})
		return
	}

	req := core.InboundRequest{
		ProviderID: h.ProviderID,
		Headers:    flattenHeaders(r.Header),
		Body:       body,
		ReceivedAt: h.now(),
	}
	if h.Annotate != nil {
		req.Metadata = h.Annotate(req)
	}

	result, err := h.Processor.Process(r.Context(), req)
	if err != nil {
		status := result.StatusCode
		if status == 0 {
			status = core.HTTPStatus(err)
		}
		mapped := core.MapError(err)
		h.logError(r, "webhook delivery rejected", "status", status, "error", mapped.Error())
		writeJSON(w, status, map[string]any{
			"error": map[string]any{
				"message":   mapped.Message,
				"text_code": mapped.TextCode,
			},
		})
		return
	}

	status := result.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	response := map[string]any{"accepted": result.Accepted}
	if len(result.Metadata) > 0 {
		response["metadata"] = result.Metadata
	}
	writeJSON(w, status, response)
}

func (h *WebhookHandler) now() time.Time {
	if h != nil && h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func (h *WebhookHandler) logError(r *http.Request, message string, args ...any) {
	if h == nil || h.Logger == nil {
		return
	}
	logger := h.Logger
	if r != nil {
		logger = logger.WithContext(r.Context())
	}
	logger.Error(message, args...)
}

func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			continue
		}
		flat[key] = values[0]
	}
	return flat
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
