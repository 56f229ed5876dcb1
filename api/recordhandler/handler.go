package recordhandler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/ruteri/device-onboarding-backend/api"
	"github.com/ruteri/device-onboarding-backend/interfaces"
	"github.com/ruteri/device-onboarding-backend/metrics"
	"github.com/ruteri/device-onboarding-backend/onboarding"
)

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

// Processor onboards records. It is implemented by *onboarding.Processor.
type Processor interface {
	Process(ctx context.Context, loc interfaces.RecordLocation) (*onboarding.Result, error)
	ProcessAll(ctx context.Context, locs []interfaces.RecordLocation) []*onboarding.Result
}

// Handler processes record notifications.
type Handler struct {
	processor Processor
	metrics   *metrics.Metrics
	validate  *validator.Validate
	log       *slog.Logger
}

// NewHandler creates a handler. m may be nil.
func NewHandler(processor Processor, m *metrics.Metrics, log *slog.Logger) *Handler {
	return &Handler{
		processor: processor,
		metrics:   m,
		validate:  validator.New(),
		log:       log,
	}
}

// RegisterRoutes configures the HTTP router with the record endpoints:
//   - POST /api/v1/records/events - S3 event notification
//   - POST /api/v1/records/onboard - single record
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/v1/records/events", h.HandleEvents)
	r.Post("/api/v1/records/onboard", h.HandleOnboard)
}

// HandleEvents onboards every object-created record of an S3 event
// notification. Other event kinds, including the s3:TestEvent sent when a
// notification is configured, are ignored.
//
// Response: JSON-encoded api.EventsResponse
//
// Status codes:
//   - 200 OK: every record completed, or there was nothing to do
//   - 400 Bad Request: body is not an event notification or names an invalid location
//   - 422 Unprocessable Entity: some record failed validation and none can be retried
//   - 503 Service Unavailable: some record failed on a remote call and should be redelivered
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.log.Error("Failed to read request body", "err", err)
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var notification api.EventNotification
	if err := json.Unmarshal(body, &notification); err != nil {
		h.log.Warn("Invalid event notification", "err", err)
		http.Error(w, "Invalid event notification", http.StatusBadRequest)
		return
	}

	var locs []interfaces.RecordLocation
	for _, record := range notification.Records {
		if record.EventName != "" && !strings.HasPrefix(record.EventName, "ObjectCreated:") {
			h.log.Debug("Ignoring event", slog.String("event", record.EventName))
			continue
		}

		loc, err := record.Location()
		if err != nil {
			h.log.Warn("Invalid record location in event", "err", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		locs = append(locs, loc)
	}
	h.metrics.RecordEvents(len(locs))

	results := h.processor.ProcessAll(r.Context(), locs)

	response := api.EventsResponse{Records: make([]api.RecordResponse, 0, len(results))}
	for _, res := range results {
		response.Records = append(response.Records, api.NewRecordResponse(res))
	}

	h.writeJSON(w, statusFor(results), response)
}

// HandleOnboard onboards a single record.
//
// Request body: JSON-encoded api.OnboardRequest
//
// Response: JSON-encoded api.RecordResponse
//
// Status codes:
//   - 200 OK: the record completed
//   - 400 Bad Request: malformed request
//   - 404 Not Found: no record at the location
//   - 422 Unprocessable Entity: the record failed validation
//   - 503 Service Unavailable: a remote call failed, retry later
func (h *Handler) HandleOnboard(w http.ResponseWriter, r *http.Request) {
	var req api.OnboardRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.metrics.RecordEvents(1)

	res, _ := h.processor.Process(r.Context(), req.Location())

	status := statusFor([]*onboarding.Result{res})
	if errors.Is(res.Err, interfaces.ErrRecordNotFound) {
		status = http.StatusNotFound
	}
	h.writeJSON(w, status, api.NewRecordResponse(res))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func statusFor(results []*onboarding.Result) int {
	status := http.StatusOK
	for _, res := range results {
		switch {
		case res.Completed():
		case res.Retryable():
			return http.StatusServiceUnavailable
		default:
			status = http.StatusUnprocessableEntity
		}
	}
	return status
}
