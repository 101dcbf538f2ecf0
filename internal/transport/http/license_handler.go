// Package http holds the chi handlers for the license lifecycle API plus
// the health and IP utility routes. Handlers translate between HTTP and the
// service layer; all domain errors are rendered as RFC 7807 problem details.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "keygate/internal/errors"
	"keygate/internal/infrastructure"
	"keygate/internal/license"
	"keygate/internal/services"
)

// LicenseHandler handles the license lifecycle HTTP requests.
type LicenseHandler struct {
	service  services.LicenseService
	logger   *slog.Logger
	validate *validator.Validate
}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler(service services.LicenseService, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service:  service,
		logger:   logger.With(slog.String("handler", "license")),
		validate: validator.New(),
	}
}

// ActivationRequest is the trusted peer's activation payload.
type ActivationRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	PlanName string `json:"plan_name" validate:"required"`
	PlanDays int    `json:"plan_days" validate:"required,gt=0"`
}

// ProvisionResponse is returned by POST /provision.
type ProvisionResponse struct {
	LicenseKey string    `json:"license_key"`
	TraceID    string    `json:"trace_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// ActivationResponse is returned by POST /activate.
type ActivationResponse struct {
	UserID    string    `json:"user_id"`
	PlanName  string    `json:"plan_name"`
	ExpiresAt time.Time `json:"expires_at"`
	Extended  bool      `json:"extended"`
	TraceID   string    `json:"trace_id"`
}

// ResetResponse is returned by POST /reset-hwid. ResetsRemaining is null
// for unlimited quotas.
type ResetResponse struct {
	ResetsRemaining *int      `json:"resets_remaining"`
	ResetAt         time.Time `json:"reset_at"`
	TraceID         string    `json:"trace_id"`
}

// StatusResponse is the profile view returned by GET /status.
type StatusResponse struct {
	UserID              string     `json:"user_id"`
	LicenseKey          *string    `json:"license_key,omitempty"`
	PlanStatus          string     `json:"plan_status"`
	PlanName            *string    `json:"plan_name,omitempty"`
	PlanExpiresAt       *time.Time `json:"plan_expires_at,omitempty"`
	HWIDResetsRemaining *int       `json:"hwid_resets_remaining,omitempty"`
	LastHWIDResetAt     *time.Time `json:"last_hwid_reset_at,omitempty"`
	TraceID             string     `json:"trace_id"`
}

// Routes mounts the lifecycle routes under two auth regimes: end-user
// routes behind bearer auth, the activation webhook behind the trusted
// peer's shared secret.
func (h *LicenseHandler) Routes(bearerAuth, sharedSecret func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth)
		r.Post("/provision", h.Provision)
		r.Post("/reset-hwid", h.ResetHWID)
		r.Get("/status", h.Status)
	})

	r.Group(func(r chi.Router) {
		r.Use(sharedSecret)
		r.Post("/activate", h.Activate)
	})

	return r
}

// Provision handles POST /api/license/provision
func (h *LicenseHandler) Provision(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "provision")
	defer span.End()

	userID := infrastructure.UserIDFromContext(ctx)

	key, err := h.service.Provision(ctx, userID)
	if err != nil {
		span.RecordError(err)
		h.handleError(w, r.WithContext(ctx), err)
		return
	}

	span.SetAttributes(attribute.Bool("request.success", true))
	render.Status(r, http.StatusOK)
	render.JSON(w, r, &ProvisionResponse{
		LicenseKey: key,
		TraceID:    infrastructure.GetTraceID(ctx),
		Timestamp:  time.Now().UTC(),
	})
}

// Activate handles POST /api/license/activate
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "activate")
	defer span.End()

	var req ActivationRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		span.RecordError(err)
		h.renderBadRequest(w, r.WithContext(ctx), "request body is not valid JSON")
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		span.RecordError(err)
		h.renderBadRequest(w, r.WithContext(ctx), validationDetail(err))
		return
	}

	res, err := h.service.Activate(ctx, req.UserID, req.PlanName, req.PlanDays)
	if err != nil {
		span.RecordError(err)
		h.handleError(w, r.WithContext(ctx), err)
		return
	}

	span.SetAttributes(attribute.Bool("request.success", true))
	render.Status(r, http.StatusOK)
	render.JSON(w, r, &ActivationResponse{
		UserID:    res.UserID,
		PlanName:  res.PlanName,
		ExpiresAt: res.ExpiresAt,
		Extended:  res.Extended,
		TraceID:   infrastructure.GetTraceID(ctx),
	})
}

// ResetHWID handles POST /api/license/reset-hwid
func (h *LicenseHandler) ResetHWID(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "reset_hwid")
	defer span.End()

	userID := infrastructure.UserIDFromContext(ctx)

	remaining, err := h.service.ResetHWID(ctx, userID)
	if err != nil {
		span.RecordError(err)
		h.handleError(w, r.WithContext(ctx), err)
		return
	}

	span.SetAttributes(attribute.Bool("request.success", true))
	render.Status(r, http.StatusOK)
	render.JSON(w, r, &ResetResponse{
		ResetsRemaining: remaining,
		ResetAt:         time.Now().UTC(),
		TraceID:         infrastructure.GetTraceID(ctx),
	})
}

// Status handles GET /api/license/status
func (h *LicenseHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "status")
	defer span.End()

	userID := infrastructure.UserIDFromContext(ctx)

	profile, err := h.service.Status(ctx, userID)
	if err != nil {
		span.RecordError(err)
		h.handleError(w, r.WithContext(ctx), err)
		return
	}

	span.SetAttributes(attribute.Bool("request.success", true))
	render.Status(r, http.StatusOK)
	render.JSON(w, r, statusResponse(profile, infrastructure.GetTraceID(ctx)))
}

func statusResponse(p *license.Profile, traceID string) *StatusResponse {
	return &StatusResponse{
		UserID:              p.ID,
		LicenseKey:          p.LicenseKey,
		PlanStatus:          string(p.PlanStatus),
		PlanName:            p.PlanName,
		PlanExpiresAt:       p.PlanExpiresAt,
		HWIDResetsRemaining: p.HWIDResetsRemaining,
		LastHWIDResetAt:     p.LastHWIDResetAt,
		TraceID:             traceID,
	}
}

func (h *LicenseHandler) startSpan(r *http.Request, operation string) (context.Context, trace.Span) {
	tracer := otel.Tracer("license-handler")
	return tracer.Start(r.Context(), "license_handler."+operation,
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", r.URL.Path),
			attribute.String("request_id", middleware.GetReqID(r.Context())),
			attribute.String("operation", operation),
		),
	)
}

func (h *LicenseHandler) renderBadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)

	h.logger.WarnContext(ctx, "request rejected",
		slog.String("trace_id", traceID),
		slog.String("path", r.URL.Path),
		slog.String("detail", detail))

	problem := apperrors.NewProblemDetails(
		http.StatusBadRequest,
		"/errors/validation-failed",
		"Validation Failed",
		detail,
		r.URL.Path,
	).WithExtension("trace_id", traceID).
		WithExtension("error_code", "VALIDATION_FAILED")

	render.Render(w, r, problem)
}

// handleError maps domain errors to problem details. Timeouts from the
// request deadline get their own mapping; everything else goes through the
// lifecycle taxonomy.
func (h *LicenseHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)

	h.logger.ErrorContext(ctx, "request failed",
		slog.String("error", err.Error()),
		slog.String("trace_id", traceID),
		slog.String("path", r.URL.Path),
		slog.String("method", r.Method))

	if errors.Is(err, context.DeadlineExceeded) {
		problem := apperrors.NewProblemDetails(
			http.StatusGatewayTimeout,
			"/errors/timeout",
			"Request Timeout",
			"The request timed out while processing. Please try again.",
			r.URL.Path,
		).WithExtension("trace_id", traceID)
		render.Render(w, r, problem)
		return
	}

	render.Render(w, r, apperrors.MapLifecycleError(err, traceID, r.URL.Path))
}

func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required":
			return fe.Field() + " is required"
		case "gt":
			return fe.Field() + " must be greater than " + fe.Param()
		default:
			return fe.Field() + " is invalid"
		}
	}
	return "request validation failed"
}
