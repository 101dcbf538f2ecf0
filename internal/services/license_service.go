// Package services wraps the lifecycle engine with request-scoped
// observability: operation logging, latency, outcome metrics. Handlers talk
// to this layer, never to the engine directly.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"keygate/internal/infrastructure"
	"keygate/internal/license"
)

// LicenseService exposes the four lifecycle workflows to the transport layer.
type LicenseService interface {
	Provision(ctx context.Context, userID string) (string, error)
	Activate(ctx context.Context, userID, planName string, planDays int) (*license.ActivationResult, error)
	ResetHWID(ctx context.Context, userID string) (*int, error)
	Status(ctx context.Context, userID string) (*license.Profile, error)
}

// engine is the part of the lifecycle engine the service consumes.
type engine interface {
	Provision(ctx context.Context, userID string) (string, error)
	Activate(ctx context.Context, userID, planName string, planDays int) (*license.ActivationResult, error)
	ResetHWID(ctx context.Context, userID string) (*int, error)
	Status(ctx context.Context, userID string) (*license.Profile, error)
}

type licenseService struct {
	engine  engine
	logger  *slog.Logger
	metrics *infrastructure.LifecycleMetrics
	timeout time.Duration
}

// NewLicenseService creates the observability wrapper around the engine.
// Each call runs under its own deadline so a stuck provider or database
// cannot hold a request forever.
func NewLicenseService(e engine, logger *slog.Logger, metrics *infrastructure.LifecycleMetrics) LicenseService {
	if logger == nil {
		logger = slog.Default()
	}
	return &licenseService{
		engine:  e,
		logger:  logger.With(slog.String("service", "license")),
		metrics: metrics,
		timeout: 30 * time.Second,
	}
}

func (s *licenseService) Provision(ctx context.Context, userID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	key, err := s.engine.Provision(ctx, userID)
	s.finish(ctx, "provision", userID, start, err)
	return key, err
}

func (s *licenseService) Activate(ctx context.Context, userID, planName string, planDays int) (*license.ActivationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	res, err := s.engine.Activate(ctx, userID, planName, planDays)
	s.finish(ctx, "activate", userID, start, err)
	return res, err
}

func (s *licenseService) ResetHWID(ctx context.Context, userID string) (*int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	remaining, err := s.engine.ResetHWID(ctx, userID)
	s.finish(ctx, "reset_hwid", userID, start, err)
	return remaining, err
}

func (s *licenseService) Status(ctx context.Context, userID string) (*license.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	profile, err := s.engine.Status(ctx, userID)
	s.finish(ctx, "status", userID, start, err)
	return profile, err
}

// finish logs the operation outcome and records metrics.
func (s *licenseService) finish(ctx context.Context, operation, userID string, start time.Time, err error) {
	traceID := middleware.GetReqID(ctx)
	if traceID == "" {
		traceID = infrastructure.GetTraceID(ctx)
	}

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	s.metrics.RecordOperation(operation, outcome)

	attrs := []any{
		slog.String("trace_id", traceID),
		slog.String("operation", operation),
		slog.String("user_id", userID),
		slog.Duration("latency", time.Since(start)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		s.logger.WarnContext(ctx, "license operation failed", attrs...)
		return
	}
	s.logger.InfoContext(ctx, "license operation completed", attrs...)
}
