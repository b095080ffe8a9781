// internal/server/mux.go
// Package server implements the HTTP handlers and routing for the conequest
// service: the admission gate, completion and review recording, progress and
// badge views, all behind JWT authentication with event publishing.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/conequest/conequest-go/internal/badge"
	"github.com/conequest/conequest-go/internal/checkin"
	errordefs "github.com/conequest/conequest-go/internal/errors"
	"github.com/conequest/conequest-go/internal/event"
	"github.com/conequest/conequest-go/internal/geo"
	"github.com/conequest/conequest-go/internal/jwks"
	"github.com/conequest/conequest-go/internal/location"
	"github.com/conequest/conequest-go/internal/metrics"
	"github.com/conequest/conequest-go/internal/model"
	"github.com/conequest/conequest-go/internal/progress"
	"github.com/conequest/conequest-go/internal/storage"
	"github.com/conequest/conequest-go/internal/telemetry"
)

// ContextKey is used for context values to avoid collisions
// when storing values in request context
type ContextKey string

const (
	// Context keys for storing request-scoped values
	ContextKeyUserID        ContextKey = "userId"        // Stores the user id from JWT
	ContextKeyCorrelationID ContextKey = "correlationId" // Unique ID for request tracking
)

// Options carries the tunables NewMux needs beyond its collaborators.
type Options struct {
	MaxAccuracyMeters  float64  // 0 selects the gate default
	CORSAllowedOrigins []string // empty means deny all
}

// Mux handles HTTP requests for the conequest service.
type Mux struct {
	mux        *http.ServeMux
	s          storage.Store
	p          event.Publisher
	recorder   *checkin.Recorder
	jwksClient *jwks.Client
	tracker    *location.Tracker
	metrics    *metrics.Metrics

	maxAccuracyMeters  float64
	corsAllowedOrigins []string
}

// NewMux creates a new HTTP mux with all conequest endpoints.
func NewMux(s storage.Store, p event.Publisher, jwksClient *jwks.Client, tracker *location.Tracker, opts Options) *http.ServeMux {
	m := &Mux{
		mux:                http.NewServeMux(),
		s:                  s,
		p:                  p,
		recorder:           checkin.NewRecorder(s),
		jwksClient:         jwksClient,
		tracker:            tracker,
		metrics:            metrics.NewMetrics(),
		maxAccuracyMeters:  opts.MaxAccuracyMeters,
		corsAllowedOrigins: opts.CORSAllowedOrigins,
	}

	// Register health endpoints
	m.mux.HandleFunc("/healthz", m.handleHealthz)
	m.mux.HandleFunc("/readyz", m.handleReadyz)
	m.mux.Handle("/metrics", promhttp.Handler())

	// Check-in endpoints
	m.mux.HandleFunc("/v1/checkin/gate", m.method("POST", m.withMiddleware(m.handleGate)))
	m.mux.HandleFunc("/v1/checkin/complete", m.method("POST", m.withMiddleware(m.handleComplete)))
	m.mux.HandleFunc("/v1/checkin/share", m.method("POST", m.withMiddleware(m.handleShare)))
	m.mux.HandleFunc("/v1/reviews", m.method("POST", m.withMiddleware(m.handleSaveReview)))

	// Read endpoints
	m.mux.HandleFunc("/v1/progress", m.method("GET", m.withMiddleware(m.handleProgress)))
	m.mux.HandleFunc("/v1/badges", m.method("GET", m.withMiddleware(m.handleBadges)))
	m.mux.HandleFunc("/v1/targets", m.method("GET", m.withMiddleware(m.handleListTargets)))

	// Account erasure
	m.mux.HandleFunc("/v1/me", m.method("DELETE", m.withMiddleware(m.handleDeleteMe)))

	return m.mux
}

// method ensures the HTTP method matches the expected method
func (m *Mux) method(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "OPTIONS" {
			h(w, r)
			return
		}
		if r.Method != method {
			err := errordefs.New(errordefs.CQ_BAD_REQUEST, "method not allowed", "")
			m.writeErrorDef(w, err)
			return
		}
		h(w, r)
	}
}

// withMiddleware applies CORS, correlation id, and JWT auth to handlers.
// Every /v1 endpoint is user-scoped, so authentication is unconditional.
func (m *Mux) withMiddleware(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		start := time.Now()
		w := &statusWriter{ResponseWriter: rw, status: http.StatusOK}

		// Handle CORS preflight requests
		if r.Method == "OPTIONS" {
			if origin := r.Header.Get("Origin"); origin != "" && m.originAllowed(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Correlation-Id")
				w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours
			}
			w.WriteHeader(http.StatusOK)
			return
		}

		// Set CORS headers for regular requests
		if origin := r.Header.Get("Origin"); origin != "" && m.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}

		// Add correlation ID if not present
		correlationID := r.Header.Get("X-Correlation-Id")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		r = r.WithContext(context.WithValue(r.Context(), ContextKeyCorrelationID, correlationID))
		w.Header().Set("X-Correlation-Id", correlationID)

		userID, err := m.authenticate(r)
		if err != nil {
			var errorDef *errordefs.Error
			if e, ok := err.(*errordefs.Error); ok {
				errorDef = e
				errorDef.CorrelationID = correlationID
			} else {
				errorDef = errordefs.New(errordefs.CQ_AUTHN, err.Error(), correlationID)
			}
			m.writeErrorDef(w, errorDef)
			m.observeRequest(r, w.status, time.Since(start), correlationID, err)
			return
		}
		r = r.WithContext(context.WithValue(r.Context(), ContextKeyUserID, userID))

		h(w, r)
		m.observeRequest(r, w.status, time.Since(start), correlationID, nil)
	}
}

// statusWriter captures the response status for metrics and request logs.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (m *Mux) observeRequest(r *http.Request, status int, duration time.Duration, correlationID string, err error) {
	labels := []string{r.Method, r.URL.Path, strconv.Itoa(status)}
	m.metrics.HTTPRequestTotal.WithLabelValues(labels...).Inc()
	m.metrics.HTTPRequestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	m.logRequest(r, status, duration, correlationID, err)
}

func (m *Mux) originAllowed(origin string) bool {
	for _, allowed := range m.corsAllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// authenticate validates the bearer token and extracts the user id.
func (m *Mux) authenticate(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errordefs.New(errordefs.CQ_AUTHN, "missing Authorization header", "")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", errordefs.New(errordefs.CQ_AUTHN, "invalid Authorization header format", "")
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")

	userID, err := m.jwksClient.Subject(r.Context(), tokenString)
	if err != nil {
		switch {
		case errors.Is(err, jwks.ErrExpired):
			return "", errordefs.New(errordefs.CQ_JWT_EXPIRED, "JWT token expired", "")
		case errors.Is(err, jwks.ErrMalformed):
			return "", errordefs.New(errordefs.CQ_JWT_MALFORMED, "malformed JWT", "")
		default:
			return "", errordefs.New(errordefs.CQ_JWT_INVALID, fmt.Sprintf("failed to validate JWT: %v", err), "")
		}
	}
	return userID, nil
}

// writeSuccess writes a successful response
func (m *Mux) writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]interface{}{
		"data": data,
	}
	_ = json.NewEncoder(w).Encode(response)
}

// writeError writes an error response following the conequest error taxonomy
func (m *Mux) writeError(w http.ResponseWriter, statusCode int, code, message, correlationID string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]interface{}{
		"error": map[string]interface{}{
			"code":          code,
			"message":       message,
			"correlationId": correlationID,
		},
	}
	if details != nil {
		response["error"].(map[string]interface{})["details"] = details
	}
	_ = json.NewEncoder(w).Encode(response)
}

// writeErrorDef writes an error response using the error definitions package
func (m *Mux) writeErrorDef(w http.ResponseWriter, err *errordefs.Error) {
	m.writeError(w, err.HTTPStatus, string(err.Code), err.Message, err.CorrelationID, err.Details)
}

// writeDomainError maps any error from the recorders onto the wire format.
func (m *Mux) writeDomainError(w http.ResponseWriter, ctx context.Context, err error) {
	correlationID, _ := ctx.Value(ContextKeyCorrelationID).(string)
	var errorDef *errordefs.Error
	if errors.As(err, &errorDef) {
		errorDef.CorrelationID = correlationID
		m.writeErrorDef(w, errorDef)
		return
	}
	m.writeErrorDef(w, errordefs.New(errordefs.CQ_INTERNAL, "internal error", correlationID))
}

// logRequest logs request details
func (m *Mux) logRequest(r *http.Request, status int, duration time.Duration, correlationID string, err error) {
	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.Duration("duration", duration),
		slog.String("user_agent", r.UserAgent()),
		slog.String("remote_addr", r.RemoteAddr),
	}
	if correlationID != "" {
		attrs = append(attrs, slog.String("correlation_id", correlationID))
	}
	if userID, ok := r.Context().Value(ContextKeyUserID).(string); ok && userID != "" {
		attrs = append(attrs, slog.String("user_id", userID))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		slog.LogAttrs(r.Context(), slog.LevelError, "request completed with error", attrs...)
	} else {
		slog.LogAttrs(r.Context(), slog.LevelInfo, "request completed", attrs...)
	}
}

// handleHealthz handles liveness health check requests
func (m *Mux) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadyz handles readiness health check requests
func (m *Mux) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// A lookup for a key that cannot exist exercises store connectivity;
	// ErrNotFound is the healthy answer.
	_, err := m.s.GetTarget(ctx, "health-check")
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// loadTarget fetches the request's target, mapping absence to a validation
// failure: a client pointing at an unknown target sent a bad request, not a
// 404-worthy resource path.
func (m *Mux) loadTarget(ctx context.Context, targetID string) (*model.Target, *errordefs.Error) {
	correlationID, _ := ctx.Value(ContextKeyCorrelationID).(string)
	if targetID == "" {
		return nil, errordefs.New(errordefs.CQ_MISSING_TARGET, "Missing target", correlationID)
	}
	target, err := m.s.GetTarget(ctx, targetID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errordefs.New(errordefs.CQ_MISSING_TARGET, "Missing target", correlationID)
		}
		slog.Error("target lookup failed", "target", targetID, "error", err)
		return nil, errordefs.New(errordefs.CQ_INTERNAL, "internal error", correlationID)
	}
	return target, nil
}

// handleGate handles POST /v1/checkin/gate. The gate is advisory: it reports
// the admission decision without writing anything.
func (m *Mux) handleGate(w http.ResponseWriter, r *http.Request) {
	ctx, span := telemetry.Tracer().Start(r.Context(), "handleGate")
	defer span.End()
	defer r.Body.Close()

	correlationID, _ := ctx.Value(ContextKeyCorrelationID).(string)
	var req model.GateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		span.SetStatus(codes.Error, "invalid JSON")
		m.writeErrorDef(w, errordefs.New(errordefs.CQ_VALIDATION, "invalid JSON", correlationID))
		return
	}

	span.SetAttributes(
		attribute.String("target", req.TargetID),
		attribute.Bool("has_sample", req.Sample != nil),
	)

	target, errDef := m.loadTarget(ctx, req.TargetID)
	if errDef != nil {
		m.writeErrorDef(w, errDef)
		return
	}
	if req.Sample == nil || !location.Valid(req.Sample) {
		m.writeErrorDef(w, errordefs.New(errordefs.CQ_MISSING_LOCATION, "Missing location", correlationID))
		return
	}

	userID, _ := ctx.Value(ContextKeyUserID).(string)
	m.tracker.Record(userID, *req.Sample)

	result := geo.Evaluate(*target, *req.Sample, m.maxAccuracyMeters)
	m.observeGate(result)
	span.SetAttributes(
		attribute.Bool("admitted", result.Admitted),
		attribute.Float64("distance_meters", result.DistanceMeters),
	)

	m.writeSuccess(w, http.StatusOK, result)
}

func (m *Mux) observeGate(result geo.GateResult) {
	decision := "rejected"
	if result.Admitted {
		decision = "admitted"
	}
	reason := "ok"
	if !result.Admitted {
		reason = "out_of_range"
		if result.AccuracyMeters != nil && *result.AccuracyMeters > m.effectiveMaxAccuracy() {
			reason = "poor_accuracy"
		}
	}
	m.metrics.GateDecisionTotal.WithLabelValues(decision, reason).Inc()
	m.metrics.GateDistanceMeters.WithLabelValues(decision).Observe(result.DistanceMeters)
}

func (m *Mux) effectiveMaxAccuracy() float64 {
	if m.maxAccuracyMeters > 0 {
		return m.maxAccuracyMeters
	}
	return geo.DefaultMaxAccuracyMeters
}

// handleComplete handles POST /v1/checkin/complete: gate evaluation plus the
// idempotent completion write.
func (m *Mux) handleComplete(w http.ResponseWriter, r *http.Request) {
	ctx, span := telemetry.Tracer().Start(r.Context(), "handleComplete")
	defer span.End()
	defer r.Body.Close()

	correlationID, _ := ctx.Value(ContextKeyCorrelationID).(string)
	var req model.CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		span.SetStatus(codes.Error, "invalid JSON")
		m.writeErrorDef(w, errordefs.New(errordefs.CQ_VALIDATION, "invalid JSON", correlationID))
		return
	}

	target, errDef := m.loadTarget(ctx, req.TargetID)
	if errDef != nil {
		m.writeErrorDef(w, errDef)
		return
	}

	userID, _ := ctx.Value(ContextKeyUserID).(string)
	var gate geo.GateResult
	if req.Sample != nil && location.Valid(req.Sample) {
		m.tracker.Record(userID, *req.Sample)
		gate = geo.Evaluate(*target, *req.Sample, m.maxAccuracyMeters)
		m.observeGate(gate)
	}

	span.SetAttributes(
		attribute.String("target", target.ID),
		attribute.Bool("admitted", gate.Admitted),
	)

	result, err := m.recorder.CompleteTarget(ctx, userID, target, req.Sample, gate)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		m.writeDomainError(w, ctx, err)
		return
	}

	outcome := "created"
	if result.AlreadyCompleted {
		outcome = "replayed"
	} else {
		if err := m.p.PublishCompletionRecorded(ctx, result.Completion); err != nil {
			slog.Warn("failed to publish completion recorded event", "error", err)
		}
	}
	m.metrics.CheckinRecordedTotal.WithLabelValues(outcome).Inc()

	m.writeSuccess(w, http.StatusOK, result)
}

// handleShare handles POST /v1/checkin/share.
func (m *Mux) handleShare(w http.ResponseWriter, r *http.Request) {
	ctx, span := telemetry.Tracer().Start(r.Context(), "handleShare")
	defer span.End()
	defer r.Body.Close()

	correlationID, _ := ctx.Value(ContextKeyCorrelationID).(string)
	var req model.ShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		span.SetStatus(codes.Error, "invalid JSON")
		m.writeErrorDef(w, errordefs.New(errordefs.CQ_VALIDATION, "invalid JSON", correlationID))
		return
	}

	userID, _ := ctx.Value(ContextKeyUserID).(string)
	span.SetAttributes(
		attribute.String("target", req.TargetID),
		attribute.String("platform", req.Platform),
	)

	completion, err := m.recorder.ConfirmShareBonus(ctx, userID, req.TargetID, req.Platform)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		m.writeDomainError(w, ctx, err)
		return
	}

	m.metrics.ShareConfirmedTotal.Inc()
	if err := m.p.PublishShareConfirmed(ctx, *completion); err != nil {
		slog.Warn("failed to publish share confirmed event", "error", err)
	}

	m.writeSuccess(w, http.StatusOK, completion)
}

// handleSaveReview handles POST /v1/reviews.
func (m *Mux) handleSaveReview(w http.ResponseWriter, r *http.Request) {
	ctx, span := telemetry.Tracer().Start(r.Context(), "handleSaveReview")
	defer span.End()
	defer r.Body.Close()

	correlationID, _ := ctx.Value(ContextKeyCorrelationID).(string)
	var req model.ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		span.SetStatus(codes.Error, "invalid JSON")
		m.writeErrorDef(w, errordefs.New(errordefs.CQ_VALIDATION, "invalid JSON", correlationID))
		return
	}

	target, errDef := m.loadTarget(ctx, req.TargetID)
	if errDef != nil {
		m.writeErrorDef(w, errDef)
		return
	}

	userID, _ := ctx.Value(ContextKeyUserID).(string)
	span.SetAttributes(attribute.String("target", target.ID))

	// Existence check only drives the created/updated metric label.
	outcome := "created"
	if _, err := m.s.GetReview(ctx, model.RecordKey(userID, target.ID)); err == nil {
		outcome = "updated"
	}

	review, err := m.recorder.SaveReview(ctx, userID, target.ID, target.Slug, target.Name, req.Rating, req.Note)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		m.writeDomainError(w, ctx, err)
		return
	}

	m.metrics.ReviewSavedTotal.WithLabelValues(outcome).Inc()
	if err := m.p.PublishReviewSaved(ctx, *review); err != nil {
		slog.Warn("failed to publish review saved event", "error", err)
	}

	m.writeSuccess(w, http.StatusOK, review)
}

// userSnapshot assembles the state shared by the progress and badge views.
func (m *Mux) userSnapshot(ctx context.Context, userID string) ([]model.Target, []model.Completion, []model.Review, error) {
	targets, err := m.s.ListActiveTargets(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	completions, err := m.s.ListCompletionsByUser(ctx, userID)
	if err != nil {
		return nil, nil, nil, err
	}
	reviews, err := m.s.ListReviewsByUser(ctx, userID)
	if err != nil {
		return nil, nil, nil, err
	}
	return targets, completions, reviews, nil
}

// handleProgress handles GET /v1/progress. An optional lat/lng query pair
// supplies a fresh position; otherwise the last recorded sample is used.
func (m *Mux) handleProgress(w http.ResponseWriter, r *http.Request) {
	ctx, span := telemetry.Tracer().Start(r.Context(), "handleProgress")
	defer span.End()

	correlationID, _ := ctx.Value(ContextKeyCorrelationID).(string)
	userID, _ := ctx.Value(ContextKeyUserID).(string)

	loc := m.tracker.Last(userID)
	if latStr, lngStr := r.URL.Query().Get("lat"), r.URL.Query().Get("lng"); latStr != "" && lngStr != "" {
		lat, latErr := strconv.ParseFloat(latStr, 64)
		lng, lngErr := strconv.ParseFloat(lngStr, 64)
		if latErr != nil || lngErr != nil {
			m.writeErrorDef(w, errordefs.New(errordefs.CQ_VALIDATION, "lat and lng must be numbers", correlationID))
			return
		}
		sample := model.LocationSample{Lat: lat, Lng: lng, CapturedAt: time.Now().UTC()}
		if !location.Valid(&sample) {
			m.writeErrorDef(w, errordefs.New(errordefs.CQ_VALIDATION, "lat and lng out of range", correlationID))
			return
		}
		m.tracker.Record(userID, sample)
		loc = &sample
	}

	targets, completions, reviews, err := m.userSnapshot(ctx, userID)
	if err != nil {
		slog.Error("progress snapshot failed", "user", userID, "error", err)
		span.SetStatus(codes.Error, "snapshot failed")
		m.writeErrorDef(w, errordefs.New(errordefs.CQ_INTERNAL, "internal error", correlationID))
		return
	}

	snap := progress.Snapshot{
		Targets:      targets,
		CompletedIDs: make(map[string]bool, len(completions)),
		ReviewedIDs:  make(map[string]bool, len(reviews)),
		Location:     loc,
	}
	for _, c := range completions {
		snap.CompletedIDs[c.TargetID] = true
	}
	for _, rv := range reviews {
		snap.ReviewedIDs[rv.TargetID] = true
	}

	view := progress.Derive(snap)
	span.SetAttributes(
		attribute.Int("completed", view.CompletedCount),
		attribute.Int("total", view.TotalCount),
	)
	m.writeSuccess(w, http.StatusOK, view)
}

// handleBadges handles GET /v1/badges.
func (m *Mux) handleBadges(w http.ResponseWriter, r *http.Request) {
	ctx, span := telemetry.Tracer().Start(r.Context(), "handleBadges")
	defer span.End()

	correlationID, _ := ctx.Value(ContextKeyCorrelationID).(string)
	userID, _ := ctx.Value(ContextKeyUserID).(string)

	targets, completions, _, err := m.userSnapshot(ctx, userID)
	if err != nil {
		slog.Error("badge snapshot failed", "user", userID, "error", err)
		span.SetStatus(codes.Error, "snapshot failed")
		m.writeErrorDef(w, errordefs.New(errordefs.CQ_INTERNAL, "internal error", correlationID))
		return
	}

	in := badge.Input{
		Targets:      targets,
		CompletedIDs: make(map[string]bool, len(completions)),
		SharedIDs:    make(map[string]bool),
	}
	for _, c := range completions {
		in.CompletedIDs[c.TargetID] = true
		if c.ShareConfirmed {
			in.SharedIDs[c.TargetID] = true
		}
	}

	start := time.Now()
	evaluation := badge.Evaluate(in)
	m.metrics.BadgeEvaluationSeconds.Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("earned", evaluation.EarnedCount))

	m.writeSuccess(w, http.StatusOK, evaluation)
}

// handleListTargets handles GET /v1/targets.
func (m *Mux) handleListTargets(w http.ResponseWriter, r *http.Request) {
	ctx, span := telemetry.Tracer().Start(r.Context(), "handleListTargets")
	defer span.End()

	correlationID, _ := ctx.Value(ContextKeyCorrelationID).(string)
	targets, err := m.s.ListActiveTargets(ctx)
	if err != nil {
		slog.Error("target list failed", "error", err)
		span.SetStatus(codes.Error, "list failed")
		m.writeErrorDef(w, errordefs.New(errordefs.CQ_INTERNAL, "internal error", correlationID))
		return
	}
	m.writeSuccess(w, http.StatusOK, targets)
}

// handleDeleteMe handles DELETE /v1/me: full erasure of the caller's data.
func (m *Mux) handleDeleteMe(w http.ResponseWriter, r *http.Request) {
	ctx, span := telemetry.Tracer().Start(r.Context(), "handleDeleteMe")
	defer span.End()

	correlationID, _ := ctx.Value(ContextKeyCorrelationID).(string)
	userID, _ := ctx.Value(ContextKeyUserID).(string)

	if err := m.s.DeleteUserData(ctx, userID); err != nil {
		slog.Error("user data erasure failed", "user", userID, "error", err)
		span.SetStatus(codes.Error, "erasure failed")
		m.writeErrorDef(w, errordefs.New(errordefs.CQ_INTERNAL, "internal error", correlationID))
		return
	}
	m.tracker.Forget(userID)

	m.writeSuccess(w, http.StatusOK, map[string]bool{"deleted": true})
}
