package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jacksonlee411/fleet-console/internal/metrics"
	"github.com/jacksonlee411/fleet-console/internal/routing"
	"github.com/jacksonlee411/fleet-console/modules/access/domain/ports"
	"github.com/jacksonlee411/fleet-console/modules/access/domain/types"
	"github.com/jacksonlee411/fleet-console/modules/access/services"
	"github.com/jacksonlee411/fleet-console/pkg/httperr"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 64 << 10

type CapabilityGetter func(ctx context.Context) (types.Capability, bool)

type AccessEngine interface {
	Authorize(ctx context.Context, capability types.Capability, imei string) (types.Decision, error)
	VerifyDevice(ctx context.Context, capability types.Capability, imei string, payload types.VerificationPayload) (services.VerificationResult, error)
}

type DenialRecorder interface {
	RecordDenial(ctx context.Context, capability types.Capability, imei string, d types.Decision) (types.AuditEvent, error)
}

type AccessController struct {
	Capability CapabilityGetter
	Engine     AccessEngine
	// Audit is optional; denials are not recorded when nil.
	Audit DenialRecorder
}

type verificationAPIRequest struct {
	IMEI   string             `json:"imei"`
	Status string             `json:"status"`
	Notes  string             `json:"notes"`
	GPS    *types.GPSSnapshot `json:"gps"`
}

type verificationAPIResponse struct {
	VerificationID int64          `json:"verification_id"`
	Decision       types.Decision `json:"decision"`
}

// HandleAccessAPI answers GET /device/api/access?imei=.
func (c AccessController) HandleAccessAPI(w http.ResponseWriter, r *http.Request) {
	capability, ok := c.Capability(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}

	imei := r.URL.Query().Get("imei")
	d, err := c.Engine.Authorize(r.Context(), capability, imei)
	if err != nil {
		c.writeEngineError(w, r, capability, err)
		return
	}

	c.observe(r.Context(), capability, imei, d)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(d)
}

// HandleVerificationsAPI answers POST /device/api/verifications. Only permitted devices
// are recorded; a denial is 403 with the decision's reason.
func (c AccessController) HandleVerificationsAPI(w http.ResponseWriter, r *http.Request) {
	capability, ok := c.Capability(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil || len(body) > maxBodyBytes {
		writeError(w, r, http.StatusBadRequest, "bad_json", "bad json")
		return
	}
	var req verificationAPIRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", "bad json")
		return
	}

	payload := types.VerificationPayload{
		Status: types.VerificationStatus(req.Status),
		Notes:  req.Notes,
		GPS:    req.GPS,
	}
	res, err := c.Engine.VerifyDevice(r.Context(), capability, req.IMEI, payload)
	if err != nil {
		c.writeEngineError(w, r, capability, err)
		return
	}

	c.observe(r.Context(), capability, req.IMEI, res.Decision)
	if !res.Decision.HasAccess {
		writeError(w, r, http.StatusForbidden, "access_denied", res.Decision.Reason)
		return
	}

	metrics.VerificationsRecordedTotal.WithLabelValues(capability.SubjectKind()).Inc()
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(verificationAPIResponse{VerificationID: res.VerificationID, Decision: res.Decision})
}

// observe counts the verdict and audits denials. Audit failures never change the verdict.
func (c AccessController) observe(ctx context.Context, capability types.Capability, imei string, d types.Decision) {
	metrics.AccessDecisionsTotal.WithLabelValues(capability.SubjectKind(), metrics.Outcome(d.HasAccess), string(d.Basis)).Inc()
	if d.HasAccess || c.Audit == nil {
		return
	}
	logger := zerolog.Ctx(ctx)
	ev, err := c.Audit.RecordDenial(ctx, capability, imei, d)
	if err != nil {
		metrics.AuditWriteFailuresTotal.Inc()
		logger.Error().Err(err).Str("subject_kind", capability.SubjectKind()).Int64("device_id", d.DeviceID).Msg("audit denial failed")
		return
	}
	logger.Warn().
		Str("audit_id", ev.ID).
		Str("subject_kind", ev.SubjectKind).
		Int64("subject_id", ev.SubjectID).
		Int64("device_id", ev.DeviceID).
		Str("basis", string(ev.Basis)).
		Msg("access denied")
}

func (c AccessController) writeEngineError(w http.ResponseWriter, r *http.Request, capability types.Capability, err error) {
	status, code, message := classifyEngineError(err)
	metrics.AccessErrorsTotal.WithLabelValues(code).Inc()
	if status >= http.StatusInternalServerError {
		ev := zerolog.Ctx(r.Context()).Error().Err(err).Str("subject_kind", capability.SubjectKind()).Str("code", code)
		if pgCode := pgErrorCode(err); pgCode != "" {
			ev = ev.Str("pg_code", pgCode)
		}
		ev.Msg("access check failed")
	}
	writeError(w, r, status, code, message)
}

func classifyEngineError(err error) (status int, code string, message string) {
	if msg, ok := httperr.BadRequestMessage(err); ok {
		return http.StatusBadRequest, "invalid_request", msg
	}
	switch {
	case errors.Is(err, ports.ErrDeviceNotFound):
		return http.StatusNotFound, "device_not_found", "device not found"
	case errors.Is(err, ports.ErrRestrictionIntegrity):
		return http.StatusInternalServerError, "restriction_integrity", "restriction data is inconsistent"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "unavailable", "request cancelled"
	default:
		return http.StatusInternalServerError, "internal_error", "internal error"
	}
}

func pgErrorCode(err error) string {
	if pgErr, ok := errors.AsType[*pgconn.PgError](err); ok && pgErr != nil {
		return strings.TrimSpace(pgErr.Code)
	}
	return ""
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, message string) {
	routing.WriteError(w, r, routing.RouteClassAPI, status, code, message)
}
