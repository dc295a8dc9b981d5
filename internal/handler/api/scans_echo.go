package api

import (
	"context"
	"errors"
	"fmt"

	"SignalScan/internal/domain/models"
	domrepo "SignalScan/internal/domain/repository"
	"SignalScan/internal/service/marketapi"
	"SignalScan/internal/usecase"
	xhttp "SignalScan/pkg/http"
	xlogger "SignalScan/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ScanService is the part of *usecase.ScanSession the handlers use.
type ScanService interface {
	Start(ctx context.Context, kind models.Kind, o usecase.Override) error
	Stop() bool
	Status() models.SessionStatus
	Latest(ctx context.Context, kind models.Kind) (*models.ScanResult, error)
	LastError() error
	Subscribe(buffer int) (<-chan models.Progress, func())
}

type ScansEchoHandler struct {
	logger  *xlogger.Logger
	session ScanService
	stream  StreamConfig
}

func NewScansEchoHandler(logger *xlogger.Logger, session ScanService, stream StreamConfig) *ScansEchoHandler {
	return &ScansEchoHandler{logger: logger, session: session, stream: stream.withDefaults()}
}

func (h *ScansEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/scans")
	g.GET("/status", h.Status)
	g.GET("/ws", h.Stream)
	g.POST("/stop", h.StopScan)
	g.POST("/:kind", h.StartScan)
	g.GET("/:kind/latest", h.Latest)
}

// StartScan launches a background scan; 202 when started, 409 when one is already running.
func (h *ScansEchoHandler) StartScan(c echo.Context) error {
	req := &models.StartScanRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.ValidationFailed(c, verr)
	}

	o := usecase.Override{
		MaxInstruments: req.MaxInstruments,
		MinQuoteVolume: req.MinQuoteVolume,
		Interval:       req.Interval,
	}
	if err := h.session.Start(c.Request().Context(), req.Kind, o); err != nil {
		if !errors.Is(err, usecase.ErrScanInProgress) {
			h.logger.Error("start scan error", xlogger.String("kind", string(req.Kind)), xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, toAppError(err))
	}

	h.logger.Info("scan requested", xlogger.String("kind", string(req.Kind)), xlogger.String("remote", c.RealIP()))
	return xhttp.AcceptedResponse(c, models.StartScanResponse{
		Kind:    req.Kind,
		Started: true,
		Message: fmt.Sprintf("%s scan started", req.Kind),
	})
}

func (h *ScansEchoHandler) StopScan(c echo.Context) error {
	if !h.session.Stop() {
		return xhttp.AppErrorResponse(c, xhttp.ConflictError("no scan is running"))
	}
	return xhttp.AcceptedResponse(c, h.session.Status())
}

func (h *ScansEchoHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.session.Status())
}

// Latest serves the last good result for a kind, optionally narrowed to one bucket,
// with at most limit hits per bucket.
func (h *ScansEchoHandler) Latest(c echo.Context) error {
	req := &models.LatestScanRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.ValidationFailed(c, verr)
	}
	if req.Bucket != models.BucketNone && !bucketOf(req.Kind, req.Bucket) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(fmt.Sprintf("bucket %s does not belong to %s", req.Bucket, req.Kind)).
			WithParam("options", models.BucketsFor(req.Kind)))
	}

	lastErr := h.session.LastError()
	res, err := h.session.Latest(c.Request().Context(), req.Kind)
	if err != nil {
		if errors.Is(err, domrepo.ErrResultNotFound) && marketapi.IsExhausted(lastErr) {
			return xhttp.AppErrorResponse(c, toAppError(lastErr))
		}
		if !errors.Is(err, domrepo.ErrResultNotFound) {
			h.logger.Error("latest scan error", xlogger.String("kind", string(req.Kind)), xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, toAppError(err))
	}

	resp := models.LatestScanResponse{Result: filterResult(res, req.Bucket, req.Limit)}
	if lastErr != nil {
		resp.LastError = lastErr.Error()
	}
	return xhttp.SuccessResponse(c, resp)
}

func bucketOf(kind models.Kind, b models.Bucket) bool {
	for _, kb := range models.BucketsFor(kind) {
		if kb == b {
			return true
		}
	}
	return false
}

func filterResult(r *models.ScanResult, bucket models.Bucket, limit int) *models.ScanResult {
	out := &models.ScanResult{
		Buckets: make(map[models.Bucket][]models.Hit, len(r.Buckets)),
		Meta:    r.Meta,
	}
	for b, hs := range r.Buckets {
		if bucket != models.BucketNone && b != bucket {
			continue
		}
		if limit > 0 && len(hs) > limit {
			hs = hs[:limit]
		}
		out.Buckets[b] = hs
	}
	if r.VolumeExtremes != nil {
		out.VolumeExtremes = make(map[models.Bucket]models.VolumeExtremes)
		for b, ve := range r.VolumeExtremes {
			if bucket == models.BucketNone || b == bucket {
				out.VolumeExtremes[b] = ve
			}
		}
	}
	return out
}

func toAppError(err error) error {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, usecase.ErrScanInProgress):
		return xhttp.ConflictError("a scan is already running").WithError(err)
	case errors.Is(err, usecase.ErrUnknownKind):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, domrepo.ErrResultNotFound):
		return xhttp.NotFoundError("no completed scan yet").WithError(err)
	case marketapi.IsExhausted(err):
		ae := xhttp.UpstreamUnavailableError("all market data endpoints are blocked or rate-limited").WithError(err)
		if ex, ok := marketapi.AsExhausted(err); ok {
			ae.WithParam("status", ex.StatusCode).WithParam("url", ex.URL)
		}
		return ae
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}
