package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/fhirnudge/nudge/internal/domain/aix"
	"github.com/fhirnudge/nudge/internal/domain/snapshot"
	"github.com/fhirnudge/nudge/internal/domain/validation"
	"github.com/fhirnudge/nudge/internal/platform/middleware"
)

const fhirJSON = "application/fhir+json"

// Refresher rebuilds the snapshot on demand.
type Refresher interface {
	Refresh(ctx context.Context) (*snapshot.Snapshot, error)
}

type Handler struct {
	svc       *Service
	store     *snapshot.Store
	refresher Refresher
	logger    zerolog.Logger
}

func NewHandler(svc *Service, store *snapshot.Store, refresher Refresher, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, store: store, refresher: refresher, logger: logger}
}

// RegisterRoutes mounts the proxy endpoints on api and the admin endpoints
// on admin. admin is expected to carry the auth middleware; nil skips them.
func (h *Handler) RegisterRoutes(api *echo.Group, admin *echo.Group) {
	api.GET("/readResource/:resource/:id", h.ReadResource)
	api.GET("/searchResource/:resource", h.SearchResource)
	api.GET("/supportedParams/:resource", h.GetSupportedParams)
	api.GET("/health", h.Health)

	if admin != nil && h.refresher != nil {
		admin.POST("/refresh", h.Refresh)
	}
}

func (h *Handler) ReadResource(c echo.Context) error {
	res, err := h.svc.Read(c.Request().Context(), c.Param("resource"), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return h.respond(c, res)
}

func (h *Handler) SearchResource(c echo.Context) error {
	params, err := validation.ParseQuery(c.QueryString())
	if err != nil {
		return h.reject(c, http.StatusBadRequest, aix.CodeInvalid, c.Param("resource"), "malformed query string: "+err.Error())
	}
	res, err := h.svc.Search(c.Request().Context(), c.Param("resource"), params)
	if err != nil {
		return h.fail(c, err)
	}
	return h.respond(c, res)
}

func (h *Handler) GetSupportedParams(c echo.Context) error {
	params, res, err := h.svc.SupportedParams(c.Param("resource"))
	if err != nil {
		return h.fail(c, err)
	}
	if res != nil {
		return h.respond(c, res)
	}
	return c.JSON(http.StatusOK, params)
}

func (h *Handler) Health(c echo.Context) error {
	snap := h.store.Load()
	if snap == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "starting"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"generation":     snap.Generation,
		"built_at":       snap.BuiltAt,
		"resource_types": snap.Index.Len(),
		"code_systems":   len(snap.Systems),
		"templates":      snap.Registry.Len(),
	})
}

func (h *Handler) Refresh(c echo.Context) error {
	snap, err := h.refresher.Refresh(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"generation":     snap.Generation,
		"resource_types": snap.Index.Len(),
		"code_systems":   len(snap.Systems),
		"templates":      snap.Registry.Len(),
	})
}

func (h *Handler) reject(c echo.Context, status int, issueCode aix.Code, resourceType, diagnostics string) error {
	res, err := h.svc.Reject(status, issueCode, resourceType, diagnostics)
	if err != nil {
		return h.fail(c, err)
	}
	return h.respond(c, res)
}

// HTTPErrorHandler answers unmatched routes and methods with an AIX error
// and hands every other error to fallback.
func (h *Handler) HTTPErrorHandler(fallback echo.HTTPErrorHandler) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		var issueCode aix.Code
		var he *echo.HTTPError
		switch {
		case c.Response().Committed:
			return
		case errors.Is(err, echo.ErrNotFound):
			issueCode, he = aix.CodeNotFound, echo.ErrNotFound
		case errors.Is(err, echo.ErrMethodNotAllowed):
			issueCode, he = aix.CodeInvalid, echo.ErrMethodNotAllowed
		default:
			fallback(err, c)
			return
		}

		req := c.Request()
		res, rerr := h.svc.Reject(he.Code, issueCode, c.Param("resource"),
			fmt.Sprintf("no endpoint matches %s %s", req.Method, req.URL.Path))
		if rerr != nil {
			if !errors.Is(rerr, snapshot.ErrNotReady) {
				h.logger.Error().Err(rerr).Str("request_id", middleware.GetRequestID(c)).Msg("render route error")
			}
			fallback(err, c)
			return
		}
		if werr := h.respond(c, res); werr != nil {
			h.logger.Error().Err(werr).Str("request_id", middleware.GetRequestID(c)).Msg("write route error")
		}
	}
}

func (h *Handler) respond(c echo.Context, res *Result) error {
	if res.Error != nil {
		c.Set(middleware.ErrorCodeKey, string(res.Code))
		return c.JSON(res.Status, res.Error)
	}
	hdr := c.Response().Header()
	for k, vs := range res.Header {
		for _, v := range vs {
			hdr.Add(k, v)
		}
	}
	ct := res.Header.Get(echo.HeaderContentType)
	if ct == "" {
		ct = fhirJSON
	}
	return c.Blob(res.Status, ct, res.Body)
}

// fail maps Go errors from the service. None of them carry an AIX body: a
// rendering defect must not leak template fields.
func (h *Handler) fail(c echo.Context, err error) error {
	if errors.Is(err, snapshot.ErrNotReady) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "metadata not loaded yet")
	}
	evt := h.logger.Error().Err(err).Str("request_id", middleware.GetRequestID(c)).Str("path", c.Request().URL.Path)
	var mce *aix.MissingContextError
	if errors.As(err, &mce) {
		evt = evt.Str("code", string(mce.Code)).Strs("missing", mce.Fields)
	}
	evt.Msg("request failed")
	return c.JSON(http.StatusInternalServerError, map[string]string{"message": middleware.InternalErrorMessage})
}
