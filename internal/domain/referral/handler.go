package referral

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/referral/referral/internal/platform/apierror"
	"github.com/referral/referral/internal/platform/middleware"
	"github.com/referral/referral/pkg/pagination"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/referrals", h.ListReferrals)
	api.POST("/referrals", h.CreateReferral)
	api.GET("/referrals/next-id", h.NextReferralID)
	api.GET("/referrals/:id", h.GetReferral)

	api.GET("/referrers", h.ListReferrers)
	api.GET("/referrers/:id", h.GetReferrer)

	api.GET("/patients", h.ListPatients)
	api.GET("/patients/:id", h.GetPatient)
}

// -- Referral Handlers --

func (h *Handler) CreateReferral(c echo.Context) error {
	var req CreateReferralRequest
	if err := c.Bind(&req); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code != http.StatusBadRequest {
			return err
		}
		return c.JSON(http.StatusBadRequest, apierror.New(apierror.CodeValidationFailed, "malformed request body"))
	}

	ref, err := h.svc.CreateReferral(c.Request().Context(), &req)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, ref)
}

func (h *Handler) GetReferral(c echo.Context) error {
	id, err := parseID(c, "referral")
	if err != nil {
		return h.respondError(c, err)
	}
	ref, err := h.svc.GetReferral(c.Request().Context(), id)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, ref)
}

func (h *Handler) ListReferrals(c echo.Context) error {
	pg, err := pagination.FromContext(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, apierror.New(apierror.CodeBadRequest, err.Error()))
	}
	refs, total, err := h.svc.ListReferrals(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return h.respondError(c, err)
	}
	pagination.SetHeaders(c, pg, total)
	return c.JSON(http.StatusOK, refs)
}

func (h *Handler) NextReferralID(c echo.Context) error {
	next, err := h.svc.NextReferralID(c.Request().Context())
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"nextReferralID": next})
}

// -- Referrer Handlers --

func (h *Handler) GetReferrer(c echo.Context) error {
	id, err := parseID(c, "referrer")
	if err != nil {
		return h.respondError(c, err)
	}
	rf, err := h.svc.GetReferrer(c.Request().Context(), id)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, rf)
}

func (h *Handler) ListReferrers(c echo.Context) error {
	pg, err := pagination.FromContext(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, apierror.New(apierror.CodeBadRequest, err.Error()))
	}
	items, total, err := h.svc.ListReferrers(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return h.respondError(c, err)
	}
	pagination.SetHeaders(c, pg, total)
	return c.JSON(http.StatusOK, items)
}

// -- Patient Handlers --

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c, "patient")
	if err != nil {
		return h.respondError(c, err)
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg, err := pagination.FromContext(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, apierror.New(apierror.CodeBadRequest, err.Error()))
	}
	items, total, err := h.svc.ListPatients(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return h.respondError(c, err)
	}
	pagination.SetHeaders(c, pg, total)
	return c.JSON(http.StatusOK, items)
}

// parseID rejects non-integer ids with 400. Integers outside the INTEGER
// column range can never have been issued and report 404, like any other
// unissued id.
func parseID(c echo.Context, resource string) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, &NotFoundError{Resource: resource}
		}
		return 0, echo.NewHTTPError(http.StatusBadRequest, "id must be an integer")
	}
	return id, nil
}

func (h *Handler) respondError(c echo.Context, err error) error {
	var verr *ValidationError
	var nf *NotFoundError
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, apierror.Validation("missing or invalid fields", verr.Fields))
	case errors.As(err, &nf):
		return c.JSON(http.StatusNotFound, apierror.NotFound(nf.Error()))
	}

	h.logger.Error().Err(err).
		Str("request_id", middleware.GetRequestID(c)).
		Str("method", c.Request().Method).
		Str("path", c.Request().URL.Path).
		Msg("request failed")
	return c.JSON(http.StatusInternalServerError, apierror.Internal())
}
