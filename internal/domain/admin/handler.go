package admin

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// HeaderAPIKey carries the admin key on every inspection request.
const HeaderAPIKey = "X-Admin-Key"

type Handler struct {
	svc *Service
	key string
}

func NewHandler(svc *Service, key string) *Handler {
	return &Handler{svc: svc, key: key}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/admin", h.requireKey)
	g.GET("/tables", h.ListTables)
	g.GET("/tables/:name", h.PreviewTable)
	g.GET("/audit", h.ListAudit)
}

// requireKey gates every admin route. With no key configured the
// surface does not exist.
func (h *Handler) requireKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.key == "" {
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}
		given := c.Request().Header.Get(HeaderAPIKey)
		if subtle.ConstantTimeCompare([]byte(given), []byte(h.key)) != 1 {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid admin key")
		}
		return next(c)
	}
}

func (h *Handler) record(c echo.Context, action string, meta map[string]string) {
	h.svc.Record(c.Request().Context(), &AuditEvent{
		Endpoint: c.Request().URL.Path,
		Method:   c.Request().Method,
		ClientIP: c.RealIP(),
		Action:   action,
		Reason:   c.QueryParam("reason"),
		Meta:     meta,
	})
}

func (h *Handler) ListTables(c echo.Context) error {
	h.record(c, ActionListTables, nil)
	return c.JSON(http.StatusOK, map[string]interface{}{"tables": h.svc.Tables()})
}

func (h *Handler) PreviewTable(c echo.Context) error {
	name := c.Param("name")
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	rows, err := h.svc.Preview(c.Request().Context(), name, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "table not found")
	}
	h.record(c, ActionPreview, map[string]string{"table": name})
	return c.JSON(http.StatusOK, map[string]interface{}{
		"table": name,
		"rows":  rows,
	})
}

func (h *Handler) ListAudit(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	events, err := h.svc.Audit(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.record(c, ActionListAudit, nil)
	return c.JSON(http.StatusOK, map[string]interface{}{"data": events})
}
