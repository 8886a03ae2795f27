package run

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/pharmassist/pharmassist/internal/domain/triage"
	"github.com/pharmassist/pharmassist/internal/platform/eventbus"
	"github.com/pharmassist/pharmassist/pkg/pagination"
)

// keepAliveInterval is how often the SSE stream emits a comment while
// no events arrive.
const keepAliveInterval = 15 * time.Second

type Handler struct {
	svc    *Service
	bus    *eventbus.Bus
	logger zerolog.Logger
}

func NewHandler(svc *Service, bus *eventbus.Bus, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, bus: bus, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/runs", h.CreateRun)
	api.GET("/runs", h.ListRuns)
	api.GET("/runs/:id", h.GetRun)
	api.GET("/runs/:id/events", h.StreamEvents)
}

type createRunRequest struct {
	Kind      string              `json:"kind,omitempty"`
	CaseRef   string              `json:"case_ref,omitempty"`
	PatientID string              `json:"patient_id,omitempty"`
	VisitID   string              `json:"visit_id,omitempty"`
	Language  string              `json:"language,omitempty"`
	Text      string              `json:"text,omitempty"`
	Answers   []triage.AnswerItem `json:"answers,omitempty"`
}

type createRunResponse struct {
	Run         *Run   `json:"run"`
	StreamToken string `json:"stream_token"`
}

func (h *Handler) CreateRun(c echo.Context) error {
	var req createRunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var answers map[string]string
	if len(req.Answers) > 0 {
		issues, canonical := triage.ValidateAnswers(req.Answers)
		if len(issues) > 0 {
			return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
				"error":  "invalid follow-up answers",
				"issues": issues,
			})
		}
		answers = canonical
	}

	r, token, err := h.svc.CreateRun(c.Request().Context(), CreateRunRequest{
		Kind:      req.Kind,
		CaseRef:   req.CaseRef,
		PatientID: req.PatientID,
		VisitID:   req.VisitID,
		Language:  req.Language,
		Text:      req.Text,
		Answers:   answers,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, createRunResponse{Run: r, StreamToken: token})
}

func (h *Handler) GetRun(c echo.Context) error {
	r, err := h.svc.GetRun(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ListRuns(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListRuns(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// streamToken pulls the SSE auth token from the query string or the
// Authorization header. EventSource cannot set headers, so the query
// parameter is the primary channel.
func streamToken(c echo.Context) string {
	if tok := c.QueryParam("token"); tok != "" {
		return tok
	}
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// afterSeq resolves the replay cursor: explicit ?after= wins, then the
// Last-Event-ID header a reconnecting EventSource sends.
func afterSeq(c echo.Context) int64 {
	if raw := c.QueryParam("after"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n >= 0 {
			return n
		}
	}
	if raw := c.Request().Header.Get("Last-Event-ID"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n >= 0 {
			return n
		}
	}
	return 0
}

// StreamEvents serves the run's event stream as Server-Sent Events:
// stored events past the cursor first, then the live tail until the
// run finalizes or the client disconnects.
func (h *Handler) StreamEvents(c echo.Context) error {
	runID := c.Param("id")

	if err := h.svc.VerifyStreamToken(streamToken(c), runID); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid stream token")
	}
	if _, err := h.svc.GetRun(c.Request().Context(), runID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	// Subscribe before replaying so nothing published in between is
	// lost; duplicates are filtered on seq below.
	live, cancel := h.bus.Subscribe(runID)
	defer cancel()

	lastSeq := afterSeq(c)
	stored, err := h.svc.ReplayEvents(c.Request().Context(), runID, lastSeq)
	if err != nil {
		h.logger.Error().Err(err).Str("run_id", runID).Msg("event replay failed")
		return nil
	}
	for _, ev := range stored {
		if err := writeSSE(res, ev); err != nil {
			return nil
		}
		if ev.Seq > lastSeq {
			lastSeq = ev.Seq
		}
		if ev.Type == eventbus.TypeFinalized {
			return nil
		}
	}
	res.Flush()

	ctx := c.Request().Context()
	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-keepAlive.C:
			if _, err := fmt.Fprint(res, ": keep-alive\n\n"); err != nil {
				return nil
			}
			res.Flush()
		case ev, ok := <-live:
			if !ok {
				return nil
			}
			if ev.Seq <= lastSeq {
				continue
			}
			if err := writeSSE(res, ev); err != nil {
				return nil
			}
			lastSeq = ev.Seq
			res.Flush()
			if ev.Type == eventbus.TypeFinalized {
				return nil
			}
		}
	}
}

func writeSSE(res *echo.Response, ev eventbus.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(res, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Type, data)
	return err
}
