package document

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/pharmassist/pharmassist/internal/domain/run"
	"github.com/pharmassist/pharmassist/pkg/pagination"
)

type Handler struct {
	svc    *Service
	runs   *run.Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, runs *run.Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, runs: runs, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/documents", h.Upload)
	api.GET("/documents/:id", h.GetDocument)
	api.GET("/patients/:id/documents", h.ListByPatient)
}

type uploadResponse struct {
	*IngestResult
	Run         *run.Run `json:"run,omitempty"`
	StreamToken string   `json:"stream_token,omitempty"`
}

// Upload ingests one prescription PDF from a multipart form. With
// start_run=true a consult run is started over the extracted text
// once the privacy boundary passes.
func (h *Handler) Upload(c echo.Context) error {
	patientID := c.FormValue("patient_id")
	language := c.FormValue("language")
	startRun := c.FormValue("start_run") == "true"

	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot open upload")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxUploadBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read upload")
	}

	res, err := h.svc.Ingest(c.Request().Context(), patientID, language, data)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	out := uploadResponse{IngestResult: res}
	if res.Document.Status == StatusFailedPHI {
		return c.JSON(http.StatusUnprocessableEntity, out)
	}

	if startRun && h.runs != nil {
		r, token, err := h.runs.CreateRun(c.Request().Context(), run.CreateRunRequest{
			Kind:      run.KindConsult,
			PatientID: patientID,
			Language:  language,
			Text:      res.RedactedText,
		})
		if err != nil {
			h.logger.Error().Err(err).Str("document_id", res.Document.ID).Msg("run start after ingest failed")
		} else {
			out.Run = r
			out.StreamToken = token
		}
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) GetDocument(c echo.Context) error {
	doc, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, err := h.svc.ListByPatient(c.Request().Context(), c.Param("id"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, len(items), pg.Limit, pg.Offset))
}
