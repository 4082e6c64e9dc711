package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gridsense/meterhub/internal/apperrors"
	"github.com/gridsense/meterhub/internal/ingest"
)

func (s *Server) handleImport(c echo.Context) error {
	src, err := importBody(c)
	if err != nil {
		return err
	}
	defer src.Close()

	result, err := s.ingest.ImportCSV(c.Request().Context(), src)
	if errors.Is(err, ingest.ErrEmptyImport) {
		return apperrors.ValidationError("import file is empty")
	}
	if err != nil {
		return apperrors.InternalError("import failed", err).
			WithField("imported", result.Imported).
			WithField("skipped", result.Skipped)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":   "ok",
		"imported": result.Imported,
		"skipped":  result.Skipped,
	})
}

// importBody returns the CSV source: the "file" form part when the request is
// multipart, the raw request body otherwise.
func importBody(c echo.Context) (io.ReadCloser, error) {
	file, err := c.FormFile("file")
	if err != nil {
		return c.Request().Body, nil
	}
	src, err := file.Open()
	if err != nil {
		return nil, apperrors.ValidationError("could not open uploaded file")
	}
	return src, nil
}

func (s *Server) handleExport(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="readings.csv"`)
	c.Response().WriteHeader(http.StatusOK)

	if err := s.ingest.ExportCSV(c.Request().Context(), c.Response()); err != nil {
		// Headers are already out; the best we can do is log via the error
		// middleware and cut the stream short.
		return apperrors.InternalError("export failed", err)
	}
	return nil
}
