package webserver

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/mdouchement/logger"
	"github.com/mdouchement/resumable/internal/storage"
	"github.com/mdouchement/resumable/internal/upload"
	"github.com/mdouchement/resumable/internal/webserver/serializer"
	"github.com/mdouchement/resumable/internal/webserver/weberror"
	"github.com/pkg/errors"
)

type (
	uploads struct {
		logger  logger.Logger
		service *upload.Service
	}

	checkParams struct {
		FileHash string `json:"fileHash" form:"fileHash"`
	}

	mergeParams struct {
		FileHash string `json:"fileHash" form:"fileHash"`
		FileName string `json:"fileName" form:"fileName"`
		Total    int    `json:"total"    form:"total"`
	}
)

func (h *uploads) CheckUploaded(c echo.Context) error {
	c.Set("handler_method", "uploads.CheckUploaded")

	var params checkParams
	if err := c.Bind(&params); err != nil {
		return weberror.New(http.StatusBadRequest, err.Error())
	}

	status, err := h.service.CheckUploaded(c.Request().Context(), params.FileHash)
	if err != nil {
		return failure(err)
	}

	return c.JSON(http.StatusOK, serializer.Status(status))
}

func (h *uploads) Upload(c echo.Context) error {
	c.Set("handler_method", "uploads.Upload")

	index, err := strconv.Atoi(c.FormValue("chunkIndex"))
	if err != nil {
		return weberror.New(http.StatusBadRequest, "invalid chunkIndex")
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return weberror.New(http.StatusBadRequest, "missing file")
	}

	f, err := fh.Open()
	if err != nil {
		return weberror.New(http.StatusInternalServerError, err.Error())
	}
	defer f.Close()

	//

	_, err = h.service.ReceiveChunk(c.Request().Context(), c.FormValue("fileHash"), index, f)
	if err != nil {
		return failure(err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "ok",
	})
}

func (h *uploads) Merge(c echo.Context) error {
	c.Set("handler_method", "uploads.Merge")

	var params mergeParams
	if err := c.Bind(&params); err != nil {
		return weberror.New(http.StatusBadRequest, err.Error())
	}

	session, err := h.service.MergeChunks(c.Request().Context(), params.FileHash, params.FileName, params.Total)
	if err != nil {
		return failure(err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message":  "ok",
		"size":     session.Size,
		"checksum": session.Checksum,
	})
}

func (h *uploads) Show(c echo.Context) error {
	c.Set("handler_method", "uploads.Show")

	hash, err := hashParam(c)
	if err != nil {
		return err
	}

	session, chunks, err := h.service.Session(c.Request().Context(), hash)
	if err != nil {
		return failure(err)
	}

	return c.JSON(http.StatusOK, serializer.Session(session, chunks))
}

func (h *uploads) Abort(c echo.Context) error {
	c.Set("handler_method", "uploads.Abort")

	hash, err := hashParam(c)
	if err != nil {
		return err
	}

	err = h.service.Abort(c.Request().Context(), hash)
	if err != nil {
		return failure(err)
	}

	return c.NoContent(http.StatusNoContent)
}

// hashParam returns the unescaped hash path segment.
func hashParam(c echo.Context) (string, error) {
	hash, err := url.PathUnescape(c.Param("hash"))
	if err != nil {
		return "", weberror.New(http.StatusBadRequest, "malformed hash")
	}
	return hash, nil
}

// failure translates the upload errors into rendered errors.
func failure(err error) error {
	var merr *upload.MergeError
	if errors.As(err, &merr) {
		code := http.StatusInternalServerError
		if storage.IsNotFound(err) || errors.Is(err, upload.ErrChecksumMismatch) {
			code = http.StatusUnprocessableEntity
		}

		if merr.Index < 0 {
			return weberror.New(code, err.Error())
		}
		return weberror.NewChunk(code, err.Error(), merr.Index)
	}

	switch {
	case errors.Is(err, upload.ErrInvalid):
		return weberror.New(http.StatusBadRequest, err.Error())
	case errors.Is(err, upload.ErrConflict):
		return weberror.New(http.StatusConflict, err.Error())
	case errors.Is(err, upload.ErrTooLarge):
		return weberror.New(http.StatusRequestEntityTooLarge, err.Error())
	case storage.IsNotFound(err):
		return weberror.New(http.StatusNotFound, err.Error())
	}
	return weberror.New(http.StatusInternalServerError, err.Error())
}
