package webserver

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/mdouchement/logger"
	"github.com/mdouchement/resumable/internal/database"
	"github.com/mdouchement/resumable/internal/storage"
	"github.com/mdouchement/resumable/internal/upload"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*echo.Echo, string) {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	db, err := database.StormOpen(filepath.Join(t.TempDir(), "resumable.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	workspace := t.TempDir()
	ctrl := Controller{
		Version: "test",
		Logger:  logger.WrapLogrus(log),
		Service: upload.NewService(upload.Options{
			Logger:   logger.WrapLogrus(log),
			Database: db,
			Storage:  storage.NewFileSystem(workspace),
			Staging:  storage.NewStaging(filepath.Join(workspace, ".staging")),
		}),
	}

	return EchoEngine(ctrl), workspace
}

func serve(e *echo.Echo, req *http.Request) (int, map[string]interface{}) {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var payload map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &payload)
	return rec.Code, payload
}

func chunk(t *testing.T, path, hash string, index int, content string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("fileHash", hash))
	require.NoError(t, w.WriteField("chunkIndex", strconv.Itoa(index)))

	part, err := w.CreateFormFile("file", "blob")
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func jsonRequest(method, path string, params interface{}) *http.Request {
	payload, _ := json.Marshal(params)

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestUploadAndMerge(t *testing.T) {
	e, workspace := setup(t)

	code, payload := serve(e, jsonRequest(http.MethodPost, "/checkUploaded", echo.Map{"fileHash": "abc"}))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, payload["isUploaded"])
	assert.Equal(t, []interface{}{}, payload["uploaded"])

	// Out of order, through the dev proxy prefix for one of them.
	for _, i := range []int{2, 0} {
		code, payload = serve(e, chunk(t, "/upload", "abc", i, []string{"AA", "BB", "CC"}[i]))
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok", payload["message"])
	}
	code, _ = serve(e, chunk(t, "/api/upload", "abc", 1, "BB"))
	assert.Equal(t, http.StatusOK, code)

	code, payload = serve(e, jsonRequest(http.MethodPost, "/checkUploaded", echo.Map{"fileHash": "abc"}))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, payload["isUploaded"])
	assert.Equal(t, []interface{}{0.0, 1.0, 2.0}, payload["uploaded"])

	code, payload = serve(e, jsonRequest(http.MethodPost, "/merge", echo.Map{
		"fileHash": "abc",
		"fileName": "out.bin",
		"total":    3,
	}))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", payload["message"])
	assert.Equal(t, 6.0, payload["size"])

	content, err := os.ReadFile(filepath.Join(workspace, "out.bin"))
	assert.NoError(t, err)
	assert.Equal(t, "AABBCC", string(content))

	for _, key := range []string{"abc-0", "abc-1", "abc-2"} {
		assert.NoFileExists(t, filepath.Join(workspace, key))
	}

	code, payload = serve(e, httptest.NewRequest(http.MethodGet, "/sessions/abc", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "out.bin", payload["file_name"])
	assert.Equal(t, true, payload["merged"])
}

func TestCheckUploaded_Form(t *testing.T) {
	e, _ := setup(t)

	code, _ := serve(e, chunk(t, "/upload", "abc", 0, "AA"))
	require.Equal(t, http.StatusOK, code)

	form := url.Values{"fileHash": {"abc"}}
	req := httptest.NewRequest(http.MethodPost, "/checkUploaded", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)

	code, payload := serve(e, req)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, payload["isUploaded"])
}

func TestMerge_MissingChunk(t *testing.T) {
	e, workspace := setup(t)

	for _, i := range []int{0, 1, 3, 4} {
		code, _ := serve(e, chunk(t, "/upload", "abc", i, "xx"))
		require.Equal(t, http.StatusOK, code)
	}

	code, payload := serve(e, jsonRequest(http.MethodPost, "/merge", echo.Map{
		"fileHash": "abc",
		"fileName": "out.bin",
		"total":    5,
	}))
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, 2.0, payload["chunk"])
	assert.Contains(t, payload["message"], "abc-2")

	assert.NoFileExists(t, filepath.Join(workspace, "out.bin"))
	assert.FileExists(t, filepath.Join(workspace, "abc-0"))
}

func TestBadRequests(t *testing.T) {
	e, _ := setup(t)

	code, _ := serve(e, chunk(t, "/upload", "a/b", 0, "xx"))
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = serve(e, httptest.NewRequest(http.MethodPost, "/upload", nil))
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = serve(e, jsonRequest(http.MethodPost, "/merge", echo.Map{
		"fileHash": "abc",
		"fileName": "../out.bin",
		"total":    1,
	}))
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = serve(e, jsonRequest(http.MethodPost, "/merge", echo.Map{
		"fileHash": "abc",
		"fileName": "out.bin",
		"total":    0,
	}))
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSessions(t *testing.T) {
	e, workspace := setup(t)

	code, _ := serve(e, httptest.NewRequest(http.MethodGet, "/sessions/abc", nil))
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = serve(e, chunk(t, "/upload", "abc", 0, "xx"))
	require.Equal(t, http.StatusOK, code)

	code, payload := serve(e, httptest.NewRequest(http.MethodGet, "/sessions/abc", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, payload["merged"])
	assert.Len(t, payload["chunks"], 1)

	code, _ = serve(e, httptest.NewRequest(http.MethodDelete, "/sessions/abc", nil))
	assert.Equal(t, http.StatusNoContent, code)
	assert.NoFileExists(t, filepath.Join(workspace, "abc-0"))

	code, _ = serve(e, httptest.NewRequest(http.MethodGet, "/sessions/abc", nil))
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPercentNames(t *testing.T) {
	e, workspace := setup(t)

	code, _ := serve(e, chunk(t, "/upload", "x%41", 0, "xx"))
	require.Equal(t, http.StatusOK, code)
	assert.FileExists(t, filepath.Join(workspace, "x%41-0"))
	assert.NoFileExists(t, filepath.Join(workspace, "xA-0"))

	code, payload := serve(e, httptest.NewRequest(http.MethodGet, "/sessions/x%2541", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "x%41", payload["hash"])

	code, _ = serve(e, httptest.NewRequest(http.MethodGet, "/sessions/xA", nil))
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = serve(e, jsonRequest(http.MethodPost, "/merge", echo.Map{
		"fileHash": "x%41",
		"fileName": "report%20v1.bin",
		"total":    1,
	}))
	assert.Equal(t, http.StatusOK, code)
	assert.FileExists(t, filepath.Join(workspace, "report%20v1.bin"))
	assert.NoFileExists(t, filepath.Join(workspace, "report v1.bin"))
}

func TestGeneric(t *testing.T) {
	e, _ := setup(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/success", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Success!", rec.Body.String())

	code, payload := serve(e, httptest.NewRequest(http.MethodGet, "/api/version", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "test", payload["version"])
}
