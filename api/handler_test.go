package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadlane/delivery-ocr-service/internal/models"
)

func testHandler() *Handler {
	return NewHandler(&models.Config{
		Recognition: models.RecognitionConfig{
			DefaultProvider: "remote",
			Remote:          models.RemoteConfig{Endpoint: "http://recognition.test/v1/recognize"},
		},
	})
}

func TestSetupRoutes(t *testing.T) {
	router := testHandler().SetupRoutes()

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/process-document"},
		{http.MethodGet, "/api/documents"},
		{http.MethodGet, "/api/document/abc"},
		{http.MethodPut, "/api/document/abc"},
		{http.MethodDelete, "/api/document/abc"},
		{http.MethodPost, "/api/document/abc/stage"},
		{http.MethodGet, "/api/stats"},
		{http.MethodGet, "/health"},
		{http.MethodPost, "/api/slips/upload/"},
		{http.MethodGet, "/api/slips/my-slips/"},
		{http.MethodGet, "/api/slips/abc/image"},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.NotEqual(t, http.StatusNotFound, rec.Code, "%s %s should be routed", tc.method, tc.path)
	}
}

func TestProcessDocument_Unauthorized(t *testing.T) {
	h := testHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/process-document", strings.NewReader(""))
	rec := httptest.NewRecorder()

	h.ProcessDocument(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "unauthorized")
}

func TestGetDocuments_Unauthorized(t *testing.T) {
	h := testHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	rec := httptest.NewRecorder()

	h.GetDocuments(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateProvider(t *testing.T) {
	h := testHandler()

	p, err := h.createProvider("remote")
	require.NoError(t, err)
	assert.Equal(t, "remote", p.Name())

	p, err = h.createProvider("openai")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	p, err = h.createProvider("gemini")
	require.NoError(t, err)
	assert.Equal(t, "gemini", p.Name())

	_, err = h.createProvider("carrier-pigeon")
	assert.Error(t, err)
}
