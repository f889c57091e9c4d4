package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"tillpoint/internal/apierror"
	"tillpoint/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func errRouter(handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.ErrorHandler())
	r.GET("/t", handler)
	return r
}

func TestRespondErr_UnexpectedErrorWritesSingleEnvelope(t *testing.T) {
	r := errRouter(func(c *gin.Context) {
		respondErr(c, errors.New("pq: connection refused"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/t", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	// the body must be exactly one JSON document, not two concatenated ones
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "internal server error", body["detail"])
}

func TestRespondErr_DomainErrorMapsStatus(t *testing.T) {
	r := errRouter(func(c *gin.Context) {
		respondErr(c, apierror.NotFoundf("sale not found"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/t", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "sale not found", body["detail"])
}
