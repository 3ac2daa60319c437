package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fyerfyer/doc-ingest/api/model"
	"github.com/fyerfyer/doc-ingest/internal/models"
	"github.com/fyerfyer/doc-ingest/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantType string
	}{
		{"document not found", fmt.Errorf("lookup: %w", models.ErrDocumentNotFound), http.StatusNotFound, ErrorTypeNotFound},
		{"task not found", taskqueue.ErrTaskNotFound, http.StatusNotFound, ErrorTypeNotFound},
		{"invalid status", fmt.Errorf("%w: processing -> processing", models.ErrInvalidDocumentStatus), http.StatusConflict, ErrorTypeConflict},
		{"storage", fmt.Errorf("%w: disk full", models.ErrStorage), http.StatusServiceUnavailable, ErrorTypeUnavailable},
		{"app error passes through", NewValidationError("bad input"), http.StatusBadRequest, ErrorTypeValidation},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, ErrorTypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := FromError(tt.err)
			assert.Equal(t, tt.wantCode, appErr.Code)
			assert.Equal(t, tt.wantType, appErr.Type)
		})
	}
}

func setupRouter(handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	quiet := logrus.New()
	quiet.SetLevel(logrus.PanicLevel)
	SetLogger(quiet)

	r := gin.New()
	r.Use(SetTraceID(), ErrorMiddleware())
	r.GET("/test", handler)
	return r
}

func TestErrorMiddleware(t *testing.T) {
	t.Run("handled error", func(t *testing.T) {
		r := setupRouter(func(c *gin.Context) {
			HandleError(c, fmt.Errorf("get: %w", models.ErrDocumentNotFound))
		})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("X-Trace-ID", "trace-123")
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		var resp model.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, http.StatusNotFound, resp.Code)
		assert.Equal(t, "trace-123", resp.TraceID)
		assert.Equal(t, "trace-123", w.Header().Get("X-Trace-ID"))
	})

	t.Run("panic recovery", func(t *testing.T) {
		r := setupRouter(func(c *gin.Context) {
			panic("unexpected")
		})

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		var resp model.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "An unexpected error occurred", resp.Message)
		assert.NotEmpty(t, resp.TraceID)
	})

	t.Run("no error", func(t *testing.T) {
		r := setupRouter(func(c *gin.Context) {
			c.JSON(http.StatusOK, model.NewSuccessResponse(nil))
		})

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
