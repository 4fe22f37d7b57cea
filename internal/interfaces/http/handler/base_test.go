package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/mallstock/backend/internal/domain/shared"
	"github.com/mallstock/backend/internal/interfaces/http/dto"
	"github.com/mallstock/backend/internal/interfaces/http/middleware"
)

func TestBaseHandler_HandleError(t *testing.T) {
	h := &BaseHandler{}

	serve := func(err error) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		h.HandleError(c, err)
		return w
	}

	t.Run("domain error maps to its status and code", func(t *testing.T) {
		w := serve(shared.ErrInsufficientStock)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, w.Body.String(), dto.ErrCodeInsufficientStock)
	})

	t.Run("wrapped domain error is unwrapped", func(t *testing.T) {
		w := serve(shared.ErrNotFound.WithMessage("no such stock record"))
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "no such stock record")
	})

	t.Run("plain error maps to 500", func(t *testing.T) {
		w := serve(errors.New("boom"))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), dto.ErrCodeInternal)
		// internal details never leak to the caller
		assert.NotContains(t, w.Body.String(), "boom")
	})
}

func TestGetOperatorID(t *testing.T) {
	t.Run("prefers JWT claims", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		c.Request.Header.Set("X-Operator-ID", "7")
		c.Set(middleware.JWTOperatorIDKey, int64(42))

		assert.Equal(t, int64(42), getOperatorID(c))
	})

	t.Run("falls back to header", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		c.Request.Header.Set("X-Operator-ID", "7")

		assert.Equal(t, int64(7), getOperatorID(c))
	})

	t.Run("defaults to system operator", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

		assert.Equal(t, int64(0), getOperatorID(c))
	})
}
