package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"alcyxob/notes-app/internal/logger"
	"alcyxob/notes-app/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRespondError(t *testing.T) {
	tests := []struct {
		err  error
		code int
		msg  string
	}{
		{service.ErrDocumentNotFound, http.StatusNotFound, service.ErrDocumentNotFound.Error()},
		{service.ErrVersionNotFound, http.StatusNotFound, service.ErrVersionNotFound.Error()},
		{service.ErrForbidden, http.StatusForbidden, service.ErrForbidden.Error()},
		{service.ErrAccessDenied, http.StatusForbidden, service.ErrAccessDenied.Error()},
		{service.ErrAlreadyPromoted, http.StatusConflict, service.ErrAlreadyPromoted.Error()},
		{service.ErrStampPending, http.StatusConflict, service.ErrStampPending.Error()},
		{service.ErrDocumentExists, http.StatusConflict, service.ErrDocumentExists.Error()},
		{service.ErrNothingToReplay, http.StatusConflict, service.ErrNothingToReplay.Error()},
		{fmt.Errorf("%w: document is pending", service.ErrInvalidState), http.StatusBadRequest, "operation not valid for the document's current status: document is pending"},
		{service.ErrReasonRequired, http.StatusBadRequest, service.ErrReasonRequired.Error()},
		{service.ErrRenderBusy, http.StatusServiceUnavailable, service.ErrRenderBusy.Error()},
		{errors.Join(service.ErrQueueUnavailable, errors.New("broker down")), http.StatusServiceUnavailable, "service temporarily unavailable, please retry"},
		{fmt.Errorf("%w: bucket notes: connection refused", service.ErrRenderFailed), http.StatusInternalServerError, "could not render document"},
		{errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			respondError(c, logger.Discard(), tt.err)

			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.msg, decode(t, w)["error"])
		})
	}
}

func TestRespondError_UploadReason(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	respondError(c, logger.Discard(), &service.UploadError{Reason: "file is not a readable PDF"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "invalid upload", body["error"])
	assert.Equal(t, "file is not a readable PDF", body["reason"])
}
