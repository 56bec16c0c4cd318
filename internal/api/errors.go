package api

import (
	"errors"
	"net/http"

	"alcyxob/notes-app/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// respondError maps a service error onto a status code and aborts. Anything
// unrecognised is logged and answered with a bare 500.
func respondError(c *gin.Context, log logrus.FieldLogger, err error) {
	var uploadErr *service.UploadError
	switch {
	case errors.As(err, &uploadErr):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": service.ErrInvalidUpload.Error(), "reason": uploadErr.Reason})

	case errors.Is(err, service.ErrDocumentNotFound),
		errors.Is(err, service.ErrVersionNotFound),
		errors.Is(err, service.ErrDeadLetterNotFound):
		abortWithError(c, http.StatusNotFound, err.Error())

	case errors.Is(err, service.ErrForbidden), errors.Is(err, service.ErrAccessDenied):
		abortWithError(c, http.StatusForbidden, err.Error())

	case errors.Is(err, service.ErrDocumentExists),
		errors.Is(err, service.ErrAlreadyPromoted),
		errors.Is(err, service.ErrStampPending),
		errors.Is(err, service.ErrAlreadyReplayed),
		errors.Is(err, service.ErrNothingToReplay):
		abortWithError(c, http.StatusConflict, err.Error())

	case errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrReasonRequired),
		errors.Is(err, service.ErrInvalidAction):
		abortWithError(c, http.StatusBadRequest, err.Error())

	case errors.Is(err, service.ErrRenderBusy):
		c.Header("Retry-After", "1")
		abortWithError(c, http.StatusServiceUnavailable, err.Error())

	case errors.Is(err, service.ErrQueueUnavailable), errors.Is(err, service.ErrStorageFailed):
		log.WithError(err).WithField("path", c.FullPath()).Error("dependency unavailable")
		abortWithError(c, http.StatusServiceUnavailable, "service temporarily unavailable, please retry")

	case errors.Is(err, service.ErrRenderFailed):
		// Detail was logged by the view service; clients only learn that rendering failed.
		abortWithError(c, http.StatusInternalServerError, service.ErrRenderFailed.Error())

	default:
		log.WithError(err).WithField("path", c.FullPath()).Error("unhandled error")
		abortWithError(c, http.StatusInternalServerError, "internal server error")
	}
}

// pathUUID parses a UUID path parameter, answering 400 when it is malformed.
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid "+name+" format")
		return uuid.Nil, false
	}
	return id, true
}
