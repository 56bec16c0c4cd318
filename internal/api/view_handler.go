package api

import (
	"fmt"
	"net/http"
	"strconv"

	"alcyxob/notes-app/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type ViewHandler struct {
	views service.ViewService
	log   logrus.FieldLogger
}

func NewViewHandler(views service.ViewService, log logrus.FieldLogger) *ViewHandler {
	return &ViewHandler{views: views, log: log}
}

// View godoc
// @Summary Stream the live document stamped for the caller
// @Tags Documents
// @Produce application/pdf
// @Param id path string true "Document UUID"
// @Success 200 {file} binary
// @Failure 403 {object} gin.H "Subscription required"
// @Failure 404 {object} gin.H "Not found, not approved or expired"
// @Failure 500 {object} gin.H "Could not render document"
// @Router /documents/{id}/view [get]
func (h *ViewHandler) View(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	caller, err := getIdentityFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user.")
		return
	}

	body, contentType, name, err := h.views.RenderForViewer(c.Request.Context(), id, caller)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%s", strconv.Quote(name)))
	c.Header("Content-Security-Policy", "frame-src 'self' blob:")
	c.Header("Cache-Control", "private, no-store")
	c.Data(http.StatusOK, contentType, body)
}
