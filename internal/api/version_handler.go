package api

import (
	"net/http"

	"alcyxob/notes-app/internal/domain"
	"alcyxob/notes-app/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type VersionHandler struct {
	versions service.VersionService
	maxBytes int64
	log      logrus.FieldLogger
}

func NewVersionHandler(versions service.VersionService, maxBytes int64, log logrus.FieldLogger) *VersionHandler {
	return &VersionHandler{versions: versions, maxBytes: maxBytes, log: log}
}

type PromoteResponse struct {
	Document *domain.Document        `json:"document"`
	Version  *domain.DocumentVersion `json:"version"`
}

// Submit godoc
// @Summary Submit a new version of an approved document
// @Tags Versions
// @Accept multipart/form-data
// @Param id path string true "Document UUID"
// @Param file formData file true "PDF"
// @Param newTitle formData string true "Title the document takes once promoted"
// @Success 201 {object} domain.DocumentVersion
// @Failure 400 {object} gin.H "Missing fields, bad file or document not approved"
// @Failure 403 {object} gin.H "Not the owner"
// @Failure 404 {object} gin.H "Document not found"
// @Router /documents/{id}/versions [post]
func (h *VersionHandler) Submit(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	caller, err := getIdentityFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user.")
		return
	}

	limitBody(c, h.maxBytes)
	file, contentType, err := readFormFile(c, "file")
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	version, err := h.versions.SubmitVersion(c.Request.Context(), id, caller, c.PostForm("newTitle"), file, contentType)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, version)
}

func (h *VersionHandler) List(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	versions, err := h.versions.ListVersions(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if versions == nil {
		versions = []domain.DocumentVersion{}
	}
	c.JSON(http.StatusOK, versions)
}

// Promote godoc
// @Summary Make a version the live document
// @Tags Admin
// @Param id path string true "Version UUID"
// @Success 200 {object} PromoteResponse
// @Failure 404 {object} gin.H "Version not found"
// @Failure 409 {object} gin.H "Already live, or stamp not finished"
// @Router /versions/{id}/promote [put]
func (h *VersionHandler) Promote(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	doc, version, err := h.versions.PromoteVersion(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, PromoteResponse{Document: doc, Version: version})
}
