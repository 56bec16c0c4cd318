package api

import (
	"context"
	"net/http"

	"alcyxob/notes-app/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type DocumentHandler struct {
	docs     service.DocumentService
	maxBytes int64
	log      logrus.FieldLogger
}

func NewDocumentHandler(docs service.DocumentService, maxBytes int64, log logrus.FieldLogger) *DocumentHandler {
	return &DocumentHandler{docs: docs, maxBytes: maxBytes, log: log}
}

type ReviewRequest struct {
	Action service.ReviewAction `json:"action" binding:"required"`
	Reason string               `json:"reason"`
}

// Upload godoc
// @Summary Upload a new document
// @Description Multipart form with file, title, materialType, isFree, expiresAt and metadata (JSON).
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Success 201 {object} domain.Document "Pending document"
// @Failure 400 {object} gin.H "Invalid upload, with reason"
// @Router /documents [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	h.upload(c, uuid.Nil)
}

// UploadWithID godoc
// @Summary Upload a new document under a client-chosen id
// @Tags Documents
// @Param id path string true "Document UUID"
// @Success 201 {object} domain.Document "Pending document"
// @Failure 409 {object} gin.H "Id already taken"
// @Router /documents/{id}/upload [post]
func (h *DocumentHandler) UploadWithID(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	h.upload(c, id)
}

func (h *DocumentHandler) upload(c *gin.Context, id uuid.UUID) {
	caller, err := getIdentityFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user.")
		return
	}

	limitBody(c, h.maxBytes)
	in := service.UploadInput{DocumentID: id, Uploader: caller}
	in.File, in.ContentType, err = readFormFile(c, "file")
	if err == nil {
		err = uploadFields(c, &in)
	}
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	doc, err := h.docs.Upload(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	doc, err := h.docs.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// Delete removes the document, its versions and stored files. Owner or admin only.
func (h *DocumentHandler) Delete(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	caller, err := getIdentityFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user.")
		return
	}
	if err := h.docs.Delete(c.Request.Context(), caller, id); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DocumentHandler) AddFavorite(c *gin.Context) {
	h.favorite(c, h.docs.AddFavorite)
}

func (h *DocumentHandler) RemoveFavorite(c *gin.Context) {
	h.favorite(c, h.docs.RemoveFavorite)
}

func (h *DocumentHandler) favorite(c *gin.Context, op func(ctx context.Context, userID, documentID uuid.UUID) error) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	caller, err := getIdentityFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user.")
		return
	}
	if err := op(c.Request.Context(), caller.UserID, id); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Download returns a short-lived presigned URL to the raw live master. Admin only.
func (h *DocumentHandler) Download(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	url, err := h.docs.DownloadURL(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *DocumentHandler) ListPending(c *gin.Context) {
	docs, err := h.docs.ListPending(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

// Review godoc
// @Summary Approve or reject a pending document
// @Tags Admin
// @Accept json
// @Param id path string true "Document UUID"
// @Param review body ReviewRequest true "approve | reject, with reason for rejections"
// @Success 200 {object} domain.Document
// @Failure 409 {object} gin.H "Upload stamp not finished yet"
// @Router /documents/{id}/review [put]
func (h *DocumentHandler) Review(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	doc, err := h.docs.Review(c.Request.Context(), id, req.Action, req.Reason)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}
