package api

import (
	"net/http"
	"strconv"

	"alcyxob/notes-app/internal/domain"
	"alcyxob/notes-app/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const defaultDeadLetterPage = 50

type AdminHandler struct {
	letters service.DeadLetterService
	log     logrus.FieldLogger
}

func NewAdminHandler(letters service.DeadLetterService, log logrus.FieldLogger) *AdminHandler {
	return &AdminHandler{letters: letters, log: log}
}

// ListDeadLetters returns watermark jobs that are waiting for a manual replay.
func (h *AdminHandler) ListDeadLetters(c *gin.Context) {
	limit := int64(defaultDeadLetterPage)
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			abortWithError(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	letters, err := h.letters.List(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if letters == nil {
		letters = []domain.DeadLetter{}
	}
	c.JSON(http.StatusOK, letters)
}

func (h *AdminHandler) ReplayDeadLetter(c *gin.Context) {
	jobID, err := h.letters.Replay(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"jobId": jobID})
}
