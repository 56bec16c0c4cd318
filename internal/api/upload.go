package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"alcyxob/notes-app/internal/domain"
	"alcyxob/notes-app/internal/service"

	"github.com/gin-gonic/gin"
)

// multipartSlack covers the form fields that travel alongside the file.
const multipartSlack = 1 << 20

// limitBody caps the request body a little above the configured file limit,
// so oversized uploads fail before they are buffered.
func limitBody(c *gin.Context, maxBytes int64) {
	if maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartSlack)
	}
}

// readFormFile returns the bytes and declared content type of a multipart file field.
func readFormFile(c *gin.Context, field string) ([]byte, string, error) {
	header, err := c.FormFile(field)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", &service.UploadError{Reason: fmt.Sprintf("file exceeds the %d byte limit", tooLarge.Limit-multipartSlack)}
		}
		return nil, "", &service.UploadError{Reason: field + " is required"}
	}
	f, err := header.Open()
	if err != nil {
		return nil, "", fmt.Errorf("open multipart file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", fmt.Errorf("read multipart file: %w", err)
	}
	return data, header.Header.Get("Content-Type"), nil
}

// uploadFields parses the optional descriptive fields of an initial upload.
func uploadFields(c *gin.Context, in *service.UploadInput) error {
	in.Title = c.PostForm("title")
	in.MaterialType = domain.MaterialType(strings.ToLower(c.PostForm("materialType")))

	if raw := c.PostForm("isFree"); raw != "" {
		free, err := strconv.ParseBool(raw)
		if err != nil {
			return &service.UploadError{Reason: "isFree must be true or false"}
		}
		in.IsFree = free
	}
	if raw := c.PostForm("expiresAt"); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return &service.UploadError{Reason: "expiresAt must be an RFC 3339 timestamp"}
		}
		in.ExpiresAt = &at
	}
	if raw := c.PostForm("metadata"); raw != "" {
		meta := map[string]interface{}{}
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return &service.UploadError{Reason: "metadata must be a JSON object"}
		}
		in.Metadata = meta
	}
	return nil
}
