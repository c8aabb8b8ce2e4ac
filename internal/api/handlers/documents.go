// documents.go handles direct serving of rendered certificate documents from
// local storage backends. Only wired when the local backend has ServeDirectly
// enabled; with S3 the document URL is a presigned link and this route does
// not exist.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/edledger/edledger/internal/storage"
)

// ServeDocumentHandler implements GET /v1/documents/*docpath. Serving is
// restricted to the certificates/ prefix; the document store holds nothing
// else, and the restriction keeps this route from becoming a generic file
// server if that ever changes.
func ServeDocumentHandler(store storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		docPath := strings.TrimPrefix(c.Param("docpath"), "/")
		if !strings.HasPrefix(docPath, "certificates/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}

		exists, err := store.Exists(c.Request.Context(), docPath)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check document existence"})
			return
		}
		if !exists {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}

		metadata, err := store.GetMetadata(c.Request.Context(), docPath)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read document metadata"})
			return
		}

		reader, err := store.Download(c.Request.Context(), docPath)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read document"})
			return
		}
		defer reader.Close()

		c.Header("X-Checksum-SHA256", metadata.Checksum)
		c.DataFromReader(http.StatusOK, metadata.Size, "text/html; charset=utf-8", reader, nil)
	}
}
