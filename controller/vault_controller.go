package controller

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/knowledgevault/vault/models"
	"github.com/knowledgevault/vault/services"
	"github.com/knowledgevault/vault/storage"
)

// VaultController handles the HTTP requests for the knowledge vault. It
// depends on the VaultService to perform the actual business logic.
type VaultController struct {
	vault services.VaultService
}

// NewVaultController creates a new VaultController. This is called from
// main.go to inject the service dependency.
func NewVaultController(vault services.VaultService) *VaultController {
	return &VaultController{vault: vault}
}

// UploadDocuments is the Gin handler for POST /api/v1/documents. It accepts
// a multipart form with one or more files under the "files" field, saves
// each into the data directory, and indexes it. Partial failure is reported
// per file rather than aborting the batch.
func (c *VaultController) UploadDocuments(ctx *gin.Context) {
	form, err := ctx.MultipartForm()
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid multipart form: " + err.Error()})
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "No files provided under the 'files' field"})
		return
	}

	result := models.IngestResult{}
	for _, fileHeader := range files {
		f, err := fileHeader.Open()
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("Error opening %s: %v", fileHeader.Filename, err))
			continue
		}
		err = c.vault.IngestDocument(ctx.Request.Context(), fileHeader.Filename, f)
		f.Close()
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("Error processing %s: %v", fileHeader.Filename, err))
			continue
		}
		result.Processed++
	}

	status := http.StatusCreated
	if result.Processed == 0 {
		status = http.StatusUnprocessableEntity
	}
	ctx.JSON(status, result)
}

// ListDocuments is the Gin handler for GET /api/v1/documents.
func (c *VaultController) ListDocuments(ctx *gin.Context) {
	response, err := c.vault.ListSources(ctx.Request.Context())
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list documents"})
		return
	}
	ctx.JSON(http.StatusOK, response)
}

// DeleteDocument is the Gin handler for DELETE /api/v1/documents/:name.
func (c *VaultController) DeleteDocument(ctx *gin.Context) {
	name := ctx.Param("name")
	if err := c.vault.RemoveDocument(ctx.Request.Context(), name); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove document"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Document removed", "name": name})
}

// Query is the Gin handler for POST /api/v1/query. It parses the request,
// calls the service layer, and returns the HTTP response.
func (c *VaultController) Query(ctx *gin.Context) {
	var req models.QueryRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	response, err := c.vault.Query(ctx.Request.Context(), req.Question)
	if err != nil {
		// The service layer logs the underlying cause.
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate AI response"})
		return
	}
	ctx.JSON(http.StatusOK, response)
}

// GetHistory is the Gin handler for GET /api/v1/history. An optional
// ?limit=N query parameter caps the result to the most recent N exchanges.
func (c *VaultController) GetHistory(ctx *gin.Context) {
	limit, err := strconv.Atoi(ctx.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
		return
	}

	entries, err := c.vault.History(ctx.Request.Context(), limit)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve history"})
		return
	}
	ctx.JSON(http.StatusOK, models.HistoryResponse{Count: len(entries), Entries: entries})
}

// ExportHistory is the Gin handler for GET /api/v1/history/export. The
// format query parameter selects txt (default) or json output.
func (c *VaultController) ExportHistory(ctx *gin.Context) {
	entries, err := c.vault.History(ctx.Request.Context(), 0)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve history"})
		return
	}

	filename := fmt.Sprintf("chat_history_%s", time.Now().Format("20060102_150405"))
	switch ctx.DefaultQuery("format", "txt") {
	case "txt":
		ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.txt", filename))
		ctx.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(storage.ExportText(entries)))
	case "json":
		data, err := storage.ExportJSON(entries)
		if err != nil {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export history"})
			return
		}
		ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.json", filename))
		ctx.Data(http.StatusOK, "application/json", data)
	default:
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported export format"})
	}
}

// ClearHistory is the Gin handler for DELETE /api/v1/history.
func (c *VaultController) ClearHistory(ctx *gin.Context) {
	if err := c.vault.ClearHistory(ctx.Request.Context()); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear history"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Chat history cleared"})
}

// Health is the Gin handler for GET /health.
func (c *VaultController) Health(ctx *gin.Context) {
	count, err := c.vault.DocumentCount(ctx.Request.Context())
	if err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded",
			"error":  "vector store unreachable",
		})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "Personal Knowledge Vault",
		"version":   "1.0.0",
		"documents": count,
	})
}
