package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"pharmacy-service/internal/importer"
	"pharmacy-service/internal/middleware"
	"pharmacy-service/internal/models"
)

// ImportFormat represents the file format of an import template
type ImportFormat string

const (
	ImportFormatJSON ImportFormat = "json"
	ImportFormatCSV  ImportFormat = "csv"
	ImportFormatXLSX ImportFormat = "xlsx"
)

// DefaultMaxUploadBytes caps an uploaded import file
const DefaultMaxUploadBytes = 10 << 20

type ImportHandler struct {
	importer       *importer.Importer
	maxUploadBytes int64
	logger         *logrus.Entry
}

func NewImportHandler(im *importer.Importer, maxUploadBytes int64, logger *logrus.Logger) *ImportHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &ImportHandler{
		importer:       im,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.WithField("component", "import-handler"),
	}
}

// GetImportTemplate returns the inventory import template as JSON, CSV or XLSX
func (h *ImportHandler) GetImportTemplate(c *gin.Context) {
	template := importer.InventoryImportTemplate()

	switch ImportFormat(strings.ToLower(c.DefaultQuery("format", "json"))) {
	case ImportFormatCSV:
		var buf bytes.Buffer
		if err := importer.WriteCSVTemplate(&buf, template); err != nil {
			h.logger.WithError(err).Error("Failed to generate CSV template")
			respondError(c, http.StatusInternalServerError, "TEMPLATE_FAILED", "Failed to generate template")
			return
		}
		c.Header("Content-Disposition", "attachment; filename=inventory_import_template.csv")
		c.Data(http.StatusOK, "text/csv", buf.Bytes())
	case ImportFormatXLSX:
		var buf bytes.Buffer
		if err := importer.WriteXLSXTemplate(&buf, template); err != nil {
			h.logger.WithError(err).Error("Failed to generate XLSX template")
			respondError(c, http.StatusInternalServerError, "TEMPLATE_FAILED", "Failed to generate template")
			return
		}
		c.Header("Content-Disposition", "attachment; filename=inventory_import_template.xlsx")
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
	case ImportFormatJSON:
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    template,
		})
	default:
		respondError(c, http.StatusBadRequest, "INVALID_FORMAT", "format must be json, csv or xlsx")
	}
}

// ImportInventory parses, validates and writes an uploaded file in one
// request. With validateOnly=true nothing is written.
func (h *ImportHandler) ImportInventory(c *gin.Context) {
	pharmacyID := middleware.GetPharmacyID(c)

	file, fileName, ok := h.uploadedFile(c)
	if !ok {
		return
	}
	defer file.Close()
	validateOnly, _ := strconv.ParseBool(c.DefaultPostForm("validateOnly", c.Query("validateOnly")))

	report, err := h.importer.Run(c.Request.Context(), importer.RunRequest{
		PharmacyID:   pharmacyID,
		Actor:        middleware.GetActor(c),
		FileName:     fileName,
		File:         file,
		ValidateOnly: validateOnly,
	})
	if err != nil && report == nil {
		h.importError(c, err)
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("pharmacy_id", pharmacyID).Warn("Inventory import halted")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   models.Error{Code: "IMPORT_FAILED", Message: err.Error()},
			"data":    report,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    report,
	})
}

// OpenSession starts an import session that waits for a file
func (h *ImportHandler) OpenSession(c *gin.Context) {
	view, err := h.importer.Open(middleware.GetPharmacyID(c), middleware.GetActor(c))
	if err != nil {
		h.importError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.SuccessResponse{Success: true, Data: view})
}

// GetSession returns the state, preview, progress and report of a session
func (h *ImportHandler) GetSession(c *gin.Context) {
	view, err := h.importer.Get(middleware.GetPharmacyID(c), c.Param("id"))
	if err != nil {
		h.importError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: view})
}

// UploadSessionFile loads a file into a session and returns its preview
func (h *ImportHandler) UploadSessionFile(c *gin.Context) {
	file, fileName, ok := h.uploadedFile(c)
	if !ok {
		return
	}
	defer file.Close()

	preview, err := h.importer.Load(middleware.GetPharmacyID(c), c.Param("id"), fileName, file)
	if err != nil {
		h.importError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: preview})
}

// ConfirmSession starts writing the previewed valid rows. Poll the session
// for progress and the final report.
func (h *ImportHandler) ConfirmSession(c *gin.Context) {
	view, err := h.importer.Confirm(c.Request.Context(), middleware.GetPharmacyID(c), c.Param("id"))
	if err != nil {
		h.importError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, models.SuccessResponse{Success: true, Data: view})
}

// CancelSession drops a loaded file and idles the session
func (h *ImportHandler) CancelSession(c *gin.Context) {
	view, err := h.importer.Cancel(middleware.GetPharmacyID(c), c.Param("id"))
	if err != nil {
		h.importError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: view})
}

// RestartSession puts an idle, completed or failed session back to waiting for a file
func (h *ImportHandler) RestartSession(c *gin.Context) {
	view, err := h.importer.Reopen(middleware.GetPharmacyID(c), c.Param("id"))
	if err != nil {
		h.importError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: view})
}

// DeleteSession discards a session
func (h *ImportHandler) DeleteSession(c *gin.Context) {
	if err := h.importer.Discard(middleware.GetPharmacyID(c), c.Param("id")); err != nil {
		h.importError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Message: stringPtr("Import session discarded"),
	})
}

func (h *ImportHandler) uploadedFile(c *gin.Context) (multipart.File, string, bool) {
	if c.Request.ContentLength > h.maxUploadBytes {
		respondError(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", fmt.Sprintf("File exceeds %d bytes", h.maxUploadBytes))
		return nil, "", false
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", fmt.Sprintf("File exceeds %d bytes", h.maxUploadBytes))
			return nil, "", false
		}
		respondError(c, http.StatusBadRequest, "FILE_REQUIRED", "Please upload a CSV or Excel file")
		return nil, "", false
	}

	file, err := header.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "FILE_REQUIRED", "Failed to read uploaded file")
		return nil, "", false
	}
	return file, header.Filename, true
}

// importError maps importer errors onto HTTP responses
func (h *ImportHandler) importError(c *gin.Context, err error) {
	var missing *importer.MissingColumnsError
	switch {
	case errors.As(err, &missing):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   models.Error{Code: "MISSING_COLUMNS", Message: missing.Error()},
			"data":    gin.H{"missingColumns": missing.Names()},
		})
	case errors.Is(err, importer.ErrUnsupportedFormat):
		respondError(c, http.StatusBadRequest, "INVALID_FORMAT", "Only CSV and XLSX files are supported")
	case errors.Is(err, importer.ErrEmptyFile):
		respondError(c, http.StatusBadRequest, "EMPTY_FILE", "The file contains no data rows")
	case errors.Is(err, importer.ErrSessionNotFound):
		respondError(c, http.StatusNotFound, "NOT_FOUND", "Import session not found")
	case errors.Is(err, importer.ErrInvalidTransition):
		respondError(c, http.StatusConflict, "INVALID_STATE", err.Error())
	case errors.Is(err, importer.ErrUnreadableFile):
		respondError(c, http.StatusBadRequest, "PARSE_ERROR", err.Error())
	default:
		h.logger.WithError(err).WithField("pharmacy_id", middleware.GetPharmacyID(c)).Error("Import request failed")
		respondError(c, http.StatusInternalServerError, "IMPORT_FAILED", "Import failed")
	}
}
