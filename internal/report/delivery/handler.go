package delivery

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strconv"

	"dmarcview-backend/internal/report/repository"
	"dmarcview-backend/internal/report/usecase"
	"dmarcview-backend/pkg/attachment"

	syncdomain "dmarcview-backend/internal/sync/domain"

	"github.com/gin-gonic/gin"
)

type ReportHandler struct {
	ingest     usecase.IngestService
	reportRepo repository.ReportRepository
}

func NewReportHandler(ingest usecase.IngestService, reportRepo repository.ReportRepository) *ReportHandler {
	return &ReportHandler{
		ingest:     ingest,
		reportRepo: reportRepo,
	}
}

func (h *ReportHandler) ListReports(c *gin.Context) {
	userID := c.GetString("userID")

	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	reports, err := h.reportRepo.ListByUser(userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

// UploadReport accepts one report file (xml, gz or zip), runs it through the
// same codec the sync pipeline uses, and stores every contained report.
func (h *ReportHandler) UploadReport(c *gin.Context) {
	userID := c.GetString("userID")

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing report file"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	att := &syncdomain.CanonicalAttachment{
		Filename: fileHeader.Filename,
		Data:     base64.StdEncoding.EncodeToString(raw),
	}
	payloads, err := attachment.Decompress(att)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	var created []string
	duplicates := 0
	for _, payload := range payloads {
		id, err := h.ingest.UploadReport(payload, userID)
		if err != nil {
			if errors.Is(err, usecase.ErrDuplicateReport) {
				duplicates++
				continue
			}
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		created = append(created, id)
	}

	status := http.StatusCreated
	if len(created) == 0 {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"created":    created,
		"duplicates": duplicates,
	})
}
