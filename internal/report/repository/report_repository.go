package repository

import (
	"errors"
	"time"

	reportdomain "dmarcview-backend/internal/report/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReportRepository persists parsed DMARC reports and answers the
// authoritative report-level duplicate checks.
type ReportRepository interface {
	Exists(userID, reportID, orgName string) (bool, error)
	Save(report *reportdomain.ReportData, rawXML, userID string) (string, error)
	CheckDuplicate(reportID, userID string) (bool, error)
	ListByUser(userID string, limit int) ([]*reportdomain.DmarcReport, error)
}

type reportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db}
}

// Exists checks for an existing row matching (userID, reportID, orgName).
func (r *reportRepository) Exists(userID, reportID, orgName string) (bool, error) {
	var row reportdomain.DmarcReport
	err := r.db.Where("user_id = ? AND report_id = ? AND org_name = ?", userID, reportID, orgName).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *reportRepository) Save(report *reportdomain.ReportData, rawXML, userID string) (string, error) {
	row := &reportdomain.DmarcReport{
		ID:          uuid.New().String(),
		UserID:      userID,
		ReportID:    report.ReportMetadata.ReportID,
		OrgName:     report.ReportMetadata.OrgName,
		OrgEmail:    report.ReportMetadata.Email,
		Domain:      report.PolicyPublished.Domain,
		BeginDate:   report.ReportMetadata.BeginDate,
		EndDate:     report.ReportMetadata.EndDate,
		RecordCount: len(report.Records),
		RawXML:      rawXML,
		CreatedAt:   time.Now(),
	}
	if err := r.db.Create(row).Error; err != nil {
		return "", err
	}
	return row.ID, nil
}

// CheckDuplicate is used by manual upload, which has no org context yet.
func (r *reportRepository) CheckDuplicate(reportID, userID string) (bool, error) {
	var count int64
	err := r.db.Model(&reportdomain.DmarcReport{}).
		Where("user_id = ? AND report_id = ?", userID, reportID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *reportRepository) ListByUser(userID string, limit int) ([]*reportdomain.DmarcReport, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []*reportdomain.DmarcReport
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
