package usecase

import (
	"errors"
	"fmt"
	"log"

	reportdomain "dmarcview-backend/internal/report/domain"
	"dmarcview-backend/internal/report/repository"
	syncdomain "dmarcview-backend/internal/sync/domain"
)

// ErrDuplicateReport marks an already-stored report on manual upload.
var ErrDuplicateReport = errors.New("report already exists")

// IngestService runs parse -> duplicate check -> save for one XML payload.
type IngestService interface {
	// IngestPayload returns the attachment outcome for one payload. A
	// duplicate report is OutcomeSkipped, not an error.
	IngestPayload(xml, userID string) (syncdomain.AttachmentOutcome, error)
	// UploadReport handles a manually uploaded report file.
	UploadReport(xml, userID string) (string, error)
}

type ingestService struct {
	parser     reportdomain.Parser
	reportRepo repository.ReportRepository
}

func NewIngestService(parser reportdomain.Parser, reportRepo repository.ReportRepository) IngestService {
	return &ingestService{
		parser:     parser,
		reportRepo: reportRepo,
	}
}

func (s *ingestService) IngestPayload(xml, userID string) (syncdomain.AttachmentOutcome, error) {
	report, err := s.parser.Parse(xml)
	if err != nil {
		return syncdomain.OutcomeFailed, fmt.Errorf("failed to parse report: %w", err)
	}

	meta := report.ReportMetadata
	exists, err := s.reportRepo.Exists(userID, meta.ReportID, meta.OrgName)
	if err != nil {
		return syncdomain.OutcomeFailed, fmt.Errorf("duplicate check failed: %w", err)
	}
	if exists {
		log.Printf("[Ingest] Skipping duplicate report %s from %s", meta.ReportID, meta.OrgName)
		return syncdomain.OutcomeSkipped, nil
	}

	if _, err := s.reportRepo.Save(report, xml, userID); err != nil {
		return syncdomain.OutcomeFailed, fmt.Errorf("failed to save report: %w", err)
	}
	return syncdomain.OutcomeProcessed, nil
}

func (s *ingestService) UploadReport(xml, userID string) (string, error) {
	report, err := s.parser.Parse(xml)
	if err != nil {
		return "", fmt.Errorf("failed to parse report: %w", err)
	}

	dup, err := s.reportRepo.CheckDuplicate(report.ReportMetadata.ReportID, userID)
	if err != nil {
		return "", err
	}
	if dup {
		return "", ErrDuplicateReport
	}

	return s.reportRepo.Save(report, xml, userID)
}
