package usecase

import (
	"errors"
	"testing"

	reportdomain "dmarcview-backend/internal/report/domain"
	syncdomain "dmarcview-backend/internal/sync/domain"
)

type fakeParser struct {
	report *reportdomain.ReportData
	err    error
}

func (p *fakeParser) Parse(xml string) (*reportdomain.ReportData, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.report, nil
}

type fakeReportRepo struct {
	existing  map[string]bool // keyed userID|reportID|org
	saved     int
	saveErr   error
	existsErr error
}

func newFakeReportRepo() *fakeReportRepo {
	return &fakeReportRepo{existing: make(map[string]bool)}
}

func (r *fakeReportRepo) Exists(userID, reportID, orgName string) (bool, error) {
	if r.existsErr != nil {
		return false, r.existsErr
	}
	return r.existing[userID+"|"+reportID+"|"+orgName], nil
}

func (r *fakeReportRepo) Save(report *reportdomain.ReportData, rawXML, userID string) (string, error) {
	if r.saveErr != nil {
		return "", r.saveErr
	}
	r.saved++
	r.existing[userID+"|"+report.ReportMetadata.ReportID+"|"+report.ReportMetadata.OrgName] = true
	return "saved-id", nil
}

func (r *fakeReportRepo) CheckDuplicate(reportID, userID string) (bool, error) {
	for key := range r.existing {
		if key == userID+"|"+reportID+"|"+"org" {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeReportRepo) ListByUser(userID string, limit int) ([]*reportdomain.DmarcReport, error) {
	return nil, nil
}

func sampleParsed() *reportdomain.ReportData {
	return &reportdomain.ReportData{
		ReportMetadata: reportdomain.ReportMetadata{ReportID: "r1", OrgName: "org"},
	}
}

func TestIngestPayloadStoresNewReport(t *testing.T) {
	repo := newFakeReportRepo()
	svc := NewIngestService(&fakeParser{report: sampleParsed()}, repo)

	outcome, err := svc.IngestPayload("<feedback/>", "user-1")
	if err != nil {
		t.Fatalf("IngestPayload: %v", err)
	}
	if outcome != syncdomain.OutcomeProcessed {
		t.Fatalf("outcome=%s, want processed", outcome)
	}
	if repo.saved != 1 {
		t.Fatalf("saved=%d, want 1", repo.saved)
	}
}

func TestIngestPayloadDuplicateIsSkippedNotError(t *testing.T) {
	repo := newFakeReportRepo()
	svc := NewIngestService(&fakeParser{report: sampleParsed()}, repo)

	if _, err := svc.IngestPayload("<feedback/>", "user-1"); err != nil {
		t.Fatal(err)
	}

	outcome, err := svc.IngestPayload("<feedback/>", "user-1")
	if err != nil {
		t.Fatalf("duplicate must not be an error, got %v", err)
	}
	if outcome != syncdomain.OutcomeSkipped {
		t.Fatalf("outcome=%s, want skipped", outcome)
	}
	if repo.saved != 1 {
		t.Fatalf("saved=%d, want 1: duplicate must not be stored twice", repo.saved)
	}
}

func TestIngestPayloadSameReportDifferentUsers(t *testing.T) {
	repo := newFakeReportRepo()
	svc := NewIngestService(&fakeParser{report: sampleParsed()}, repo)

	if outcome, _ := svc.IngestPayload("<feedback/>", "user-1"); outcome != syncdomain.OutcomeProcessed {
		t.Fatal("first user should store the report")
	}
	if outcome, _ := svc.IngestPayload("<feedback/>", "user-2"); outcome != syncdomain.OutcomeProcessed {
		t.Fatal("deduplication is per user, second user must store it too")
	}
}

func TestIngestPayloadParseFailure(t *testing.T) {
	repo := newFakeReportRepo()
	svc := NewIngestService(&fakeParser{err: errors.New("bad xml")}, repo)

	outcome, err := svc.IngestPayload("not xml", "user-1")
	if err == nil {
		t.Fatal("expected parse error")
	}
	if outcome != syncdomain.OutcomeFailed {
		t.Fatalf("outcome=%s, want failed", outcome)
	}
}

func TestUploadReportDuplicate(t *testing.T) {
	repo := newFakeReportRepo()
	svc := NewIngestService(&fakeParser{report: sampleParsed()}, repo)

	if _, err := svc.UploadReport("<feedback/>", "user-1"); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	_, err := svc.UploadReport("<feedback/>", "user-1")
	if !errors.Is(err, ErrDuplicateReport) {
		t.Fatalf("got %v, want ErrDuplicateReport", err)
	}
}
