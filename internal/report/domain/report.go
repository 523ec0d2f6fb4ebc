package domain

import "time"

// ReportMetadata identifies one aggregate report.
type ReportMetadata struct {
	ReportID  string
	OrgName   string
	Email     string
	BeginDate time.Time
	EndDate   time.Time
}

// PolicyPublished is the DMARC policy the reporter observed for the domain.
type PolicyPublished struct {
	Domain          string
	Adkim           string
	Aspf            string
	Policy          string
	SubdomainPolicy string
	Percentage      int
}

// ReportRecord is one source-IP row from the aggregate report.
type ReportRecord struct {
	SourceIP    string
	Count       int
	Disposition string
	DKIMResult  string
	SPFResult   string
	HeaderFrom  string
}

// ReportData is the parsed form of one aggregate report XML.
type ReportData struct {
	ReportMetadata  ReportMetadata
	PolicyPublished PolicyPublished
	Records         []ReportRecord
}

// Parser is the external DMARC XML parser contract. It fails on malformed
// XML or missing mandatory fields (report id, org name).
type Parser interface {
	Parse(xml string) (*ReportData, error)
}

// DmarcReport is the stored report row. The unique index is the storage
// backstop against duplicate inserts.
type DmarcReport struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	UserID      string    `json:"user_id" gorm:"index;uniqueIndex:idx_report_identity;not null"`
	ReportID    string    `json:"report_id" gorm:"uniqueIndex:idx_report_identity;not null"`
	OrgName     string    `json:"org_name" gorm:"uniqueIndex:idx_report_identity;not null"`
	OrgEmail    string    `json:"org_email"`
	Domain      string    `json:"domain" gorm:"index"`
	BeginDate   time.Time `json:"begin_date"`
	EndDate     time.Time `json:"end_date"`
	RecordCount int       `json:"record_count"`
	RawXML      string    `json:"-" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
}
