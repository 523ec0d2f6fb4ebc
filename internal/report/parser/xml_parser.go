package parser

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"time"

	reportdomain "dmarcview-backend/internal/report/domain"
)

// feedback mirrors the RFC 7489 aggregate report schema, trimmed to the
// fields the application stores.
type feedback struct {
	XMLName        xml.Name `xml:"feedback"`
	ReportMetadata struct {
		OrgName   string `xml:"org_name"`
		Email     string `xml:"email"`
		ReportID  string `xml:"report_id"`
		DateRange struct {
			Begin int64 `xml:"begin"`
			End   int64 `xml:"end"`
		} `xml:"date_range"`
	} `xml:"report_metadata"`
	PolicyPublished struct {
		Domain string `xml:"domain"`
		Adkim  string `xml:"adkim"`
		Aspf   string `xml:"aspf"`
		P      string `xml:"p"`
		SP     string `xml:"sp"`
		Pct    string `xml:"pct"`
	} `xml:"policy_published"`
	Records []struct {
		Row struct {
			SourceIP        string `xml:"source_ip"`
			Count           int    `xml:"count"`
			PolicyEvaluated struct {
				Disposition string `xml:"disposition"`
				DKIM        string `xml:"dkim"`
				SPF         string `xml:"spf"`
			} `xml:"policy_evaluated"`
		} `xml:"row"`
		Identifiers struct {
			HeaderFrom string `xml:"header_from"`
		} `xml:"identifiers"`
	} `xml:"record"`
}

// XMLParser is the default aggregate report parser.
type XMLParser struct{}

func New() *XMLParser {
	return &XMLParser{}
}

func (p *XMLParser) Parse(payload string) (*reportdomain.ReportData, error) {
	var fb feedback
	if err := xml.Unmarshal([]byte(payload), &fb); err != nil {
		return nil, fmt.Errorf("malformed report XML: %w", err)
	}

	if fb.ReportMetadata.ReportID == "" {
		return nil, errors.New("report is missing report_id")
	}
	if fb.ReportMetadata.OrgName == "" {
		return nil, errors.New("report is missing org_name")
	}

	pct := 100
	if fb.PolicyPublished.Pct != "" {
		if parsed, err := strconv.Atoi(fb.PolicyPublished.Pct); err == nil {
			pct = parsed
		}
	}

	report := &reportdomain.ReportData{
		ReportMetadata: reportdomain.ReportMetadata{
			ReportID:  fb.ReportMetadata.ReportID,
			OrgName:   fb.ReportMetadata.OrgName,
			Email:     fb.ReportMetadata.Email,
			BeginDate: time.Unix(fb.ReportMetadata.DateRange.Begin, 0).UTC(),
			EndDate:   time.Unix(fb.ReportMetadata.DateRange.End, 0).UTC(),
		},
		PolicyPublished: reportdomain.PolicyPublished{
			Domain:          fb.PolicyPublished.Domain,
			Adkim:           fb.PolicyPublished.Adkim,
			Aspf:            fb.PolicyPublished.Aspf,
			Policy:          fb.PolicyPublished.P,
			SubdomainPolicy: fb.PolicyPublished.SP,
			Percentage:      pct,
		},
	}

	for _, rec := range fb.Records {
		report.Records = append(report.Records, reportdomain.ReportRecord{
			SourceIP:    rec.Row.SourceIP,
			Count:       rec.Row.Count,
			Disposition: rec.Row.PolicyEvaluated.Disposition,
			DKIMResult:  rec.Row.PolicyEvaluated.DKIM,
			SPFResult:   rec.Row.PolicyEvaluated.SPF,
			HeaderFrom:  rec.Identifiers.HeaderFrom,
		})
	}

	return report, nil
}
