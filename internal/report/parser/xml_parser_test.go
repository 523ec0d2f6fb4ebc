package parser

import (
	"strings"
	"testing"
	"time"
)

const sampleReport = `<?xml version="1.0" encoding="UTF-8"?>
<feedback>
  <report_metadata>
    <org_name>google.com</org_name>
    <email>noreply-dmarc-support@google.com</email>
    <report_id>8293579461</report_id>
    <date_range>
      <begin>1700000000</begin>
      <end>1700086400</end>
    </date_range>
  </report_metadata>
  <policy_published>
    <domain>example.org</domain>
    <adkim>r</adkim>
    <aspf>r</aspf>
    <p>quarantine</p>
    <sp>none</sp>
    <pct>100</pct>
  </policy_published>
  <record>
    <row>
      <source_ip>192.0.2.1</source_ip>
      <count>4</count>
      <policy_evaluated>
        <disposition>none</disposition>
        <dkim>pass</dkim>
        <spf>pass</spf>
      </policy_evaluated>
    </row>
    <identifiers>
      <header_from>example.org</header_from>
    </identifiers>
  </record>
  <record>
    <row>
      <source_ip>198.51.100.7</source_ip>
      <count>1</count>
      <policy_evaluated>
        <disposition>quarantine</disposition>
        <dkim>fail</dkim>
        <spf>fail</spf>
      </policy_evaluated>
    </row>
    <identifiers>
      <header_from>example.org</header_from>
    </identifiers>
  </record>
</feedback>`

func TestParseFullReport(t *testing.T) {
	report, err := New().Parse(sampleReport)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	meta := report.ReportMetadata
	if meta.ReportID != "8293579461" || meta.OrgName != "google.com" {
		t.Fatalf("metadata mismatch: %+v", meta)
	}
	if !meta.BeginDate.Equal(time.Unix(1700000000, 0).UTC()) {
		t.Fatalf("begin date %v", meta.BeginDate)
	}

	policy := report.PolicyPublished
	if policy.Domain != "example.org" || policy.Policy != "quarantine" || policy.Percentage != 100 {
		t.Fatalf("policy mismatch: %+v", policy)
	}

	if len(report.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(report.Records))
	}
	first := report.Records[0]
	if first.SourceIP != "192.0.2.1" || first.Count != 4 || first.DKIMResult != "pass" {
		t.Fatalf("first record mismatch: %+v", first)
	}
	second := report.Records[1]
	if second.Disposition != "quarantine" || second.SPFResult != "fail" {
		t.Fatalf("second record mismatch: %+v", second)
	}
}

func TestParseMalformedXML(t *testing.T) {
	if _, err := New().Parse("<feedback><unclosed>"); err == nil {
		t.Fatal("expected error for malformed XML")
	}
}

func TestParseMissingMandatoryFields(t *testing.T) {
	noID := strings.Replace(sampleReport, "<report_id>8293579461</report_id>", "", 1)
	if _, err := New().Parse(noID); err == nil || !strings.Contains(err.Error(), "report_id") {
		t.Fatalf("got %v, want missing report_id error", err)
	}

	noOrg := strings.Replace(sampleReport, "<org_name>google.com</org_name>", "", 1)
	if _, err := New().Parse(noOrg); err == nil || !strings.Contains(err.Error(), "org_name") {
		t.Fatalf("got %v, want missing org_name error", err)
	}
}

func TestParseDefaultsPercentage(t *testing.T) {
	noPct := strings.Replace(sampleReport, "<pct>100</pct>", "", 1)
	report, err := New().Parse(noPct)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if report.PolicyPublished.Percentage != 100 {
		t.Fatalf("pct=%d, want default 100", report.PolicyPublished.Percentage)
	}
}
