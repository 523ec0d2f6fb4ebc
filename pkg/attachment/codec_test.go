package attachment

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"strings"
	"testing"

	"dmarcview-backend/internal/sync/domain"
)

const sampleReport = `<?xml version="1.0"?><feedback><report_metadata><report_id>r1</report_id><org_name>example.org</org_name></report_metadata></feedback>`

func gzipPayload(t *testing.T, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func zipPayload(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func encode(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

func TestDecodeBase64PayloadURLSafe(t *testing.T) {
	raw := []byte{0xfb, 0xff, 0xfe, 0x01, 0x02}
	urlSafe := base64.RawURLEncoding.EncodeToString(raw)
	if !strings.ContainsAny(urlSafe, "-_") {
		t.Fatalf("test input %q should exercise the URL-safe alphabet", urlSafe)
	}

	decoded, err := DecodeBase64Payload(urlSafe)
	if err != nil {
		t.Fatalf("DecodeBase64Payload: %v", err)
	}
	if !bytes.Equal(decoded, raw) {
		t.Fatalf("decoded %v, want %v", decoded, raw)
	}
}

func TestDecodeBase64PayloadInvalid(t *testing.T) {
	if _, err := DecodeBase64Payload("not base64 !!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
}

func TestDecompressPlainXML(t *testing.T) {
	att := &domain.CanonicalAttachment{
		Filename: "google.com!example.org!1700000000!1700086400.xml",
		Data:     encode([]byte(sampleReport)),
	}

	payloads, err := Decompress(att)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if len(payloads) != 1 || payloads[0] != sampleReport {
		t.Fatalf("got %d payloads, want the original XML back", len(payloads))
	}
}

func TestDecompressGzip(t *testing.T) {
	att := &domain.CanonicalAttachment{
		Filename: "report.xml.gz",
		Data:     encode(gzipPayload(t, sampleReport)),
	}

	payloads, err := Decompress(att)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if len(payloads) != 1 || payloads[0] != sampleReport {
		t.Fatalf("gzip payload did not round-trip")
	}
}

func TestDecompressZipMultipleEntries(t *testing.T) {
	att := &domain.CanonicalAttachment{
		Filename: "reports.zip",
		Data: encode(zipPayload(t, map[string]string{
			"a.xml":      sampleReport,
			"b.xml":      sampleReport,
			"c.xml":      sampleReport,
			"readme.txt": "ignore me",
		})),
	}

	payloads, err := Decompress(att)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if len(payloads) != 3 {
		t.Fatalf("got %d payloads, want 3", len(payloads))
	}
}

func TestDecompressZipWithoutXMLNamesEntries(t *testing.T) {
	att := &domain.CanonicalAttachment{
		Filename: "reports.zip",
		Data: encode(zipPayload(t, map[string]string{
			"readme.txt": "nothing here",
		})),
	}

	_, err := Decompress(att)
	if err == nil {
		t.Fatal("expected error for zip without XML entries")
	}
	if !strings.Contains(err.Error(), "readme.txt") {
		t.Fatalf("error should name the entries found, got: %v", err)
	}
}

func TestDecompressUnsupportedExtension(t *testing.T) {
	att := &domain.CanonicalAttachment{
		Filename: "report.pdf",
		Data:     encode([]byte(sampleReport)),
	}

	if _, err := Decompress(att); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestDecompressCorruptGzip(t *testing.T) {
	att := &domain.CanonicalAttachment{
		Filename: "report.xml.gz",
		Data:     encode([]byte("definitely not gzip")),
	}

	if _, err := Decompress(att); err == nil {
		t.Fatal("expected error for corrupt gzip data")
	}
}

func TestDecompressRejectsNonXMLPayload(t *testing.T) {
	att := &domain.CanonicalAttachment{
		Filename: "report.xml",
		Data:     encode([]byte("plain text, no markup")),
	}

	if _, err := Decompress(att); err == nil {
		t.Fatal("expected error for payload that is not XML")
	}
}

func TestDecompressAcceptsSuspiciousButValidXML(t *testing.T) {
	// No <feedback> marker: logged as suspicious, still passed to the parser.
	att := &domain.CanonicalAttachment{
		Filename: "report.xml",
		Data:     encode([]byte(`<unknown><data/></unknown>`)),
	}

	payloads, err := Decompress(att)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if len(payloads) != 1 {
		t.Fatalf("got %d payloads, want 1", len(payloads))
	}
}
