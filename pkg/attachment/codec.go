// Package attachment decompresses downloaded DMARC report attachments into
// XML payloads. Supported containers: raw XML, gzip, and zip archives that
// may hold several report files.
package attachment

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"strings"

	"dmarcview-backend/internal/sync/domain"
)

// DecodeBase64Payload decodes provider attachment data. Provider APIs emit
// URL-safe base64 without padding, so the alphabet is normalized and padding
// restored before the standard decode.
func DecodeBase64Payload(data string) ([]byte, error) {
	normalized := strings.TrimSpace(data)
	normalized = strings.ReplaceAll(normalized, "-", "+")
	normalized = strings.ReplaceAll(normalized, "_", "/")
	if pad := len(normalized) % 4; pad != 0 {
		normalized += strings.Repeat("=", 4-pad)
	}
	raw, err := base64.StdEncoding.DecodeString(normalized)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return raw, nil
}

// Decompress turns one attachment into one or more XML payloads. Zero
// payloads is a hard failure for the attachment.
func Decompress(att *domain.CanonicalAttachment) ([]string, error) {
	raw, err := DecodeBase64Payload(att.Data)
	if err != nil {
		return nil, err
	}

	name := strings.ToLower(att.Filename)
	var payloads []string

	switch {
	case strings.HasSuffix(name, ".xml"):
		payloads = []string{string(raw)}
	case strings.HasSuffix(name, ".gz") || strings.HasSuffix(name, ".gzip"):
		payload, err := inflateGzip(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress %s: %w", att.Filename, err)
		}
		payloads = []string{payload}
	case strings.HasSuffix(name, ".zip"):
		payloads, err = extractZip(raw, att.Filename)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported attachment format: %s", att.Filename)
	}

	for i, payload := range payloads {
		if err := validatePayload(payload, att.Filename); err != nil {
			return nil, fmt.Errorf("payload %d of %s: %w", i+1, att.Filename, err)
		}
	}

	return payloads, nil
}

func inflateGzip(raw []byte) (string, error) {
	reader, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// extractZip returns every .xml entry in the archive. A zip with no XML
// entries is an error naming the files that were found.
func extractZip(raw []byte, filename string) ([]string, error) {
	reader, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("failed to open zip archive %s: %w", filename, err)
	}

	var payloads []string
	var otherEntries []string

	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(entry.Name), ".xml") {
			otherEntries = append(otherEntries, entry.Name)
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open zip entry %s in %s: %w", entry.Name, filename, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read zip entry %s in %s: %w", entry.Name, filename, err)
		}
		payloads = append(payloads, string(data))
	}

	if len(payloads) == 0 {
		if len(otherEntries) > 0 {
			return nil, fmt.Errorf("zip archive %s contains no XML files (found: %s)", filename, strings.Join(otherEntries, ", "))
		}
		return nil, fmt.Errorf("zip archive %s is empty", filename)
	}

	return payloads, nil
}

// validatePayload checks the payload is plausibly XML. Missing DMARC markers
// are logged but accepted; the schema check belongs to the report parser.
func validatePayload(payload, filename string) error {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return fmt.Errorf("empty payload")
	}
	if !strings.HasPrefix(trimmed, "<") {
		return fmt.Errorf("payload does not look like XML")
	}
	if !strings.Contains(trimmed, "<feedback") && !strings.Contains(trimmed, "<report") {
		log.Printf("[Attachment] Payload from %s has no <feedback> or <report> marker, passing through to parser", filename)
	}
	return nil
}
