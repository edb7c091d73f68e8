// Package template fills office document templates. ODT and DOCX files are
// zip archives of XML; filling replaces {d.path} markers inside the XML
// entries with submitted values and leaves every other entry untouched.
package template

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// markerRe matches {d.some.path} placeholders.
var markerRe = regexp.MustCompile(`\{d\.([^{}]+)\}`)

// Fill reads the template at path and returns a copy with every {d.*}
// marker in its XML entries replaced by the matching value from data.
// Markers with no matching value are replaced by the empty string.
func Fill(path string, data map[string]any) ([]byte, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open template %s: %w", path, err)
	}
	defer zr.Close()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, entry := range zr.File {
		rc, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("open entry %s: %w", entry.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read entry %s: %w", entry.Name, err)
		}

		if strings.HasSuffix(entry.Name, ".xml") {
			content = substitute(content, data)
		}

		// Preserve name, method and timestamp so e.g. the ODF mimetype
		// entry stays stored uncompressed in first position. A fresh
		// header avoids carrying the reader's size/CRC fields along.
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     entry.Name,
			Method:   entry.Method,
			Modified: entry.Modified,
		})
		if err != nil {
			return nil, fmt.Errorf("write entry %s: %w", entry.Name, err)
		}
		if _, err := w.Write(content); err != nil {
			return nil, fmt.Errorf("write entry %s: %w", entry.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize document: %w", err)
	}
	return buf.Bytes(), nil
}

// Markers scans the template's XML entries and returns the distinct marker
// paths (without the {d. } wrapping) in order of first appearance.
func Markers(path string) ([]string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open template %s: %w", path, err)
	}
	defer zr.Close()

	seen := map[string]bool{}
	var markers []string
	for _, entry := range zr.File {
		if !strings.HasSuffix(entry.Name, ".xml") {
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("open entry %s: %w", entry.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read entry %s: %w", entry.Name, err)
		}
		for _, m := range markerRe.FindAllSubmatch(content, -1) {
			key := string(m[1])
			if !seen[key] {
				seen[key] = true
				markers = append(markers, key)
			}
		}
	}
	return markers, nil
}

// substitute replaces every marker in content with its looked-up value,
// XML-escaped.
func substitute(content []byte, data map[string]any) []byte {
	return markerRe.ReplaceAllFunc(content, func(m []byte) []byte {
		key := string(markerRe.FindSubmatch(m)[1])
		v, ok := lookup(data, key)
		if !ok {
			return nil
		}
		var esc bytes.Buffer
		_ = xml.EscapeText(&esc, []byte(fmt.Sprintf("%v", v)))
		return esc.Bytes()
	})
}

// lookup resolves a dotted path, first as a flat key (form submissions),
// then by walking nested maps (JSON submissions).
func lookup(data map[string]any, path string) (any, bool) {
	if v, ok := data[path]; ok {
		return v, true
	}
	parts := strings.Split(path, ".")
	var cur any = data
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
