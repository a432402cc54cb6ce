package extraction

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	pdf "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/xuri/excelize/v2"
	"golang.org/x/net/html"
	"golang.org/x/text/encoding/charmap"

	"github.com/yungbote/exampaper-backend/internal/platform/apierr"
)

// extractBytes sniffs the real file type from its bytes first and only
// falls back to the declared name and MIME type for text-like content.
func (s *Service) extractBytes(ctx context.Context, name, mimeType string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	mt := strings.ToLower(strings.TrimSpace(mimeType))

	if isPDF(data) {
		return s.extractPDF(ctx, data)
	}
	if isZip(data) {
		kind, err := detectOpenXMLKind(data)
		if err != nil {
			return "", apierr.InvalidInput("unsupported archive %s: %v", name, err)
		}
		switch kind {
		case "docx":
			return extractDOCX(data)
		case "pptx":
			return extractPPTX(data)
		case "xlsx":
			return extractXLSX(data)
		}
	}
	if imageType := sniffImage(data, ext); imageType != "" {
		return s.recognize(ctx, data, imageType, "image "+name)
	}
	if looksLikeHTML(data) || mt == "text/html" || ext == ".html" || ext == ".htm" {
		return extractHTML(data), nil
	}
	if isProbablyText(data) || mt == "text/plain" || ext == ".txt" || ext == ".md" {
		return decodeText(data), nil
	}
	if mt == "application/pdf" || ext == ".pdf" {
		return "", apierr.InvalidInput("file claims pdf but has no %%PDF header: name=%s head=%s", name, firstBytesHex(data, 16))
	}
	return "", apierr.InvalidInput("unsupported file type: name=%s ext=%s mime=%s", name, ext, mimeType)
}

func isPDF(b []byte) bool {
	return len(b) >= 5 && string(b[:5]) == "%PDF-"
}

func isZip(b []byte) bool {
	return len(b) >= 4 && b[0] == 'P' && b[1] == 'K' && b[2] == 3 && b[3] == 4
}

func sniffImage(b []byte, ext string) string {
	if ct := http.DetectContentType(b); strings.HasPrefix(ct, "image/") {
		return ct
	}
	if len(b) >= 4 && (string(b[:4]) == "II*\x00" || string(b[:4]) == "MM\x00*") {
		return "image/tiff"
	}
	switch ext {
	case ".tif", ".tiff":
		return "image/tiff"
	}
	return ""
}

func looksLikeHTML(b []byte) bool {
	s := strings.ToLower(string(b[:min(len(b), 2048)]))
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "<!doctype html") || strings.HasPrefix(trimmed, "<html") {
		return true
	}
	return strings.Contains(s, "<html") && strings.Contains(s, "</html>")
}

func isProbablyText(b []byte) bool {
	sample := b[:min(len(b), 4096)]
	good := 0
	for _, c := range sample {
		if c == 0x00 {
			return false
		}
		if c == '\n' || c == '\r' || c == '\t' || (c >= 0x20 && c <= 0x7E) || c >= 0x80 {
			good++
		}
	}
	return float64(good)/float64(len(sample)) > 0.9
}

// decodeText reads UTF-8 and falls back to Latin-1 for anything else.
func decodeText(b []byte) string {
	b = bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))
	if utf8.Valid(b) {
		return string(b)
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "")
	}
	return string(out)
}

func firstBytesHex(b []byte, n int) string {
	return fmt.Sprintf("%x", b[:min(len(b), n)])
}

var pdfcpuOnce sync.Once

func (s *Service) extractPDF(ctx context.Context, data []byte) (string, error) {
	pdfcpuOnce.Do(api.DisableConfigDir)
	pages, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return "", apierr.InvalidInput("unreadable pdf: %v", err)
	}
	text, err := pdfTextLayer(data)
	if err != nil {
		s.log.Warn("PDF text layer unreadable, trying OCR", "pages", pages, "error", err)
	}
	if strings.TrimSpace(text) != "" {
		return text, nil
	}
	return s.recognize(ctx, data, "application/pdf", fmt.Sprintf("scanned pdf (%d pages)", pages))
}

func pdfTextLayer(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf plaintext: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("pdf read: %w", err)
	}
	return string(b), nil
}

func detectOpenXMLKind(zipBytes []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return "", err
	}
	var word, ppt, xl bool
	for _, f := range zr.File {
		switch {
		case strings.HasPrefix(f.Name, "word/"):
			word = true
		case strings.HasPrefix(f.Name, "ppt/"):
			ppt = true
		case strings.HasPrefix(f.Name, "xl/"):
			xl = true
		}
	}
	switch {
	case word && !ppt && !xl:
		return "docx", nil
	case ppt && !word && !xl:
		return "pptx", nil
	case xl && !word && !ppt:
		return "xlsx", nil
	default:
		return "", fmt.Errorf("zip does not look like docx, pptx or xlsx")
	}
}

func extractDOCX(zipBytes []byte) (string, error) {
	return extractOpenXML(zipBytes, func(name string) bool { return name == "word/document.xml" }, "p")
}

func extractPPTX(zipBytes []byte) (string, error) {
	return extractOpenXML(zipBytes, func(name string) bool {
		return strings.HasPrefix(name, "ppt/slides/") && strings.HasSuffix(name, ".xml")
	}, "p")
}

// extractOpenXML gathers <t> runs from the matching parts. Parts are read in
// name order so slides come out in sequence; each paraTag closes a line.
func extractOpenXML(zipBytes []byte, match func(string) bool, paraTag string) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return "", apierr.InvalidInput("invalid openxml container: %v", err)
	}
	files := make([]*zip.File, 0, len(zr.File))
	for _, f := range zr.File {
		if match(f.Name) {
			files = append(files, f)
		}
	}
	sort.Slice(files, func(i, j int) bool { return naturalLess(files[i].Name, files[j].Name) })

	var out strings.Builder
	for _, f := range files {
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open %s: %w", f.Name, err)
		}
		b, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return "", fmt.Errorf("read %s: %w", f.Name, err)
		}
		out.WriteString(textFromXML(b, paraTag))
		out.WriteString("\n\n")
	}
	return out.String(), nil
}

func textFromXML(xmlBytes []byte, paraTag string) string {
	dec := xml.NewDecoder(bytes.NewReader(xmlBytes))
	var out strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Local != "t" {
				continue
			}
			var v string
			if err := dec.DecodeElement(&v, &el); err == nil && v != "" {
				out.WriteString(v)
			}
		case xml.EndElement:
			if el.Name.Local == paraTag {
				out.WriteString("\n")
			}
		}
	}
	return out.String()
}

// naturalLess orders slide2.xml before slide10.xml.
func naturalLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func extractXLSX(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", apierr.InvalidInput("invalid spreadsheet: %v", err)
	}
	defer f.Close()
	var out strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		out.WriteString(sheet)
		out.WriteString("\n")
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line != "" {
				out.WriteString(line)
				out.WriteString("\n")
			}
		}
		out.WriteString("\n")
	}
	return out.String(), nil
}

var htmlBlocks = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "table": true, "ul": true, "ol": true,
}

func extractHTML(data []byte) string {
	z := html.NewTokenizer(bytes.NewReader(data))
	var out strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return out.String()
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				skip++
			}
			if htmlBlocks[tag] {
				out.WriteString("\n")
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if (tag == "script" || tag == "style") && skip > 0 {
				skip--
			}
			if htmlBlocks[tag] {
				out.WriteString("\n")
			}
		case html.TextToken:
			if skip == 0 {
				out.Write(z.Text())
				out.WriteString(" ")
			}
		}
	}
}

// normalizeText collapses runs of spaces within lines and runs of blank
// lines into one paragraph break. Paragraph boundaries survive for chunking.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\u00a0", " ")
	var out strings.Builder
	blank := false
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank = out.Len() > 0
			continue
		}
		if out.Len() > 0 {
			if blank {
				out.WriteString("\n\n")
			} else {
				out.WriteString("\n")
			}
		}
		out.WriteString(line)
		blank = false
	}
	return out.String()
}
