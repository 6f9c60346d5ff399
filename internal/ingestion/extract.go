package ingestion

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrEmptyDocument   = errors.New("no text content in document")
	ErrInvalidFilename = errors.New("invalid filename")
	ErrUnknownDomain   = errors.New("unknown RAG domain")
)

// SupportedExtensions lists the upload types ExtractText understands.
var SupportedExtensions = []string{".txt", ".md", ".html", ".htm", ".csv", ".json"}

var (
	spaceRun    = regexp.MustCompile(`[ \t\f\v]+`)
	blankLines  = regexp.MustCompile(`\n{3,}`)
	whitespaces = regexp.MustCompile(`\s+`)
)

// CleanFilename rejects names that would escape the domain's upload folder.
func CleanFilename(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return name, nil
}

// ExtractText turns an uploaded file into plain text, choosing the reader
// by extension.
func ExtractText(filename string, content []byte) (string, error) {
	if !utf8.Valid(content) {
		return "", fmt.Errorf("%s: content is not valid UTF-8", filename)
	}
	content = bytes.TrimPrefix(content, []byte("\ufeff"))

	var (
		text string
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md":
		text = cleanPlain(string(content))
	case ".html", ".htm":
		text, err = cleanHTML(content)
	case ".csv":
		text, err = flattenCSV(content)
	case ".json":
		text, err = indentJSON(content)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(filename))
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyDocument
	}
	return text, nil
}

func cleanPlain(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(l, " "))
	}
	s = strings.Join(lines, "\n")
	return strings.TrimSpace(blankLines.ReplaceAllString(s, "\n\n"))
}

func cleanHTML(content []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, nav, footer, header, aside, noscript").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	var parts []string
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		parts = append(parts, title)
	}

	doc.Find("body").Find("h1, h2, h3, h4, p, li, td, th, pre").Each(func(i int, s *goquery.Selection) {
		if s.Find("p, li, td, th").Length() > 0 {
			return
		}
		if t := strings.TrimSpace(whitespaces.ReplaceAllString(s.Text(), " ")); t != "" {
			parts = append(parts, t)
		}
	})

	if len(parts) <= 1 {
		body := strings.TrimSpace(whitespaces.ReplaceAllString(doc.Find("body").Text(), " "))
		if body != "" {
			parts = append(parts, body)
		}
	}

	return strings.Join(parts, "\n"), nil
}

// flattenCSV renders each record as "header: value" pairs so a chunk keeps
// the column names next to the values.
func flattenCSV(content []byte) (string, error) {
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return "", fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) == 0 {
		return "", nil
	}

	header := records[0]
	var b strings.Builder
	for _, rec := range records[1:] {
		pairs := make([]string, 0, len(rec))
		for i, v := range rec {
			name := fmt.Sprintf("col%d", i+1)
			if i < len(header) && strings.TrimSpace(header[i]) != "" {
				name = strings.TrimSpace(header[i])
			}
			pairs = append(pairs, name+": "+strings.TrimSpace(v))
		}
		b.WriteString(strings.Join(pairs, " | "))
		b.WriteByte('\n')
	}
	if len(records) == 1 {
		b.WriteString(strings.Join(header, " | "))
	}
	return strings.TrimSpace(b.String()), nil
}

func indentJSON(content []byte) (string, error) {
	var out bytes.Buffer
	if err := json.Indent(&out, content, "", "  "); err != nil {
		return "", fmt.Errorf("failed to parse JSON: %w", err)
	}
	return out.String(), nil
}
