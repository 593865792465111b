// Package export serializes collections for download.
package export

import (
	"bytes"
	"embed"
	"encoding/csv"
	"errors"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"limoni/internal/domain"
)

// Format is an export file format.
type Format string

const (
	FormatHTML Format = "html"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ErrUnsupportedFormat is returned for any format other than html, csv or json.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ParseFormat validates a user supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatHTML, FormatCSV, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// Result is a rendered export ready to be sent as a file.
type Result struct {
	Filename    string
	ContentType string
	Data        []byte
}

// TextStripper turns an HTML fragment into plain text.
type TextStripper interface {
	StripHTML(fragment string) string
}

//go:embed templates/collection.html
var templatesFS embed.FS

// Exporter renders collections in every supported format.
type Exporter struct {
	strip TextStripper
	tmpl  *template.Template
	loc   *time.Location
	now   func() time.Time
}

// New builds an Exporter. Timestamps in the HTML export are shown in loc.
func New(strip TextStripper, loc *time.Location) (*Exporter, error) {
	if loc == nil {
		loc = time.Local
	}
	e := &Exporter{strip: strip, loc: loc, now: time.Now}

	tmpl, err := template.New("collection.html").Funcs(template.FuncMap{
		"millis": e.formatMillis,
		"now":    func() string { return e.formatTime(e.now()) },
		"trusted": func(s string) template.HTML {
			// Entry HTML is sanitized when it is archived.
			return template.HTML(s)
		},
		"profile": func(author string) string {
			return "https://eksisozluk.com/biri/" + author
		},
	}).ParseFS(templatesFS, "templates/collection.html")
	if err != nil {
		return nil, fmt.Errorf("parse export template: %w", err)
	}
	e.tmpl = tmpl
	return e, nil
}

// Export renders c in the requested format.
func (e *Exporter) Export(c *domain.Collection, format Format) (*Result, error) {
	var (
		data        []byte
		contentType string
		err         error
	)
	switch format {
	case FormatJSON:
		data, err = e.JSON(c)
		contentType = "application/json"
	case FormatCSV:
		data, err = e.CSV(c)
		contentType = "text/csv;charset=utf-8"
	case FormatHTML:
		data, err = e.HTML(c)
		contentType = "text/html;charset=utf-8"
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("export %s as %s: %w", c.ID, format, err)
	}
	return &Result{
		Filename:    c.Name + "." + string(format),
		ContentType: contentType,
		Data:        data,
	}, nil
}

// JSON is the collection document indented by two spaces.
func (e *Exporter) JSON(c *domain.Collection) ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

var csvHeader = []string{"ID", "Author", "Date", "Content", "Favorites", "Topic", "URL"}

// CSV writes one row per entry under a fixed header.
func (e *Exporter) CSV(c *domain.Collection) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, entry := range c.Entries {
		row := []string{
			entry.ID,
			entry.Author,
			entry.Date,
			e.strip.StripHTML(entry.Content),
			strconv.Itoa(entry.FavoriteCount),
			entry.TopicTitle,
			entry.TopicURL,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// HTML renders a standalone page for the collection.
func (e *Exporter) HTML(c *domain.Collection) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.tmpl.Execute(&buf, c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *Exporter) formatMillis(ms int64) string {
	return e.formatTime(time.UnixMilli(ms))
}

func (e *Exporter) formatTime(t time.Time) string {
	return t.In(e.loc).Format("02.01.2006 15:04:05")
}
