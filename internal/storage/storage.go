// Package storage exports result tables to blob stores.
package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/JakeFAU/urlscraper/internal/scrape"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// Format selects the export encoding.
type Format string

// Supported export formats.
const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat validates a format name. Empty selects JSON.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(name))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", name)
	}
}

// ContentType returns the MIME type written alongside the object.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

// Encode writes table to w in format f.
func (f Format) Encode(w io.Writer, table *scrape.Table) error {
	switch f {
	case FormatCSV:
		return EncodeCSV(w, table)
	case FormatJSON, "":
		return EncodeJSON(w, table)
	default:
		return fmt.Errorf("unsupported export format %q", string(f))
	}
}

// EncodeJSON writes the rows as a JSON array of {url,date,status,html} objects.
func EncodeJSON(w io.Writer, table *scrape.Table) error {
	rows := []scrape.Row{}
	if table != nil && table.Rows != nil {
		rows = table.Rows
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// EncodeCSV writes a header row followed by one record per table row.
func EncodeCSV(w io.Writer, table *scrape.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(scrape.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if table != nil {
		for _, row := range table.Rows {
			if err := cw.Write(row.Record()); err != nil {
				return fmt.Errorf("write csv row: %w", err)
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Exporter encodes tables and writes them through a BlobStore.
type Exporter struct {
	blobs  scrape.BlobStore
	format Format
	prefix string
}

// NewExporter builds an Exporter. Objects are written under prefix.
func NewExporter(blobs scrape.BlobStore, format Format, prefix string) (*Exporter, error) {
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatCSV {
		return nil, fmt.Errorf("unsupported export format %q", string(format))
	}
	return &Exporter{
		blobs:  blobs,
		format: format,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

// ObjectPath returns the object path used for runID.
func (e *Exporter) ObjectPath(runID string) string {
	name := runID + "." + string(e.format)
	if e.prefix == "" {
		return name
	}
	return path.Join(e.prefix, name)
}

// Export writes the table for runID and returns the blob URI.
func (e *Exporter) Export(ctx context.Context, runID string, table *scrape.Table) (string, error) {
	if strings.TrimSpace(runID) == "" {
		return "", errors.New("run id is required")
	}
	var buf bytes.Buffer
	if err := e.format.Encode(&buf, table); err != nil {
		return "", err
	}
	uri, err := e.blobs.PutObject(ctx, e.ObjectPath(runID), e.format.ContentType(), &buf)
	if err != nil {
		return "", fmt.Errorf("put export object: %w", err)
	}
	return uri, nil
}
